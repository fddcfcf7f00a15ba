package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/quietridge/merklesentry/internal/apperr"
)

const (
	treeKeyFmt       = "trees/%s.json"
	rootMetaKeyFmt   = "metadata/roots/%s.json"
	latestPointerKey = "metadata/latest-root.json"
	rootsPrefix      = "metadata/roots/"
)

// rootMeta is the JSON body of metadata/roots/<rootHash>.json.
type rootMeta struct {
	RootHash   string    `json:"rootHash"`
	ItemCount  int       `json:"itemCount"`
	SourcePath string    `json:"sourcePath"`
	CreatedAt  time.Time `json:"createdAt"`
	BodyKey    string    `json:"bodyKey"`
}

// latestPointer is the mutable document at metadata/latest-root.json. Its
// read-then-atomically-rewrite lifecycle is adapted from the teacher's
// internal/dag/commitlog.go CommitLog.Head/Commit, which maintained a HEAD
// file pointing at the newest commit object; here there is no parent chain
// (SPEC_FULL.md §1 excludes durable intermediate history), just the single
// current root.
type latestPointer struct {
	RootHash string    `json:"rootHash"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ObjectStoreConfig configures the S3-compatible Backend variant.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// ObjectStore is Storage Backend Variant B, grounded on the teacher's
// internal/dag/store.go ObjectStore (content-addressed local blob store):
// Put-if-absent semantics there become PutObject there-or-overwrite here,
// and ComputeCID/CIDToFilename are reused via cid.go to stamp a CID into
// each object's user metadata.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

// OpenObjectStore connects to an S3-compatible endpoint and ensures bucket
// exists.
func OpenObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, apperr.New(apperr.KindIO, "storage.OpenObjectStore", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, apperr.New(apperr.KindIO, "storage.OpenObjectStore", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, apperr.New(apperr.KindIO, "storage.OpenObjectStore", fmt.Errorf("create bucket: %w", err))
		}
	}
	return &ObjectStore{client: client, bucket: cfg.Bucket}, nil
}

func (o *ObjectStore) Close() error { return nil }

func (o *ObjectStore) GetLatestRootHash(ctx context.Context) (string, bool, error) {
	ptr, ok, err := o.readLatestPointer(ctx)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return ptr.RootHash, true, nil
}

func (o *ObjectStore) readLatestPointer(ctx context.Context) (latestPointer, bool, error) {
	obj, err := o.client.GetObject(ctx, o.bucket, latestPointerKey, minio.GetObjectOptions{})
	if err != nil {
		return latestPointer{}, false, nil
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return latestPointer{}, false, nil
		}
		return latestPointer{}, false, apperr.New(apperr.KindIO, "storage.ObjectStore.readLatestPointer", err)
	}
	var ptr latestPointer
	if err := json.Unmarshal(data, &ptr); err != nil {
		return latestPointer{}, false, nil
	}
	return ptr, true, nil
}

func (o *ObjectStore) StoreTree(ctx context.Context, in StoreInput) (RootRecord, error) {
	if err := in.Validate(); err != nil {
		return RootRecord{}, err
	}

	cid, err := computeCID(in.Body)
	if err != nil {
		return RootRecord{}, apperr.New(apperr.KindIO, "storage.ObjectStore.StoreTree", err)
	}

	bodyKey := fmt.Sprintf(treeKeyFmt, in.RootHash)
	userMeta := map[string]string{
		"Cid":         cidToString(cid),
		"Item-Count":  strconv.Itoa(in.ItemCount),
		"Source-Path": in.SourcePath,
	}
	if _, err := o.client.PutObject(ctx, o.bucket, bodyKey, bytes.NewReader(in.Body), int64(len(in.Body)),
		minio.PutObjectOptions{ContentType: "application/json", UserMetadata: userMeta}); err != nil {
		return RootRecord{}, apperr.New(apperr.KindIO, "storage.ObjectStore.StoreTree", fmt.Errorf("put body: %w", err))
	}

	createdAt := time.Now().UTC()
	meta := rootMeta{
		RootHash:   in.RootHash,
		ItemCount:  in.ItemCount,
		SourcePath: in.SourcePath,
		CreatedAt:  createdAt,
		BodyKey:    bodyKey,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return RootRecord{}, apperr.New(apperr.KindIO, "storage.ObjectStore.StoreTree", err)
	}
	metaKey := fmt.Sprintf(rootMetaKeyFmt, in.RootHash)
	if _, err := o.client.PutObject(ctx, o.bucket, metaKey, bytes.NewReader(metaBytes), int64(len(metaBytes)),
		minio.PutObjectOptions{ContentType: "application/json", UserMetadata: userMeta}); err != nil {
		return RootRecord{}, apperr.New(apperr.KindIO, "storage.ObjectStore.StoreTree", fmt.Errorf("put root metadata: %w", err))
	}

	ptr := latestPointer{RootHash: in.RootHash, UpdatedAt: createdAt}
	ptrBytes, err := json.Marshal(ptr)
	if err != nil {
		return RootRecord{}, apperr.New(apperr.KindIO, "storage.ObjectStore.StoreTree", err)
	}
	if _, err := o.client.PutObject(ctx, o.bucket, latestPointerKey, bytes.NewReader(ptrBytes), int64(len(ptrBytes)),
		minio.PutObjectOptions{ContentType: "application/json", UserMetadata: userMeta}); err != nil {
		return RootRecord{}, apperr.New(apperr.KindIO, "storage.ObjectStore.StoreTree", fmt.Errorf("update latest pointer: %w", err))
	}

	return RootRecord{ID: in.RootHash, RootHash: in.RootHash, ItemCount: in.ItemCount, SourcePath: in.SourcePath, CreatedAt: createdAt}, nil
}

func (o *ObjectStore) GetTreeByRootHash(ctx context.Context, rootHash string) (FullTree, bool, error) {
	metaKey := fmt.Sprintf(rootMetaKeyFmt, rootHash)
	metaObj, err := o.client.GetObject(ctx, o.bucket, metaKey, minio.GetObjectOptions{})
	if err != nil {
		return FullTree{}, false, nil
	}
	defer metaObj.Close()
	metaBytes, err := io.ReadAll(metaObj)
	if err != nil || len(metaBytes) == 0 {
		return FullTree{}, false, nil
	}
	var meta rootMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return FullTree{}, false, apperr.New(apperr.KindIO, "storage.ObjectStore.GetTreeByRootHash", err)
	}

	bodyObj, err := o.client.GetObject(ctx, o.bucket, meta.BodyKey, minio.GetObjectOptions{})
	if err != nil {
		return FullTree{}, false, apperr.New(apperr.KindIO, "storage.ObjectStore.GetTreeByRootHash", err)
	}
	defer bodyObj.Close()
	body, err := io.ReadAll(bodyObj)
	if err != nil {
		return FullTree{}, false, apperr.New(apperr.KindIO, "storage.ObjectStore.GetTreeByRootHash", err)
	}

	return FullTree{
		RootRecord: RootRecord{ID: rootHash, RootHash: rootHash, ItemCount: meta.ItemCount, SourcePath: meta.SourcePath, CreatedAt: meta.CreatedAt},
		TreeBody:   body,
	}, true, nil
}

func (o *ObjectStore) GetRecentRoots(ctx context.Context, limit int) ([]RootRecord, error) {
	metas, err := o.listRootMetas(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].CreatedAt.After(metas[j].CreatedAt) })
	if limit > 0 && len(metas) > limit {
		metas = metas[:limit]
	}
	out := make([]RootRecord, 0, len(metas))
	for _, m := range metas {
		out = append(out, RootRecord{ID: m.RootHash, RootHash: m.RootHash, ItemCount: m.ItemCount, SourcePath: m.SourcePath, CreatedAt: m.CreatedAt})
	}
	return out, nil
}

func (o *ObjectStore) listRootMetas(ctx context.Context) ([]rootMeta, error) {
	var metas []rootMeta
	for obj := range o.client.ListObjects(ctx, o.bucket, minio.ListObjectsOptions{Prefix: rootsPrefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, apperr.New(apperr.KindIO, "storage.ObjectStore.listRootMetas", obj.Err)
		}
		rc, err := o.client.GetObject(ctx, o.bucket, obj.Key, minio.GetObjectOptions{})
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		var m rootMeta
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		metas = append(metas, m)
	}
	return metas, nil
}

func (o *ObjectStore) TestConnection(ctx context.Context) ConnectionStatus {
	_, err := o.client.BucketExists(ctx, o.bucket)
	if err != nil {
		return ConnectionStatus{Connected: false, Error: err.Error()}
	}
	return ConnectionStatus{Connected: true, Timestamp: time.Now().UTC()}
}

func (o *ObjectStore) Stats(ctx context.Context) (Stats, error) {
	metas, err := o.listRootMetas(ctx)
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	s.TotalTrees = len(metas)
	if len(metas) == 0 {
		return s, nil
	}
	var totalItems int64
	for i, m := range metas {
		totalItems += int64(m.ItemCount)
		if i == 0 || m.CreatedAt.After(s.LatestTree) {
			s.LatestTree = m.CreatedAt
		}
		if i == 0 || m.CreatedAt.Before(s.EarliestTree) {
			s.EarliestTree = m.CreatedAt
		}
	}
	s.AvgItemCount = float64(totalItems) / float64(len(metas))

	for obj := range o.client.ListObjects(ctx, o.bucket, minio.ListObjectsOptions{Prefix: "trees/", Recursive: true}) {
		if obj.Err == nil {
			s.TotalSizeBytes += obj.Size
		}
	}
	return s, nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey"
}
