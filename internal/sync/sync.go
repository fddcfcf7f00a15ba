// Package sync implements change-gated persistence of a built tree: the
// latest committed root hash is compared against a freshly built one, and
// the backend is written to only when they differ. It shares its name with
// the standard library package but is never imported alongside it from the
// same file.
package sync

import (
	"context"

	"github.com/quietridge/merklesentry/internal/apperr"
	"github.com/quietridge/merklesentry/internal/cache"
	"github.com/quietridge/merklesentry/internal/logging"
	"github.com/quietridge/merklesentry/internal/storage"
)

// TreeData is the freshly built artifact offered to Sync.
type TreeData struct {
	RootHash   string
	Body       []byte
	ItemCount  int
	SourcePath string
}

// Result is the outcome of a single syncTree call.
type Result struct {
	Written      bool
	RootHash     string
	PreviousHash string
	Reason       string
}

// Syncer implements SPEC_FULL.md §4.7 against a Backend and Cache pair.
// Its cache-then-backend read, write-only-on-change, and cache-after-commit
// ordering is the storage-layer analogue of the teacher's
// internal/dagit/sync.go FeedSyncer.Sync, which likewise read a cached
// cursor before consulting the durable store.
type Syncer struct {
	backend storage.Backend
	cache   *cache.Cache
	log     *logging.Component
}

// New constructs a Syncer.
func New(backend storage.Backend, c *cache.Cache, log *logging.Component) *Syncer {
	return &Syncer{backend: backend, cache: c, log: log}
}

// SyncTree is the §4.7 algorithm. It never returns an error for "no
// change" — that is reported as Result.Written == false, Reason ==
// "unchanged". An IO error means the backend latest-root read or the
// backend write failed; in either case the cache was left untouched.
func (s *Syncer) SyncTree(ctx context.Context, td TreeData) (Result, error) {
	latest, err := s.latestRoot(ctx)
	if err != nil {
		return Result{}, err
	}

	if latest == td.RootHash {
		return Result{Written: false, RootHash: td.RootHash, PreviousHash: latest, Reason: "unchanged"}, nil
	}

	rec, err := s.backend.StoreTree(ctx, storage.StoreInput{
		RootHash:   td.RootHash,
		Body:       td.Body,
		ItemCount:  td.ItemCount,
		SourcePath: td.SourcePath,
	})
	if err != nil {
		s.log.Errorf("backend store failed for root %s: %v", td.RootHash, err)
		return Result{}, apperr.New(apperr.KindIO, "sync.SyncTree", err)
	}

	// Cache is updated only now that the backend has durably accepted the
	// root — it must never advertise a root the backend has not committed.
	s.cache.SetLatestRoot(ctx, rec.RootHash)
	s.cache.SetTreeMetadata(ctx, rec.RootHash, cache.TreeMetadata{
		ItemCount:  rec.ItemCount,
		SourcePath: rec.SourcePath,
		CreatedAt:  rec.CreatedAt,
	})

	return Result{Written: true, RootHash: rec.RootHash, PreviousHash: latest, Reason: "changed"}, nil
}

// latestRoot reads the latest root via cache first, falling back to the
// backend on a miss, and repopulates the cache from the backend's answer.
func (s *Syncer) latestRoot(ctx context.Context) (string, error) {
	if hash, ok := s.cache.GetLatestRoot(ctx); ok {
		return hash, nil
	}
	hash, ok, err := s.backend.GetLatestRootHash(ctx)
	if err != nil {
		return "", apperr.New(apperr.KindIO, "sync.latestRoot", err)
	}
	if !ok {
		return "", nil
	}
	s.cache.SetLatestRoot(ctx, hash)
	return hash, nil
}
