package cache

import (
	"context"
	"encoding/json"
	"time"
)

func unmarshalOrEmpty(raw json.RawMessage, v interface{}) error {
	return json.Unmarshal(raw, v)
}

// TreeMetadata is the cached payload for merkle:tree_metadata:<rootHash>.
type TreeMetadata struct {
	ItemCount  int       `json:"itemCount"`
	SourcePath string    `json:"sourcePath"`
	CreatedAt  time.Time `json:"createdAt"`
}

// BuildStatus is the cached payload for merkle:build_status.
type BuildStatus struct {
	Timestamp      time.Time `json:"timestamp"`
	Success        bool      `json:"success"`
	RootHash       string    `json:"rootHash,omitempty"`
	FilesProcessed int       `json:"filesProcessed"`
	Written        bool      `json:"written"`
}

// metadataTTL is 2x the configured default, per SPEC_FULL.md §4.5.
func (c *Cache) metadataTTL() time.Duration { return 2 * c.defaultTTL }

// GetLatestRoot returns the cached latest root hash, if present.
func (c *Cache) GetLatestRoot(ctx context.Context) (string, bool) {
	raw, ok := c.Get(ctx, KeyLatestRoot)
	if !ok {
		return "", false
	}
	var hash string
	if err := unmarshalOrEmpty(raw, &hash); err != nil {
		return "", false
	}
	return hash, true
}

// SetLatestRoot caches rootHash as the latest committed root.
func (c *Cache) SetLatestRoot(ctx context.Context, rootHash string) bool {
	return c.Set(ctx, KeyLatestRoot, rootHash, c.defaultTTL)
}

// GetTreeMetadata returns the cached metadata for rootHash, if present.
func (c *Cache) GetTreeMetadata(ctx context.Context, rootHash string) (TreeMetadata, bool) {
	raw, ok := c.Get(ctx, MetadataKey(rootHash))
	if !ok {
		return TreeMetadata{}, false
	}
	var meta TreeMetadata
	if err := unmarshalOrEmpty(raw, &meta); err != nil {
		return TreeMetadata{}, false
	}
	return meta, true
}

// SetTreeMetadata caches metadata for rootHash at 2x the default TTL.
func (c *Cache) SetTreeMetadata(ctx context.Context, rootHash string, meta TreeMetadata) bool {
	return c.Set(ctx, MetadataKey(rootHash), meta, c.metadataTTL())
}

// GetBuildStatus returns the cached last-build snapshot, if present.
func (c *Cache) GetBuildStatus(ctx context.Context) (BuildStatus, bool) {
	raw, ok := c.Get(ctx, KeyBuildStatus)
	if !ok {
		return BuildStatus{}, false
	}
	var status BuildStatus
	if err := unmarshalOrEmpty(raw, &status); err != nil {
		return BuildStatus{}, false
	}
	return status, true
}

// SetBuildStatus caches status with the fixed 300s TTL from SPEC_FULL.md §4.5.
func (c *Cache) SetBuildStatus(ctx context.Context, status BuildStatus) bool {
	return c.Set(ctx, KeyBuildStatus, status, buildStatusTTL)
}
