// Package storage defines the Storage Backend capability contract
// (SPEC_FULL.md §4.6) and its two concrete variants: a relational backend
// (internal/storage/relational.go, Postgres via pgx) and an object-store
// backend (internal/storage/objectstore.go, S3-compatible via minio-go).
// Callers depend only on the Backend interface so the rest of the service
// never sees a variant-specific error shape, matching the capability
// abstraction called out in SPEC_FULL.md §9.
package storage

import (
	"context"
	"time"

	"github.com/quietridge/merklesentry/internal/apperr"
)

// RootRecord is the committed artifact described in SPEC_FULL.md §3.
type RootRecord struct {
	ID         string    `json:"id"`
	RootHash   string    `json:"rootHash"`
	ItemCount  int       `json:"itemCount"`
	SourcePath string    `json:"sourcePath"`
	CreatedAt  time.Time `json:"createdAt"`
}

// FullTree is a RootRecord plus its stored tree body.
type FullTree struct {
	RootRecord
	TreeBody []byte `json:"treeBody"`
}

// StoreInput is the data storeTree persists; itemCount and rootHash are
// validated before any write (§4.6's "reject invalid inputs" rule).
type StoreInput struct {
	RootHash   string
	Body       []byte
	ItemCount  int
	SourcePath string
}

// Validate enforces the Invalid-before-any-write contract shared by both
// variants.
func (in StoreInput) Validate() error {
	if in.RootHash == "" {
		return apperr.New(apperr.KindInvalid, "storage.StoreInput", errMissingRootHash)
	}
	if in.ItemCount <= 0 {
		return apperr.New(apperr.KindInvalid, "storage.StoreInput", errNonPositiveItemCount)
	}
	return nil
}

var (
	errMissingRootHash      = storageErr("root hash is required")
	errNonPositiveItemCount = storageErr("item count must be > 0")
)

type storageErr string

func (e storageErr) Error() string { return string(e) }

// ConnectionStatus is the result of testConnection().
type ConnectionStatus struct {
	Connected bool      `json:"connected"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Stats summarizes the backend's committed history for the health surface.
type Stats struct {
	TotalTrees     int       `json:"totalTrees"`
	LatestTree     time.Time `json:"latestTree,omitempty"`
	EarliestTree   time.Time `json:"earliestTree,omitempty"`
	AvgItemCount   float64   `json:"avgItemCount,omitempty"`
	TotalSizeBytes int64     `json:"totalSizeBytes,omitempty"`
}

// Backend is the capability contract both storage variants implement.
type Backend interface {
	GetLatestRootHash(ctx context.Context) (string, bool, error)
	StoreTree(ctx context.Context, in StoreInput) (RootRecord, error)
	GetTreeByRootHash(ctx context.Context, rootHash string) (FullTree, bool, error)
	GetRecentRoots(ctx context.Context, limit int) ([]RootRecord, error)
	TestConnection(ctx context.Context) ConnectionStatus
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Variant identifies which Backend implementation is active, surfaced by
// the HTTP descriptor endpoint.
type Variant string

const (
	VariantRelational Variant = "relational"
	VariantObjectStore Variant = "object_store"
)
