package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Fake is an in-memory Backend double used by sync/orchestrator tests in
// place of a live Postgres or S3 endpoint. Its guarded id->record map
// mirrors the latest-pointer bookkeeping in the teacher's internal/dag/refs.go
// RefStore (human-readable ID -> CID), collapsed here to rootHash -> record
// since there is only ever one kind of ref in this domain.
type Fake struct {
	mu       sync.Mutex
	records  map[string]FullTree
	order    []string
	latest   string
	FailNext error
}

// NewFake returns an empty fake Backend.
func NewFake() *Fake {
	return &Fake{records: make(map[string]FullTree)}
}

func (f *Fake) Close() error { return nil }

func (f *Fake) GetLatestRootHash(ctx context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return "", false, err
	}
	if f.latest == "" {
		return "", false, nil
	}
	return f.latest, true, nil
}

func (f *Fake) StoreTree(ctx context.Context, in StoreInput) (RootRecord, error) {
	if err := in.Validate(); err != nil {
		return RootRecord{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return RootRecord{}, err
	}
	rec := RootRecord{
		ID:         fmt.Sprintf("fake-%d", len(f.order)+1),
		RootHash:   in.RootHash,
		ItemCount:  in.ItemCount,
		SourcePath: in.SourcePath,
		CreatedAt:  time.Now().UTC(),
	}
	if _, exists := f.records[in.RootHash]; !exists {
		f.order = append(f.order, in.RootHash)
	}
	f.records[in.RootHash] = FullTree{RootRecord: rec, TreeBody: in.Body}
	f.latest = in.RootHash
	return rec, nil
}

func (f *Fake) GetTreeByRootHash(ctx context.Context, rootHash string) (FullTree, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return FullTree{}, false, err
	}
	ft, ok := f.records[rootHash]
	return ft, ok, nil
}

func (f *Fake) GetRecentRoots(ctx context.Context, limit int) ([]RootRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	out := make([]RootRecord, 0, len(f.order))
	for i := len(f.order) - 1; i >= 0; i-- {
		out = append(out, f.records[f.order[i]].RootRecord)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) TestConnection(ctx context.Context) ConnectionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return ConnectionStatus{Connected: false, Error: err.Error()}
	}
	return ConnectionStatus{Connected: true, Timestamp: time.Now().UTC()}
}

func (f *Fake) Stats(ctx context.Context) (Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return Stats{}, err
	}
	var s Stats
	s.TotalTrees = len(f.order)
	var total int64
	for i, h := range f.order {
		rec := f.records[h].RootRecord
		total += int64(rec.ItemCount)
		if i == 0 || rec.CreatedAt.After(s.LatestTree) {
			s.LatestTree = rec.CreatedAt
		}
		if i == 0 || rec.CreatedAt.Before(s.EarliestTree) {
			s.EarliestTree = rec.CreatedAt
		}
	}
	if len(f.order) > 0 {
		s.AvgItemCount = float64(total) / float64(len(f.order))
	}
	return s, nil
}

// takeFailure returns FailNext once, then clears it — a one-shot fault
// injection knob for exercising the "backend failure must not update cache"
// path in sync tests.
func (f *Fake) takeFailure() error {
	err := f.FailNext
	f.FailNext = nil
	return err
}

var _ Backend = (*Fake)(nil)
