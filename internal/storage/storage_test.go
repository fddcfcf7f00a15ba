package storage

import (
	"context"
	"testing"
)

func TestStoreInput_ValidateRejectsEmptyRootHash(t *testing.T) {
	in := StoreInput{RootHash: "", Body: []byte("{}"), ItemCount: 1}
	if err := in.Validate(); err == nil {
		t.Fatal("expected error for empty root hash")
	}
}

func TestStoreInput_ValidateRejectsNonPositiveItemCount(t *testing.T) {
	in := StoreInput{RootHash: "abc", Body: []byte("{}"), ItemCount: 0}
	if err := in.Validate(); err == nil {
		t.Fatal("expected error for zero item count")
	}
}

func TestStoreInput_ValidateAcceptsWellFormedInput(t *testing.T) {
	in := StoreInput{RootHash: "abc", Body: []byte("{}"), ItemCount: 3}
	if err := in.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFakeBackend_StoreThenFetchRoundTrips(t *testing.T) {
	ctx := context.Background()
	b := NewFake()

	if _, ok, err := b.GetLatestRootHash(ctx); err != nil || ok {
		t.Fatalf("expected no latest root on empty backend, got ok=%v err=%v", ok, err)
	}

	rec, err := b.StoreTree(ctx, StoreInput{RootHash: "deadbeef", Body: []byte(`{"hash":"deadbeef"}`), ItemCount: 2, SourcePath: "/data"})
	if err != nil {
		t.Fatalf("StoreTree: %v", err)
	}
	if rec.RootHash != "deadbeef" {
		t.Fatalf("RootHash = %s, want deadbeef", rec.RootHash)
	}

	hash, ok, err := b.GetLatestRootHash(ctx)
	if err != nil || !ok || hash != "deadbeef" {
		t.Fatalf("GetLatestRootHash = %s, %v, %v", hash, ok, err)
	}

	ft, ok, err := b.GetTreeByRootHash(ctx, "deadbeef")
	if err != nil || !ok {
		t.Fatalf("GetTreeByRootHash: ok=%v err=%v", ok, err)
	}
	if string(ft.TreeBody) != `{"hash":"deadbeef"}` {
		t.Fatalf("TreeBody mismatch: %s", ft.TreeBody)
	}
}

func TestFakeBackend_GetTreeByRootHashMissIsNotAnError(t *testing.T) {
	ctx := context.Background()
	b := NewFake()
	_, ok, err := b.GetTreeByRootHash(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected miss for unknown root hash")
	}
}

func TestFakeBackend_GetRecentRootsRespectsLimitAndOrder(t *testing.T) {
	ctx := context.Background()
	b := NewFake()
	for i := 0; i < 5; i++ {
		if _, err := b.StoreTree(ctx, StoreInput{RootHash: string(rune('a' + i)), Body: []byte("{}"), ItemCount: 1}); err != nil {
			t.Fatalf("StoreTree: %v", err)
		}
	}
	roots, err := b.GetRecentRoots(ctx, 3)
	if err != nil {
		t.Fatalf("GetRecentRoots: %v", err)
	}
	if len(roots) != 3 {
		t.Fatalf("len(roots) = %d, want 3", len(roots))
	}
}

func TestFakeBackend_StoreTreeRejectsInvalidInputBeforeMutatingState(t *testing.T) {
	ctx := context.Background()
	b := NewFake()
	if _, err := b.StoreTree(ctx, StoreInput{RootHash: "", Body: []byte("{}"), ItemCount: 1}); err == nil {
		t.Fatal("expected validation error")
	}
	if _, ok, _ := b.GetLatestRootHash(ctx); ok {
		t.Fatal("invalid StoreTree must not set a latest root")
	}
}

func TestFakeBackend_FailNextIsOneShot(t *testing.T) {
	ctx := context.Background()
	b := NewFake()
	b.FailNext = errInjectedFailure

	if _, _, err := b.GetLatestRootHash(ctx); err == nil {
		t.Fatal("expected injected failure on first call")
	}
	if _, _, err := b.GetLatestRootHash(ctx); err != nil {
		t.Fatalf("injected failure should have been consumed, got %v", err)
	}
}

func TestFakeBackend_StatsReflectsStoredTrees(t *testing.T) {
	ctx := context.Background()
	b := NewFake()
	if _, err := b.StoreTree(ctx, StoreInput{RootHash: "a", Body: []byte("{}"), ItemCount: 4}); err != nil {
		t.Fatalf("StoreTree: %v", err)
	}
	if _, err := b.StoreTree(ctx, StoreInput{RootHash: "b", Body: []byte("{}"), ItemCount: 6}); err != nil {
		t.Fatalf("StoreTree: %v", err)
	}
	stats, err := b.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalTrees != 2 {
		t.Fatalf("TotalTrees = %d, want 2", stats.TotalTrees)
	}
	if stats.AvgItemCount != 5 {
		t.Fatalf("AvgItemCount = %v, want 5", stats.AvgItemCount)
	}
}

type testErr string

func (e testErr) Error() string { return string(e) }

var errInjectedFailure = testErr("injected failure")
