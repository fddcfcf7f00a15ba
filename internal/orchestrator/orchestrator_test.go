package orchestrator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quietridge/merklesentry/internal/apperr"
	"github.com/quietridge/merklesentry/internal/cache"
	"github.com/quietridge/merklesentry/internal/logging"
	"github.com/quietridge/merklesentry/internal/storage"
	syncer "github.com/quietridge/merklesentry/internal/sync"
)

func newTestOrchestrator(t *testing.T, dir string) (*Orchestrator, *storage.Fake) {
	t.Helper()
	backend := storage.NewFake()
	c := cache.NewDisabled(logging.Default())
	s := syncer.New(backend, c, logging.Default().With("sync"))
	o := New(Config{SourceDir: dir, BatchLimit: 0}, s, c, logging.Default())
	return o, backend
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte(n), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
}

func TestBuildAndSync_FirstRunCommits(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.txt", "b.txt")
	o, backend := newTestOrchestrator(t, dir)

	if err := o.BuildAndSync(context.Background()); err != nil {
		t.Fatalf("BuildAndSync: %v", err)
	}

	last := o.LastBuildStatus()
	if !last.Success {
		t.Fatalf("expected success, got error %s", last.Error)
	}
	if last.FilesProcessed != 2 {
		t.Fatalf("FilesProcessed = %d, want 2", last.FilesProcessed)
	}
	if last.Written == nil || !*last.Written {
		t.Fatal("expected first build to be written")
	}

	stats, err := backend.Stats(context.Background())
	if err != nil || stats.TotalTrees != 1 {
		t.Fatalf("backend stats = %+v, err=%v", stats, err)
	}
}

func TestBuildAndSync_SecondRunWithSameInputsSkipsWrite(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.txt", "b.txt")
	o, backend := newTestOrchestrator(t, dir)
	ctx := context.Background()

	if err := o.BuildAndSync(ctx); err != nil {
		t.Fatalf("first BuildAndSync: %v", err)
	}
	if err := o.BuildAndSync(ctx); err != nil {
		t.Fatalf("second BuildAndSync: %v", err)
	}

	last := o.LastBuildStatus()
	if last.Written == nil || *last.Written {
		t.Fatal("expected second identical build to skip the write")
	}
	stats, err := backend.Stats(ctx)
	if err != nil || stats.TotalTrees != 1 {
		t.Fatalf("expected exactly one committed tree, got %+v (err=%v)", stats, err)
	}
}

func TestBuildAndSync_EmptyDirectoryFailsEmpty(t *testing.T) {
	dir := t.TempDir()
	o, _ := newTestOrchestrator(t, dir)

	err := o.BuildAndSync(context.Background())
	if err == nil {
		t.Fatal("expected error for empty source directory")
	}
	if !apperr.Is(err, apperr.KindEmpty) {
		t.Fatalf("expected KindEmpty, got %v", err)
	}

	last := o.LastBuildStatus()
	if last.Success {
		t.Fatal("expected failed last-build record")
	}
	if last.ErrorKind != string(apperr.KindEmpty) {
		t.Fatalf("ErrorKind = %s, want %s", last.ErrorKind, apperr.KindEmpty)
	}
}

func TestBuildAndSync_UnreachableSourceFailsIO(t *testing.T) {
	o, _ := newTestOrchestrator(t, filepath.Join(t.TempDir(), "does-not-exist"))

	err := o.BuildAndSync(context.Background())
	if err == nil {
		t.Fatal("expected error for unreachable source directory")
	}
	if !apperr.Is(err, apperr.KindIO) {
		t.Fatalf("expected KindIO, got %v", err)
	}
}

func TestBuildAndSync_TruncatedWalkLogsWarning(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.txt", "b.txt", "c.txt")

	var logBuf bytes.Buffer
	logger := logging.New(&logBuf, logging.LevelWarn)

	backend := storage.NewFake()
	c := cache.NewDisabled(logger)
	s := syncer.New(backend, c, logger.With("sync"))
	o := New(Config{SourceDir: dir, BatchLimit: 2}, s, c, logger)

	if err := o.BuildAndSync(context.Background()); err != nil {
		t.Fatalf("BuildAndSync: %v", err)
	}

	last := o.LastBuildStatus()
	if last.FilesProcessed != 2 {
		t.Fatalf("FilesProcessed = %d, want 2 (batch limit should truncate)", last.FilesProcessed)
	}
	if !strings.Contains(logBuf.String(), "truncated") {
		t.Fatalf("expected a truncation warning to be logged, got: %s", logBuf.String())
	}
}
