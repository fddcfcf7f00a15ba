// Package orchestrator wires the directory walker, tree builder, and
// change-gated sync into the single buildAndSync cycle the scheduler
// drives, and records the outcome of the last attempt for the health
// surface. It plays the role the teacher's cmd/memex-fs/main.go played
// ad hoc in its startup/index-rebuild sequence, pulled out into its own
// reusable unit since here it runs on every scheduler tick, not just once
// at boot.
package orchestrator

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/quietridge/merklesentry/internal/apperr"
	"github.com/quietridge/merklesentry/internal/cache"
	"github.com/quietridge/merklesentry/internal/logging"
	"github.com/quietridge/merklesentry/internal/merkle"
	syncer "github.com/quietridge/merklesentry/internal/sync"
	"github.com/quietridge/merklesentry/internal/walker"
)

// LastBuild is the most recent build-and-sync outcome, exposed read-only to
// the HTTP health surface.
type LastBuild struct {
	Timestamp      time.Time `json:"timestamp"`
	Success        bool      `json:"success"`
	RootHash       string    `json:"rootHash,omitempty"`
	FilesProcessed int       `json:"filesProcessed"`
	BuildTime      string    `json:"buildTime"`
	Written        *bool     `json:"written,omitempty"`
	ErrorKind      string    `json:"errorKind,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Config fixes the source directory and batch ceiling for one orchestrator.
type Config struct {
	SourceDir  string
	BatchLimit int
}

// Orchestrator runs one buildAndSync cycle per invocation and remembers the
// outcome of the last one.
type Orchestrator struct {
	cfg    Config
	syncer *syncer.Syncer
	cache  *cache.Cache
	log    *logging.Component

	mu   sync.Mutex
	last LastBuild
}

// New constructs an Orchestrator.
func New(cfg Config, s *syncer.Syncer, c *cache.Cache, log *logging.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, syncer: s, cache: c, log: log.With("orchestrator")}
}

// BuildAndSync implements SPEC_FULL.md §4.9: verify the source directory is
// reachable, walk it, build a files-mode tree, sync it, and record the
// outcome. It is the BuildFunc the scheduler calls on every tick and on a
// manual trigger.
func (o *Orchestrator) BuildAndSync(ctx context.Context) error {
	start := time.Now()

	result, err := o.run(ctx)
	result.BuildTime = time.Since(start).String()
	result.Timestamp = time.Now().UTC()

	o.mu.Lock()
	o.last = result
	o.mu.Unlock()

	o.cache.SetBuildStatus(ctx, cache.BuildStatus{
		Timestamp:      result.Timestamp,
		Success:        result.Success,
		RootHash:       result.RootHash,
		FilesProcessed: result.FilesProcessed,
		Written:        result.Written != nil && *result.Written,
	})

	return err
}

func (o *Orchestrator) run(ctx context.Context) (LastBuild, error) {
	if info, statErr := os.Stat(o.cfg.SourceDir); statErr != nil || !info.IsDir() {
		err := apperr.New(apperr.KindIO, "orchestrator.BuildAndSync", errSourceUnreachable)
		return failedBuild(err), err
	}

	paths, truncated, err := walker.Walk(o.cfg.SourceDir, o.cfg.BatchLimit)
	if err != nil {
		return failedBuild(err), err
	}
	if truncated {
		o.log.Warnf("source directory %s has more files than the %d-item batch limit; scan truncated", o.cfg.SourceDir, o.cfg.BatchLimit)
	}

	tree, err := merkle.Build(paths, merkle.ModeFiles)
	if err != nil {
		return failedBuild(err), err
	}

	body, err := tree.TreeBody()
	if err != nil {
		wrapped := apperr.New(apperr.KindIO, "orchestrator.BuildAndSync", err)
		return failedBuild(wrapped), wrapped
	}

	res, err := o.syncer.SyncTree(ctx, syncer.TreeData{
		RootHash:   string(tree.Root().Hash),
		Body:       body,
		ItemCount:  tree.LeafCount(),
		SourcePath: o.cfg.SourceDir,
	})
	if err != nil {
		return failedBuild(err), err
	}

	written := res.Written
	return LastBuild{
		Success:        true,
		RootHash:       res.RootHash,
		FilesProcessed: tree.LeafCount(),
		Written:        &written,
	}, nil
}

func failedBuild(err error) LastBuild {
	lb := LastBuild{Success: false, Error: err.Error()}
	var appErr *apperr.Error
	if e, ok := err.(*apperr.Error); ok {
		appErr = e
	}
	if appErr != nil {
		lb.ErrorKind = string(appErr.Kind)
	}
	return lb
}

// LastBuildStatus returns the outcome of the most recent buildAndSync attempt.
func (o *Orchestrator) LastBuildStatus() LastBuild {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

var errSourceUnreachable = orchestratorErr("source directory is not accessible")

type orchestratorErr string

func (e orchestratorErr) Error() string { return string(e) }
