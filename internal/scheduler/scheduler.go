// Package scheduler fires a build at a configured interval, using a
// single-flight boolean to make sure ticks never queue up behind a build
// that is still running. Its Start/Stop shape is adapted from the teacher's
// internal/dagit/sync.go FeedSyncer, generalized from a fixed poll loop with
// no overlap guard to one that tracks an in-progress build, supports a
// fail-fast manual trigger, and reports drift-tolerant health.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quietridge/merklesentry/internal/apperr"
	"github.com/quietridge/merklesentry/internal/logging"
)

// BuildFunc runs one build-and-sync cycle. Implemented by the orchestrator.
type BuildFunc func(ctx context.Context) error

// Scheduler periodically invokes a BuildFunc, dropping ticks that arrive
// while a build is already in progress.
type Scheduler struct {
	interval time.Duration
	build    BuildFunc
	log      *logging.Component

	mu          sync.Mutex
	running     bool
	busy        bool
	lastAttempt time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Scheduler that calls build every interval.
func New(interval time.Duration, build BuildFunc, log *logging.Logger) *Scheduler {
	return &Scheduler{interval: interval, build: build, log: log.With("scheduler")}
}

// Start launches the timer goroutine. An immediate run is issued
// asynchronously so Start itself never blocks on the first build.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runTick(ctx)

	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				go s.runTick(ctx)
			}
		}
	}()
}

// Stop signals the scheduler to issue no further ticks. It returns once the
// stop has been issued; an in-flight build is allowed to finish on its own
// and Stop does not wait for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh := s.stopCh
	s.mu.Unlock()

	close(stopCh)
}

// AwaitIdle blocks until no build is in progress or ctx is done, whichever
// comes first, returning true if it observed the scheduler go idle. Used by
// the process shutdown path to give an in-flight build a bounded window to
// finish before storage connections are closed.
func (s *Scheduler) AwaitIdle(ctx context.Context) bool {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		busy := s.busy
		s.mu.Unlock()
		if !busy {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// runTick attempts a single build, dropping the tick with a warning if a
// build is already in progress.
func (s *Scheduler) runTick(ctx context.Context) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		s.log.Warnf("tick dropped: build already in progress")
		return
	}
	s.busy = true
	s.lastAttempt = time.Now().UTC()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	if err := s.build(ctx); err != nil {
		s.log.Errorf("build failed: %v", err)
	}
}

// Trigger runs a build immediately, outside the timer, failing fast with a
// Busy error if one is already in progress rather than waiting or queuing.
func (s *Scheduler) Trigger(ctx context.Context) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return apperr.New(apperr.KindBusy, "scheduler.Trigger", errBuildInProgress)
	}
	s.busy = true
	s.lastAttempt = time.Now().UTC()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	return s.build(ctx)
}

// Health reports whether the scheduler is currently healthy: it must be
// running, and the time since the last attempt must not exceed 1.5x the
// configured interval.
type Health struct {
	Running         bool      `json:"running"`
	Busy            bool      `json:"busy"`
	LastAttempt     time.Time `json:"lastAttempt,omitempty"`
	IntervalMinutes float64   `json:"intervalMinutes"`
	Healthy         bool      `json:"healthy"`
}

func (s *Scheduler) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := Health{
		Running:         s.running,
		Busy:            s.busy,
		LastAttempt:     s.lastAttempt,
		IntervalMinutes: s.interval.Minutes(),
	}
	if !s.running {
		h.Healthy = false
		return h
	}
	if s.lastAttempt.IsZero() {
		h.Healthy = true
		return h
	}
	maxDrift := time.Duration(float64(s.interval) * 1.5)
	h.Healthy = time.Since(s.lastAttempt) <= maxDrift
	return h
}

var errBuildInProgress = schedulerErr("build already in progress")

type schedulerErr string

func (e schedulerErr) Error() string { return string(e) }

// DescribeInterval renders the cron-mapping rule from SPEC_FULL.md §4.8 as a
// human-readable schedule description. The HTTP surface does not call it;
// the scheduler itself always runs on a ticker of the configured interval.
func DescribeInterval(minutes int) string {
	switch {
	case minutes == 1:
		return "every minute"
	case minutes < 60:
		return fmt.Sprintf("every %d minutes", minutes)
	case minutes%60 == 0:
		hours := minutes / 60
		if hours == 1 {
			return "every hour"
		}
		return fmt.Sprintf("every %d hours", hours)
	default:
		return fmt.Sprintf("every %d minutes", minutes)
	}
}
