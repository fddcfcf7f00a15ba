package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quietridge/merklesentry/internal/apperr"
	"github.com/quietridge/merklesentry/internal/logging"
)

func TestScheduler_StartRunsImmediateBuild(t *testing.T) {
	var calls int32
	s := New(time.Hour, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, logging.Default())

	s.Start(context.Background())
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt32(&calls) == 0 {
		t.Fatal("expected an immediate build at startup")
	}
}

func TestScheduler_TriggerFailsFastWhenBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := New(time.Hour, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}, logging.Default())

	go func() { _ = s.Trigger(context.Background()) }()
	<-started

	err := s.Trigger(context.Background())
	if err == nil {
		t.Fatal("expected Busy error from overlapping trigger")
	}
	if !apperr.Is(err, apperr.KindBusy) {
		t.Fatalf("expected KindBusy, got %v", err)
	}
	close(release)
}

func TestScheduler_TriggerSucceedsAfterPriorBuildCompletes(t *testing.T) {
	s := New(time.Hour, func(ctx context.Context) error { return nil }, logging.Default())
	if err := s.Trigger(context.Background()); err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	if err := s.Trigger(context.Background()); err != nil {
		t.Fatalf("second trigger: %v", err)
	}
}

func TestScheduler_HealthUnhealthyWhenNotRunning(t *testing.T) {
	s := New(time.Minute, func(ctx context.Context) error { return nil }, logging.Default())
	h := s.Health()
	if h.Healthy {
		t.Fatal("scheduler never started should be unhealthy")
	}
}

func TestScheduler_HealthHealthyImmediatelyAfterStart(t *testing.T) {
	s := New(time.Hour, func(ctx context.Context) error { return nil }, logging.Default())
	s.Start(context.Background())
	defer s.Stop()

	h := s.Health()
	if !h.Running {
		t.Fatal("expected Running true after Start")
	}
	if !h.Healthy {
		t.Fatal("expected Healthy true immediately after Start")
	}
}

func TestScheduler_StopDoesNotBlockOnInFlightBuild(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := New(time.Hour, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}, logging.Default())

	s.Start(context.Background())
	<-started

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on in-flight build")
	}
	close(release)
}

func TestScheduler_AwaitIdleReturnsTrueOnceBuildCompletes(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := New(time.Hour, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}, logging.Default())

	go func() { _ = s.Trigger(context.Background()) }()
	<-started

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !s.AwaitIdle(ctx) {
		t.Fatal("expected AwaitIdle to observe the scheduler go idle")
	}
}

func TestScheduler_AwaitIdleTimesOutOnStuckBuild(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := New(time.Hour, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}, logging.Default())
	defer close(release)

	go func() { _ = s.Trigger(context.Background()) }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if s.AwaitIdle(ctx) {
		t.Fatal("expected AwaitIdle to time out while build is still running")
	}
}

func TestDescribeInterval_CronMappingRule(t *testing.T) {
	cases := map[int]string{
		1:   "every minute",
		5:   "every 5 minutes",
		59:  "every 59 minutes",
		60:  "every hour",
		120: "every 2 hours",
		90:  "every 90 minutes",
	}
	for minutes, want := range cases {
		if got := DescribeInterval(minutes); got != want {
			t.Errorf("DescribeInterval(%d) = %q, want %q", minutes, got, want)
		}
	}
}
