package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kumpeapps/mercury-bank-download-sub000/internal/domain"
)

// stubRunner counts ticks and serves canned results.
type stubRunner struct {
	runs    atomic.Int64
	result  RunResult
	err     error
	started chan struct{}
	release chan struct{}
}

func (r *stubRunner) Run(ctx context.Context) (RunResult, error) {
	r.runs.Add(1)
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	return r.result, r.err
}

func TestRunOnceSucceeds(t *testing.T) {
	runner := &stubRunner{result: RunResult{Groups: []GroupResult{{Status: domain.SyncStatusOK}}}}
	s := NewScheduler(runner, testLogger(), time.Hour, time.Minute)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.runs.Load() != 1 {
		t.Fatalf("expected exactly one run, got %d", runner.runs.Load())
	}
}

func TestRunOncePropagatesRunError(t *testing.T) {
	cause := errors.New("database down")
	runner := &stubRunner{err: cause}
	s := NewScheduler(runner, testLogger(), time.Hour, time.Minute)

	if err := s.RunOnce(context.Background()); !errors.Is(err, cause) {
		t.Fatalf("expected the run error, got %v", err)
	}
}

func TestRunOnceSurfacesTenantFailure(t *testing.T) {
	cause := errors.New("auth revoked")
	runner := &stubRunner{result: RunResult{Groups: []GroupResult{
		{GroupID: 1, Status: domain.SyncStatusOK},
		{GroupID: 2, Status: domain.SyncStatusAuth, Err: cause},
	}}}
	s := NewScheduler(runner, testLogger(), time.Hour, time.Minute)

	if err := s.RunOnce(context.Background()); !errors.Is(err, cause) {
		t.Fatalf("expected the tenant failure to surface, got %v", err)
	}
}

func TestTickSkipsWhilePreviousTickRuns(t *testing.T) {
	runner := &stubRunner{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	s := NewScheduler(runner, testLogger(), time.Hour, time.Minute)

	go s.tick()
	<-runner.started

	// A second tick while the first is in flight must be absorbed.
	s.tick()
	if got := runner.runs.Load(); got != 1 {
		t.Fatalf("expected the overlapping tick to be skipped, got %d runs", got)
	}
	close(runner.release)
}

func TestTickRetriesOnRecoveryIntervalAfterTransportFailure(t *testing.T) {
	runner := &stubRunner{result: RunResult{Groups: []GroupResult{{Status: domain.SyncStatusTransport}}}}
	s := NewScheduler(runner, testLogger(), time.Hour, 10*time.Millisecond)

	s.tick()
	if runner.runs.Load() != 1 {
		t.Fatalf("expected one immediate run, got %d", runner.runs.Load())
	}

	deadline := time.Now().Add(2 * time.Second)
	for runner.runs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("expected a retry on the recovery interval")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
}

func TestStopWaitsForInFlightTriggeredTick(t *testing.T) {
	runner := &stubRunner{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	s := NewScheduler(runner, testLogger(), time.Hour, time.Minute)

	s.TriggerNow()
	<-runner.started

	stopped := s.Stop()
	select {
	case <-stopped.Done():
		t.Fatal("Stop reported done while a triggered tick was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)
	select {
	case <-stopped.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Stop never completed after the tick finished")
	}
}

func TestTriggerNowAfterStopIsDropped(t *testing.T) {
	runner := &stubRunner{}
	s := NewScheduler(runner, testLogger(), time.Hour, time.Minute)
	<-s.Stop().Done()

	s.TriggerNow()
	time.Sleep(20 * time.Millisecond)
	if got := runner.runs.Load(); got != 0 {
		t.Fatalf("expected no runs after Stop, got %d", got)
	}
}

func TestTickDoesNotRetryAfterCleanRun(t *testing.T) {
	runner := &stubRunner{result: RunResult{Groups: []GroupResult{{Status: domain.SyncStatusOK}}}}
	s := NewScheduler(runner, testLogger(), time.Hour, 10*time.Millisecond)

	s.tick()
	time.Sleep(50 * time.Millisecond)
	if got := runner.runs.Load(); got != 1 {
		t.Fatalf("expected no retry after a clean run, got %d runs", got)
	}
}
