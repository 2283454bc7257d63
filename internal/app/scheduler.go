/**
 * @description
 * Cadence control for the sync engine. Run-once mode executes a single tick
 * and surfaces its error for the process exit code. Continuous mode drives
 * ticks on a fixed interval via cron, skips a tick while the previous one is
 * still running, and retries on a shorter recovery interval after transport
 * failures. Tenancy fan-out is entirely the reconciler's concern.
 *
 * @dependencies
 * - context, log/slog, sync, time: Standard Go libraries.
 * - github.com/robfig/cron/v3: Interval scheduling with panic recovery.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// TickRunner is the reconciler surface the scheduler drives.
type TickRunner interface {
	Run(ctx context.Context) (RunResult, error)
}

// Scheduler manages the sync cadence.
type Scheduler struct {
	runner   TickRunner
	logger   *slog.Logger
	interval time.Duration
	recovery time.Duration
	cron     *cron.Cron
	baseCtx  context.Context
	running  atomic.Bool

	mu         sync.Mutex
	retryTimer *time.Timer
	stopped    bool
	ticks      sync.WaitGroup
}

// NewScheduler creates a scheduler ticking every interval, with recovery as
// the shortened retry delay after transport-level failures.
func NewScheduler(runner TickRunner, logger *slog.Logger, interval, recovery time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if recovery <= 0 {
		recovery = 5 * time.Minute
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Scheduler{
		runner:   runner,
		logger:   logger,
		interval: interval,
		recovery: recovery,
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger))),
		baseCtx:  context.Background(),
	}
}

// RunOnce executes a single tick and returns its error, for run-once mode.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	result, err := s.runner.Run(ctx)
	if err != nil {
		return err
	}
	for _, g := range result.Groups {
		if g.Err != nil {
			return fmt.Errorf("credential group %d finished with status %s: %w", g.GroupID, g.Status, g.Err)
		}
	}
	return nil
}

// Start registers the interval job and starts the cron loop. ctx bounds every
// tick; cancel it before Stop for a graceful shutdown.
func (s *Scheduler) Start(ctx context.Context) error {
	s.baseCtx = ctx
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "interval", s.interval, "recovery_interval", s.recovery)

	// First tick immediately rather than one full interval from now.
	s.spawnTick()
	return nil
}

// TriggerNow runs a tick out of band (ops surface). A tick already in flight
// absorbs the request.
func (s *Scheduler) TriggerNow() {
	s.spawnTick()
}

// Stop cancels any pending recovery retry and stops the cron loop. The
// returned context is done when in-flight jobs have finished, including
// ticks launched outside cron (startup, ops trigger, recovery retry).
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	s.stopped = true
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	ctx, done := context.WithCancel(context.Background())
	go func() {
		defer done()
		<-cronCtx.Done()
		s.ticks.Wait()
	}()
	return ctx
}

// spawnTick runs a tick on its own goroutine, registered so Stop waits for
// it. After Stop the request is dropped.
func (s *Scheduler) spawnTick() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.ticks.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.ticks.Done()
		s.tick()
	}()
}

func (s *Scheduler) tick() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("previous sync tick still running; skipping")
		return
	}
	defer s.running.Store(false)

	ctx := s.baseCtx
	if ctx.Err() != nil {
		return
	}

	result, err := s.runner.Run(ctx)
	if err != nil || result.AllTransient() {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("sync tick failed; retrying on recovery interval",
			"recovery_interval", s.recovery, "error", err)
		s.scheduleRetry()
		return
	}
}

func (s *Scheduler) scheduleRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	s.retryTimer = time.AfterFunc(s.recovery, s.spawnTick)
}
