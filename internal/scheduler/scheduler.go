// Package scheduler wires up the cron job that periodically triggers an
// ingest run, and guards against overlapping runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"pace/ingest-service/internal/scraper"
)

// ErrRunInProgress is returned by Trigger when a run is already active here
// or on another replica.
var ErrRunInProgress = errors.New("ingest run already in progress")

// ErrStopped is returned by Trigger once Stop has been called.
var ErrStopped = errors.New("scheduler stopped")

// Runner executes one full ingest run; *scraper.Worker implements it.
type Runner interface {
	Run(ctx context.Context) scraper.RunStats
}

// Locker is a cross-process run lock; *RedisLock implements it.
type Locker interface {
	TryAcquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// Scheduler wraps robfig/cron and manages the ingest loop.
type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	locker   Locker
	schedule string
	running  atomic.Bool
	log      *zap.Logger

	// mu guards stopped and adds to triggered.
	mu        sync.Mutex
	stopped   bool
	triggered sync.WaitGroup

	// runCtx is the context runs started by cron or Trigger inherit.
	runCtx context.Context
}

// New creates a Scheduler firing on schedule (e.g. "@every 6h"). locker may be nil.
func New(runner Runner, locker Locker, schedule string, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron:     cron.New(),
		runner:   runner,
		locker:   locker,
		schedule: schedule,
		log:      log.With(zap.String("component", "scheduler")),
		runCtx:   context.Background(),
	}
}

// Start registers the job and starts the scheduler. It also runs once
// immediately so the feed is populated without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runCtx = ctx
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduled run skipped", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("cron.AddFunc(%q): %w", s.schedule, err)
	}

	s.cron.Start()
	s.log.Info("cron started", zap.String("schedule", s.schedule))

	if err := s.Trigger(); err != nil {
		s.log.Warn("startup run skipped", zap.Error(err))
	}
	return nil
}

// Stop halts the cron loop and waits for cron jobs and triggered runs to
// return. Later Trigger calls fail with ErrStopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.triggered.Wait()
	s.log.Info("cron stopped")
}

// Running reports whether a run is active in this process.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Trigger starts a run in the background. The in-process flag is claimed
// before returning, so a second call fails with ErrRunInProgress until the
// run ends.
func (s *Scheduler) Trigger() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}

	s.triggered.Add(1)
	go func() {
		defer s.triggered.Done()
		defer s.running.Store(false)
		if _, err := s.runLocked(s.runCtx); err != nil {
			s.log.Warn("triggered run skipped", zap.Error(err))
		}
	}()
	return nil
}

// RunOnce performs one run synchronously, holding both the in-process flag
// and the shared lock.
func (s *Scheduler) RunOnce(ctx context.Context) (scraper.RunStats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return scraper.RunStats{}, ErrRunInProgress
	}
	defer s.running.Store(false)
	return s.runLocked(ctx)
}

// runLocked runs under the shared lock. The caller holds the running flag.
func (s *Scheduler) runLocked(ctx context.Context) (scraper.RunStats, error) {
	if s.locker != nil {
		release, ok, err := s.locker.TryAcquire(ctx)
		if err != nil {
			return scraper.RunStats{}, err
		}
		if !ok {
			return scraper.RunStats{}, ErrRunInProgress
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("lock release failed", zap.Error(err))
			}
		}()
	}

	s.log.Info("ingest cycle started")
	stats := s.runner.Run(ctx)
	s.log.Info("ingest cycle complete", zap.String("run_id", stats.RunID))
	return stats, nil
}
