// Package scheduler runs the reconciliation jobs in-process on fixed
// intervals. Each tick takes a cross-instance lock so only one replica
// runs a given job at a time.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/kevin07696/checkout-reconciler/pkg/observability"
	"github.com/kevin07696/checkout-reconciler/pkg/resilience"
	"github.com/kevin07696/checkout-reconciler/pkg/shutdown"
	"go.uber.org/zap"
)

// Job is one periodic reconciliation job
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler owns one periodic worker per job
type Scheduler struct {
	locker   ports.Locker
	timeouts *resilience.TimeoutConfig
	logger   *zap.Logger

	mu      sync.Mutex
	jobs    []Job
	workers []*shutdown.PeriodicWorker
}

// New creates a scheduler. A nil locker runs jobs unguarded, which is only
// safe with a single instance.
func New(locker ports.Locker, timeouts *resilience.TimeoutConfig, logger *zap.Logger) *Scheduler {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Scheduler{locker: locker, timeouts: timeouts, logger: logger}
}

// Add registers a job. Jobs added after Start are not run.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("scheduler job needs a name and a run function")
	}
	if job.Interval <= 0 {
		return errors.New("scheduler job interval must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

// Start launches every registered job. Each runs once immediately.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locker == nil {
		s.logger.Warn("Scheduler running without a distributed lock")
	}
	for _, job := range s.jobs {
		w := shutdown.NewPeriodicWorker("scheduler."+job.Name, job.Interval, s.logger)
		w.Start(func(ctx context.Context) { s.tick(ctx, job) })
		s.workers = append(s.workers, w)
		s.logger.Info("Scheduled job",
			zap.String("job", job.Name),
			zap.Duration("interval", job.Interval),
		)
	}
}

// Shutdown stops every worker, waiting for runs in progress
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	workers := s.workers
	s.workers = nil
	s.mu.Unlock()

	var errs []error
	for _, w := range workers {
		if err := w.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// tick runs job once if this instance wins the lock
func (s *Scheduler) tick(parent context.Context, job Job) {
	ctx, cancel := s.timeouts.CronContext(parent)
	defer cancel()

	if s.locker != nil {
		release, acquired, err := s.locker.TryLock(ctx, job.Name, s.lockTTL(job))
		if err != nil {
			s.logger.Error("Failed to acquire job lock", zap.String("job", job.Name), zap.Error(err))
			observability.RecordSweepRun(job.Name, "lock_error")
			return
		}
		if !acquired {
			s.logger.Debug("Job lock held elsewhere, skipping tick", zap.String("job", job.Name))
			observability.RecordSweepRun(job.Name, "lock_held")
			return
		}
		defer func() {
			relCtx, relCancel := s.timeouts.NonCriticalContext(context.Background())
			defer relCancel()
			if err := release(relCtx); err != nil {
				s.logger.Warn("Failed to release job lock", zap.String("job", job.Name), zap.Error(err))
			}
		}()
	}

	started := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("Scheduled job failed",
			zap.String("job", job.Name),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("Scheduled job finished",
		zap.String("job", job.Name),
		zap.Duration("elapsed", time.Since(started)),
	)
}

// lockTTL covers the whole run so a slow job is never run twice concurrently
func (s *Scheduler) lockTTL(job Job) time.Duration {
	if s.timeouts.CronJob > job.Interval {
		return s.timeouts.CronJob
	}
	return job.Interval
}
