package shutdown

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InFlightTracker counts work that shutdown must wait for: cron runs and
// notification deliveries. Once Shutdown starts, new work is refused.
type InFlightTracker struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	draining chan struct{}
	logger   *zap.Logger
	name     string
}

// NewInFlightTracker creates a new in-flight work tracker
func NewInFlightTracker(name string, logger *zap.Logger) *InFlightTracker {
	return &InFlightTracker{
		draining: make(chan struct{}),
		logger:   logger,
		name:     name,
	}
}

// begin registers one unit of work. The lock orders it against Shutdown
// closing draining, so wg.Add never races wg.Wait.
func (t *InFlightTracker) begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.IsShuttingDown() {
		return false
	}
	t.wg.Add(1)
	return true
}

// Go runs fn on a new goroutine. Returns false without running fn when
// shutdown is in progress.
func (t *InFlightTracker) Go(ctx context.Context, fn func(context.Context)) bool {
	if !t.begin() {
		return false
	}
	go func() {
		defer t.wg.Done()
		fn(ctx)
	}()
	return true
}

// RunWithContext runs fn on the calling goroutine. Returns false without
// running fn when shutdown is in progress.
func (t *InFlightTracker) RunWithContext(ctx context.Context, fn func(context.Context)) bool {
	if !t.begin() {
		return false
	}
	defer t.wg.Done()
	fn(ctx)
	return true
}

// IsShuttingDown reports whether Shutdown has been called
func (t *InFlightTracker) IsShuttingDown() bool {
	select {
	case <-t.draining:
		return true
	default:
		return false
	}
}

// Shutdown refuses new work and waits for running work until ctx expires
func (t *InFlightTracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	if !t.IsShuttingDown() {
		close(t.draining)
	}
	t.mu.Unlock()

	t.logger.Info("Draining in-flight work", zap.String("tracker", t.name))
	if err := waitGroupWithContext(ctx, &t.wg); err != nil {
		t.logger.Warn("In-flight work did not finish before the deadline",
			zap.String("tracker", t.name),
		)
		return err
	}
	t.logger.Info("In-flight work drained", zap.String("tracker", t.name))
	return nil
}

// PeriodicWorker runs work immediately and then on every tick until shut down.
// A tick that fires while work is running is dropped.
type PeriodicWorker struct {
	name     string
	interval time.Duration
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPeriodicWorker creates a periodic worker. Nothing runs until Start.
func NewPeriodicWorker(name string, interval time.Duration, logger *zap.Logger) *PeriodicWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &PeriodicWorker{
		name:     name,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutine. work must return when ctx is cancelled.
func (w *PeriodicWorker) Start(work func(ctx context.Context)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.logger.Info("Periodic worker started",
			zap.String("worker", w.name),
			zap.Duration("interval", w.interval),
		)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		work(w.ctx)
		for {
			select {
			case <-w.ctx.Done():
				w.logger.Info("Periodic worker stopped", zap.String("worker", w.name))
				return
			case <-ticker.C:
				work(w.ctx)
			}
		}
	}()
}

// Shutdown cancels the worker context and waits for the current run until ctx expires
func (w *PeriodicWorker) Shutdown(ctx context.Context) error {
	w.cancel()
	if err := waitGroupWithContext(ctx, &w.wg); err != nil {
		w.logger.Warn("Periodic worker shutdown timeout", zap.String("worker", w.name))
		return err
	}
	return nil
}

func waitGroupWithContext(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
