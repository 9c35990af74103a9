// Package notification composes customer notifications and delivers them
// without blocking the transition that triggered them.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/kevin07696/checkout-reconciler/pkg/resilience"
	"github.com/kevin07696/checkout-reconciler/pkg/shutdown"
)

// Dispatcher sends notifications best-effort. Delivery failures are logged
// and never change the outcome of the operation that produced them.
type Dispatcher struct {
	notifier ports.Notifier
	tracker  *shutdown.InFlightTracker
	timeouts *resilience.TimeoutConfig
	logger   ports.Logger
}

// NewDispatcher creates a dispatcher. With a nil tracker deliveries run
// synchronously on the caller's goroutine.
func NewDispatcher(notifier ports.Notifier, tracker *shutdown.InFlightTracker, timeouts *resilience.TimeoutConfig, logger ports.Logger) *Dispatcher {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Dispatcher{
		notifier: notifier,
		tracker:  tracker,
		timeouts: timeouts,
		logger:   logger,
	}
}

// Dispatch delivers n. It returns immediately when a tracker is configured.
func (d *Dispatcher) Dispatch(ctx context.Context, n domain.Notification) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	if d.tracker == nil {
		d.deliver(ctx, n)
		return
	}
	if !d.tracker.Go(ctx, func(ctx context.Context) { d.deliver(ctx, n) }) {
		d.logger.Warn("notification dropped during shutdown",
			ports.String("type", string(n.Type)),
			ports.String("order_id", n.RelatedOrderID))
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n domain.Notification) {
	ctx, cancel := d.timeouts.NonCriticalContext(ctx)
	defer cancel()

	if err := d.notifier.Notify(ctx, n); err != nil {
		d.logger.Warn("notification delivery failed",
			ports.String("type", string(n.Type)),
			ports.String("user_id", n.UserID),
			ports.String("order_id", n.RelatedOrderID),
			ports.Err(err))
	}
}
