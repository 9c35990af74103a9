// Package transition applies guarded state changes. Every write to a
// payment-affecting field goes through a compare-and-swap so concurrent
// actors (callbacks, sweeps, refunds) can never overwrite each other.
package transition

import (
	"context"
	"fmt"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/kevin07696/checkout-reconciler/pkg/observability"
)

const (
	resultApplied = "applied"
	resultSkipped = "skipped"
	resultError   = "error"
)

// OrderApplier performs conditional order transitions
type OrderApplier struct {
	db     ports.DBPort
	orders ports.OrderRepository
	logger ports.Logger
}

// NewOrderApplier creates a new order transition applier
func NewOrderApplier(db ports.DBPort, orders ports.OrderRepository, logger ports.Logger) *OrderApplier {
	return &OrderApplier{
		db:     db,
		orders: orders,
		logger: logger,
	}
}

// Apply writes change only if the guarded column still holds the expected
// value. Applied=false means another actor got there first.
func (a *OrderApplier) Apply(ctx context.Context, id string, guard domain.OrderGuard, change domain.OrderChange) (domain.TransitionResult, error) {
	return a.ApplyWith(ctx, a.db.GetDB(), id, guard, change)
}

// ApplyWith is Apply on an explicit executor, for use inside a transaction
func (a *OrderApplier) ApplyWith(ctx context.Context, db ports.DBTX, id string, guard domain.OrderGuard, change domain.OrderChange) (domain.TransitionResult, error) {
	order, err := a.orders.CompareAndSwap(ctx, db, id, guard, change)
	if err != nil {
		observability.RecordTransition("order", resultError)
		return domain.TransitionResult{}, fmt.Errorf("transition order %s: %w", id, err)
	}

	if order == nil {
		observability.RecordTransition("order", resultSkipped)
		a.logger.Debug("order transition not applied",
			ports.String("order_id", id),
			ports.String("guard_field", string(guard.Field)),
			ports.String("expected", guard.Value))
		return domain.TransitionResult{Applied: false}, nil
	}

	observability.RecordTransition("order", resultApplied)
	return domain.TransitionResult{Order: order, Applied: true}, nil
}

// Get reads the current order state
func (a *OrderApplier) Get(ctx context.Context, id string) (*domain.Order, error) {
	return a.orders.GetByID(ctx, a.db.GetDB(), id)
}
