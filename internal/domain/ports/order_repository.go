package ports

import (
	"context"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
)

// StaleOrderFilter selects pending_payment orders created before CreatedBefore
type StaleOrderFilter struct {
	CreatedAfter  *time.Time
	CreatedBefore time.Time
	IDs           []string // Restricts the candidates when non-empty
	Limit         int
}

// OrderRepository defines the interface for order persistence.
// Payment-affecting fields are only written through CompareAndSwap.
type OrderRepository interface {
	GetByID(ctx context.Context, db DBTX, id string) (*domain.Order, error)

	FindStalePendingPayment(ctx context.Context, db DBTX, filter StaleOrderFilter) ([]*domain.Order, error)

	// CompareAndSwap applies change only if the guarded column still holds the
	// expected value. It returns the updated order, or nil when no row matched.
	CompareAndSwap(ctx context.Context, db DBTX, id string, guard domain.OrderGuard, change domain.OrderChange) (*domain.Order, error)
}
