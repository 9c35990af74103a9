package ports

import (
	"context"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
)

// CustomOrderRepository defines the interface for quoted custom orders
type CustomOrderRepository interface {
	FindExpiredQuotes(ctx context.Context, db DBTX, quotedBefore time.Time, limit int) ([]*domain.CustomOrder, error)

	SwapStatus(ctx context.Context, db DBTX, id string, from, to domain.CustomOrderStatus) (bool, error)
}
