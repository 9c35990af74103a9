package ports

import (
	"context"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
)

// PromoRepository defines the interface for the promo-code usage ledger
type PromoRepository interface {
	ListUsagesByOrder(ctx context.Context, db DBTX, orderID string) ([]*domain.PromoCodeUsage, error)

	// DeleteUsage returns false when the row was already gone
	DeleteUsage(ctx context.Context, db DBTX, usageID string) (bool, error)

	GetUsageCount(ctx context.Context, db DBTX, code string) (int, error)

	// CompareAndSwapUsageCount writes next only if the counter still equals expected
	CompareAndSwapUsageCount(ctx context.Context, db DBTX, code string, expected, next int) (bool, error)
}
