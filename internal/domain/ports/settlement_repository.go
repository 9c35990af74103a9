package ports

import (
	"context"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
)

// SettlementRepository defines the interface for merchant settlement persistence
type SettlementRepository interface {
	// FindOverdueCandidates returns pending settlements whose period ended before cutoff
	FindOverdueCandidates(ctx context.Context, db DBTX, cutoff time.Time, limit int) ([]*domain.Settlement, error)

	// SwapStatus moves a settlement from one status to another. False means it was no longer in from.
	SwapStatus(ctx context.Context, db DBTX, id string, from, to domain.SettlementStatus) (bool, error)

	// FindUnsettledDelivered returns delivered orders in period that no settlement claimed yet
	FindUnsettledDelivered(ctx context.Context, db DBTX, period domain.SettlementPeriod) ([]*domain.UnsettledOrder, error)

	// CreateForPeriod inserts the merchant's pending settlement for period.
	// False means the merchant already has a settlement for that period.
	CreateForPeriod(ctx context.Context, db DBTX, id string, draft *domain.SettlementDraft, period domain.SettlementPeriod) (*domain.Settlement, bool, error)

	// LinkOrders attaches still-unsettled orders to the settlement and returns how many it claimed
	LinkOrders(ctx context.Context, db DBTX, settlementID string, orderIDs []string) (int, error)
}
