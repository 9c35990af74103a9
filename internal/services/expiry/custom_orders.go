package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/kevin07696/checkout-reconciler/internal/services/notification"
	"github.com/kevin07696/checkout-reconciler/internal/services/transition"
	"github.com/kevin07696/checkout-reconciler/pkg/observability"
)

const DefaultQuoteTTL = 24 * time.Hour

// CustomOrderExpirer expires price quotes the customer never answered
type CustomOrderExpirer struct {
	db         ports.DBPort
	repo       ports.CustomOrderRepository
	dispatcher *notification.Dispatcher
	ttl        time.Duration
	batchSize  int
	now        func() time.Time
	logger     ports.Logger
}

// NewCustomOrderExpirer creates a new custom order expirer
func NewCustomOrderExpirer(
	db ports.DBPort,
	repo ports.CustomOrderRepository,
	dispatcher *notification.Dispatcher,
	ttl time.Duration,
	batchSize int,
	logger ports.Logger,
) *CustomOrderExpirer {
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &CustomOrderExpirer{
		db:         db,
		repo:       repo,
		dispatcher: dispatcher,
		ttl:        ttl,
		batchSize:  batchSize,
		now:        time.Now,
		logger:     logger,
	}
}

// Expire moves priced quotes older than the TTL to expired
func (e *CustomOrderExpirer) Expire(ctx context.Context) (domain.ExpiryReport, error) {
	report := domain.ExpiryReport{Errors: []string{}}

	quotes, err := e.repo.FindExpiredQuotes(ctx, e.db.GetDB(), e.now().Add(-e.ttl), e.batchSize)
	if err != nil {
		observability.RecordSweepRun(domain.JobExpireCustomOrders, "failed")
		return report, fmt.Errorf("find expired quotes: %w", err)
	}
	report.Found = len(quotes)

	for _, quote := range quotes {
		applied, err := transition.Swap[domain.CustomOrderStatus](ctx, e.repo, e.db.GetDB(), "custom_order", quote.ID,
			domain.CustomOrderPriced, domain.CustomOrderExpired)
		if err != nil {
			e.logger.Error("failed to expire custom order",
				ports.String("custom_order_id", quote.ID),
				ports.Err(err))
			report.Errors = append(report.Errors, fmt.Sprintf("custom order %s: %v", quote.ID, err))
			continue
		}
		if !applied {
			report.Skipped++
			continue
		}
		report.Expired++
		e.dispatcher.Dispatch(ctx, notification.ForCustomOrder(quote))
	}

	observability.RecordSweepRows(domain.JobExpireCustomOrders, "transitioned", report.Expired)
	observability.RecordSweepRows(domain.JobExpireCustomOrders, "skipped", report.Skipped)
	observability.RecordSweepRows(domain.JobExpireCustomOrders, "error", len(report.Errors))
	observability.RecordSweepRun(domain.JobExpireCustomOrders, runStatus(len(report.Errors)))

	e.logger.Info("custom order expiry completed",
		ports.Int("found", report.Found),
		ports.Int("expired", report.Expired),
		ports.Int("skipped", report.Skipped),
		ports.Int("errors", len(report.Errors)))

	return report, nil
}
