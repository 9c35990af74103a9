// Package expiry cancels checkouts and quotes that were abandoned before
// the customer finished them.
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

const (
	DefaultAbandonThreshold = 30 * time.Minute
	DefaultBatchSize        = 500
)

// PromoCompensator returns promo usage held by an order
type PromoCompensator interface {
	Release(ctx context.Context, orderID string) (int, error)
}

// Sweeper cancels online orders whose payment never completed
type Sweeper struct {
	db          ports.DBPort
	orders      ports.OrderRepository
	applier     *transition.OrderApplier
	compensator PromoCompensator
	dispatcher  *notification.Dispatcher
	threshold   time.Duration
	batchSize   int
	now         func() time.Time
	logger      ports.Logger
}

// NewSweeper creates a new expiry sweeper. Zero threshold or batch size use the defaults.
func NewSweeper(
	db ports.DBPort,
	orders ports.OrderRepository,
	applier *transition.OrderApplier,
	compensator PromoCompensator,
	dispatcher *notification.Dispatcher,
	threshold time.Duration,
	batchSize int,
	logger ports.Logger,
) *Sweeper {
	if threshold <= 0 {
		threshold = DefaultAbandonThreshold
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Sweeper{
		db:          db,
		orders:      orders,
		applier:     applier,
		compensator: compensator,
		dispatcher:  dispatcher,
		threshold:   threshold,
		batchSize:   batchSize,
		now:         time.Now,
		logger:      logger,
	}
}

// Sweep cancels every candidate selected by req. Per-order failures are
// collected in the report; only a failed candidate query returns an error.
func (s *Sweeper) Sweep(ctx context.Context, req domain.SweepRequest) (domain.SweepReport, error) {
	report := domain.SweepReport{Errors: []string{}}

	filter, err := s.resolve(req)
	if err != nil {
		return report, err
	}

	candidates, err := s.orders.FindStalePendingPayment(ctx, s.db.GetDB(), filter)
	if err != nil {
		observability.RecordSweepRun(domain.JobExpirePendingPayments, "failed")
		return report, fmt.Errorf("find stale orders: %w", err)
	}
	report.Found = len(candidates)

	for _, order := range candidates {
		s.expire(ctx, order, &report)
	}

	observability.RecordSweepRows(domain.JobExpirePendingPayments, "transitioned", report.Cancelled)
	observability.RecordSweepRows(domain.JobExpirePendingPayments, "skipped", report.Skipped)
	observability.RecordSweepRows(domain.JobExpirePendingPayments, "error", len(report.Errors))
	observability.RecordSweepRun(domain.JobExpirePendingPayments, runStatus(len(report.Errors)))

	s.logger.Info("expiry sweep completed",
		ports.Int("found", report.Found),
		ports.Int("cancelled", report.Cancelled),
		ports.Int("skipped", report.Skipped),
		ports.Int("errors", len(report.Errors)))

	return report, nil
}

func (s *Sweeper) expire(ctx context.Context, order *domain.Order, report *domain.SweepReport) {
	now := s.now()
	result, err := s.applier.Apply(ctx, order.ID, domain.ExpectStatus(domain.OrderStatusPendingPayment), domain.OrderChange{
		Status:        domain.Ptr(domain.OrderStatusCancelled),
		PaymentStatus: domain.Ptr(domain.PaymentStatusFailed),
		CancelledAt:   &now,
	})
	if err != nil {
		s.logger.Error("failed to expire order",
			ports.String("order_id", order.ID),
			ports.Err(err))
		report.Errors = append(report.Errors, fmt.Sprintf("order %s: %v", order.ID, err))
		return
	}
	if !result.Applied {
		report.Skipped++
		return
	}
	report.Cancelled++

	s.logger.Info("order expired",
		ports.String("order_id", order.ID),
		ports.String("from_status", string(domain.OrderStatusPendingPayment)),
		ports.String("to_status", string(domain.OrderStatusCancelled)),
		ports.Bool("applied", true))

	if order.HasPromoCode() {
		if _, err := s.compensator.Release(ctx, order.ID); err != nil {
			s.logger.Error("promo compensation failed",
				ports.String("order_id", order.ID),
				ports.String("promo_code", *order.PromoCode),
				ports.Err(err))
			report.Errors = append(report.Errors, fmt.Sprintf("order %s promo compensation: %v", order.ID, err))
		}
	}

	s.dispatcher.Dispatch(ctx, notification.ForOrder(domain.NotificationPaymentExpired, result.Order))
}

// resolve turns a sweep request into a candidate filter. No request may
// select orders younger than the abandonment threshold.
func (s *Sweeper) resolve(req domain.SweepRequest) (ports.StaleOrderFilter, error) {
	cutoff := s.now().Add(-s.threshold)

	switch r := req.(type) {
	case nil:
		return ports.StaleOrderFilter{CreatedBefore: cutoff, Limit: s.batchSize}, nil
	case domain.SweepStale:
		if r.OlderThan > s.threshold {
			cutoff = s.now().Add(-r.OlderThan)
		}
		return ports.StaleOrderFilter{CreatedBefore: cutoff, Limit: s.limit(r.Limit)}, nil
	case domain.SweepOrders:
		if len(r.IDs) == 0 {
			return ports.StaleOrderFilter{}, domain.ErrMissingField("orderIds")
		}
		return ports.StaleOrderFilter{CreatedBefore: cutoff, IDs: r.IDs, Limit: len(r.IDs)}, nil
	case domain.SweepCatchup:
		if r.Since.IsZero() {
			return ports.StaleOrderFilter{}, domain.ErrMissingField("since")
		}
		since := r.Since
		return ports.StaleOrderFilter{CreatedAfter: &since, CreatedBefore: cutoff, Limit: s.limit(r.Limit)}, nil
	default:
		return ports.StaleOrderFilter{}, domain.NewDomainError(domain.ErrorCodeValidationFailed,
			fmt.Sprintf("unsupported sweep request %T", req))
	}
}

func (s *Sweeper) limit(requested int) int {
	if requested <= 0 || requested > s.batchSize {
		return s.batchSize
	}
	return requested
}

func runStatus(errorCount int) string {
	if errorCount > 0 {
		return "partial"
	}
	return "ok"
}
