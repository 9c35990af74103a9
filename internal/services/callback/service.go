// Package callback reconciles orders against payment confirmations pushed
// by the gateway.
package callback

import (
	"context"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/kevin07696/checkout-reconciler/internal/services/notification"
	"github.com/kevin07696/checkout-reconciler/internal/services/signature"
	"github.com/kevin07696/checkout-reconciler/internal/services/transition"
	"github.com/kevin07696/checkout-reconciler/pkg/observability"
)

// PromoCompensator returns promo usage held by an order
type PromoCompensator interface {
	Release(ctx context.Context, orderID string) (int, error)
}

// Service processes payment callbacks
type Service struct {
	verifier    *signature.Verifier
	applier     *transition.OrderApplier
	compensator PromoCompensator
	dispatcher  *notification.Dispatcher
	now         func() time.Time
	logger      ports.Logger
}

// NewService creates a new payment callback service
func NewService(
	verifier *signature.Verifier,
	applier *transition.OrderApplier,
	compensator PromoCompensator,
	dispatcher *notification.Dispatcher,
	logger ports.Logger,
) *Service {
	return &Service{
		verifier:    verifier,
		applier:     applier,
		compensator: compensator,
		dispatcher:  dispatcher,
		now:         time.Now,
		logger:      logger,
	}
}

// Process authenticates a callback and moves the order out of
// pending_payment. Duplicate and late deliveries return a non-processed
// outcome without error.
func (s *Service) Process(ctx context.Context, params map[string]string) (domain.CallbackResult, error) {
	cb := domain.ParsePaymentCallback(params)
	if cb.OrderID == "" {
		observability.RecordWebhook("payment", "rejected")
		return domain.CallbackResult{}, domain.ErrMissingField("orderId")
	}

	if err := s.verifier.Check(cb.Params, cb.Signature); err != nil {
		observability.RecordWebhook("payment", "rejected")
		s.logger.Warn("payment callback rejected",
			ports.String("order_id", cb.OrderID),
			ports.String("reason", string(domain.GetErrorCode(err))))
		return domain.CallbackResult{}, err
	}

	order, err := s.applier.Get(ctx, cb.OrderID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			observability.RecordWebhook("payment", "not_found")
		} else {
			observability.RecordWebhook("payment", "error")
		}
		return domain.CallbackResult{}, err
	}

	if order.PaymentStatus.IsTerminal() || order.Status == domain.OrderStatusCancelled || order.HasTransaction(cb.TransactionID) {
		observability.RecordWebhook("payment", string(domain.CallbackAlreadyProcessed))
		s.logger.Info("payment callback already processed",
			ports.String("order_id", order.ID),
			ports.String("payment_status", string(order.PaymentStatus)),
			ports.String("status", string(order.Status)))
		return domain.CallbackResult{
			Outcome:       domain.CallbackAlreadyProcessed,
			OrderID:       order.ID,
			PaymentStatus: order.PaymentStatus,
			Message:       "already processed",
		}, nil
	}

	outcome, ok := domain.MapPaymentStatus(cb.Status)
	if !ok {
		observability.RecordWebhook("payment", string(domain.CallbackIgnored))
		s.logger.Warn("payment callback with unknown status ignored",
			ports.String("order_id", order.ID),
			ports.String("gateway_status", string(cb.Status)))
		return domain.CallbackResult{
			Outcome:       domain.CallbackIgnored,
			OrderID:       order.ID,
			PaymentStatus: order.PaymentStatus,
			Message:       "status ignored",
		}, nil
	}

	result, err := s.applier.Apply(ctx, order.ID, domain.ExpectStatus(domain.OrderStatusPendingPayment), s.changeFor(outcome, cb))
	if err != nil {
		observability.RecordWebhook("payment", "error")
		s.logger.Error("payment transition failed",
			ports.String("order_id", order.ID),
			ports.Err(err))
		return domain.CallbackResult{}, err
	}

	if !result.Applied {
		observability.RecordWebhook("payment", string(domain.CallbackRaceLost))
		s.logger.Info("payment callback lost race, order already transitioned",
			ports.String("order_id", order.ID),
			ports.String("gateway_status", string(cb.Status)))
		return domain.CallbackResult{
			Outcome:       domain.CallbackRaceLost,
			OrderID:       order.ID,
			PaymentStatus: order.PaymentStatus,
			Message:       "already processed",
		}, nil
	}

	observability.RecordWebhook("payment", string(domain.CallbackProcessed))
	s.logger.Info("payment callback applied",
		ports.String("order_id", order.ID),
		ports.String("from_status", string(order.Status)),
		ports.String("to_status", string(result.Order.Status)),
		ports.String("payment_status", string(result.Order.PaymentStatus)),
		ports.Bool("applied", true))

	if outcome.Cancels && order.HasPromoCode() {
		// The sweeper never revisits a cancelled order, so the promo must
		// be returned here. The gateway still gets its 200 on failure.
		if _, err := s.compensator.Release(ctx, order.ID); err != nil {
			s.logger.Error("promo compensation failed",
				ports.String("order_id", order.ID),
				ports.String("promo_code", *order.PromoCode),
				ports.Err(err))
		}
	}

	if outcome.PaymentStatus.IsTerminal() {
		s.dispatcher.Dispatch(ctx, notification.ForOrder(outcome.Notification, result.Order))
	}

	return domain.CallbackResult{
		Outcome:       domain.CallbackProcessed,
		OrderID:       order.ID,
		PaymentStatus: result.Order.PaymentStatus,
		Message:       "processed",
	}, nil
}

func (s *Service) changeFor(outcome domain.PaymentOutcome, cb domain.PaymentCallback) domain.OrderChange {
	now := s.now()
	change := domain.OrderChange{
		Status:        outcome.Status,
		PaymentStatus: domain.Ptr(outcome.PaymentStatus),
	}
	// A pending callback must not record the transaction id, or the final
	// callback carrying the same id would be treated as a duplicate.
	if outcome.PaymentStatus.IsTerminal() && cb.TransactionID != "" {
		change.PaymentTransactionID = domain.Ptr(cb.TransactionID)
	}
	if outcome.PaymentStatus == domain.PaymentStatusPaid {
		change.PaidAt = &now
	}
	if outcome.Cancels {
		change.CancelledAt = &now
	}
	return change
}
