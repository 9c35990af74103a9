package refund

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

// CallbackService reconciles asynchronous refund confirmations
type CallbackService struct {
	verifier   *signature.Verifier
	applier    *transition.OrderApplier
	dispatcher *notification.Dispatcher
	now        func() time.Time
	logger     ports.Logger
}

// NewCallbackService creates a new refund callback service
func NewCallbackService(
	verifier *signature.Verifier,
	applier *transition.OrderApplier,
	dispatcher *notification.Dispatcher,
	logger ports.Logger,
) *CallbackService {
	return &CallbackService{
		verifier:   verifier,
		applier:    applier,
		dispatcher: dispatcher,
		now:        time.Now,
		logger:     logger,
	}
}

// Process finalizes a confirmed refund or reverts a denied one. Ambiguous
// statuses are ignored.
func (s *CallbackService) Process(ctx context.Context, params map[string]string) (domain.CallbackResult, error) {
	cb := domain.ParseRefundCallback(params)
	if cb.OrderID == "" {
		observability.RecordWebhook("refund", "rejected")
		return domain.CallbackResult{}, domain.ErrMissingField("orderId")
	}

	if err := s.verifier.Check(cb.Params, cb.Signature); err != nil {
		observability.RecordWebhook("refund", "rejected")
		s.logger.Warn("refund callback rejected",
			ports.String("order_id", cb.OrderID),
			ports.String("reason", string(domain.GetErrorCode(err))))
		return domain.CallbackResult{}, err
	}

	order, err := s.applier.Get(ctx, cb.OrderID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			observability.RecordWebhook("refund", "not_found")
		} else {
			observability.RecordWebhook("refund", "error")
		}
		return domain.CallbackResult{}, err
	}

	var result domain.CallbackResult
	switch {
	case cb.IsSuccess():
		result, err = s.confirm(ctx, order, cb)
	case cb.IsFailure():
		result, err = s.revert(ctx, order, cb)
	default:
		s.logger.Warn("refund callback with unhandled status ignored",
			ports.String("order_id", order.ID),
			ports.String("refund_status", string(cb.Status)))
		result = s.result(domain.CallbackIgnored, order, "status ignored")
	}
	if err != nil {
		observability.RecordWebhook("refund", "error")
		return domain.CallbackResult{}, err
	}

	observability.RecordWebhook("refund", string(result.Outcome))
	return result, nil
}

func (s *CallbackService) confirm(ctx context.Context, order *domain.Order, cb domain.RefundCallback) (domain.CallbackResult, error) {
	if order.PaymentStatus == domain.PaymentStatusRefunded {
		s.logger.Info("refund already recorded",
			ports.String("order_id", order.ID),
			ports.String("refund_id", order.StoredRefundID()))
		return s.result(domain.CallbackAlreadyProcessed, order, "already processed"), nil
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		s.logger.Warn("refund confirmation for unpaid order ignored",
			ports.String("order_id", order.ID),
			ports.String("payment_status", string(order.PaymentStatus)))
		return s.result(domain.CallbackIgnored, order, "order not paid"), nil
	}

	amount := order.Total
	if cb.Amount != nil && cb.Amount.IsPositive() && !cb.Amount.GreaterThan(order.Total) {
		amount = *cb.Amount
	}
	now := s.now()
	change := domain.OrderChange{
		Status:          domain.Ptr(domain.OrderStatusRefunded),
		PaymentStatus:   domain.Ptr(domain.PaymentStatusRefunded),
		RefundAmount:    &amount,
		RefundedAt:      &now,
		PreRefundStatus: domain.Ptr(order.Status),
	}
	if ref := cb.Reference(); ref != "" {
		change.RefundTransactionID = &ref
	}

	applied, err := s.applier.Apply(ctx, order.ID, domain.ExpectPaymentStatus(domain.PaymentStatusPaid), change)
	if err != nil {
		return domain.CallbackResult{}, err
	}
	if !applied.Applied {
		return s.result(domain.CallbackRaceLost, order, "already processed"), nil
	}

	s.logger.Info("refund confirmed by gateway",
		ports.String("order_id", order.ID),
		ports.String("refund_id", cb.Reference()),
		ports.String("from_status", string(order.Status)))
	s.dispatcher.Dispatch(ctx, notification.ForOrder(domain.NotificationRefundProcessed, applied.Order))
	return s.result(domain.CallbackProcessed, applied.Order, "refund confirmed"), nil
}

func (s *CallbackService) revert(ctx context.Context, order *domain.Order, cb domain.RefundCallback) (domain.CallbackResult, error) {
	restore := domain.OrderStatusDelivered
	if order.PreRefundStatus != nil && *order.PreRefundStatus != "" {
		restore = *order.PreRefundStatus
	}

	applied, err := s.applier.Apply(ctx, order.ID, domain.ExpectPaymentStatus(domain.PaymentStatusRefunded), domain.OrderChange{
		Status:        &restore,
		PaymentStatus: domain.Ptr(domain.PaymentStatusPaid),
		ClearRefund:   true,
	})
	if err != nil {
		return domain.CallbackResult{}, err
	}
	if !applied.Applied {
		s.logger.Info("refund failure already reconciled",
			ports.String("order_id", order.ID),
			ports.String("payment_status", string(order.PaymentStatus)))
		return s.result(domain.CallbackAlreadyProcessed, order, "already processed"), nil
	}

	s.logger.Warn("refund denied by gateway, order reverted to paid",
		ports.String("order_id", order.ID),
		ports.String("refund_id", cb.Reference()),
		ports.String("gateway_error", cb.GatewayError),
		ports.String("restored_status", string(restore)))
	s.dispatcher.Dispatch(ctx, notification.ForOrder(domain.NotificationRefundFailed, applied.Order))
	return s.result(domain.CallbackProcessed, applied.Order, "refund reverted"), nil
}

func (s *CallbackService) result(outcome domain.CallbackOutcome, order *domain.Order, msg string) domain.CallbackResult {
	return domain.CallbackResult{
		Outcome:       outcome,
		OrderID:       order.ID,
		PaymentStatus: order.PaymentStatus,
		Message:       msg,
	}
}
