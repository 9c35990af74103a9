// Package refund reverses captured online payments at the gateway and
// reconciles the asynchronous refund confirmations that follow.
package refund

import (
	"context"
	"errors"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/kevin07696/checkout-reconciler/internal/services/notification"
	"github.com/kevin07696/checkout-reconciler/internal/services/transition"
	"github.com/kevin07696/checkout-reconciler/pkg/observability"
	"github.com/kevin07696/checkout-reconciler/pkg/resilience"
	"github.com/shopspring/decimal"
)

// Orchestrator issues administrator refunds
type Orchestrator struct {
	applier    *transition.OrderApplier
	gateway    ports.RefundGateway
	dispatcher *notification.Dispatcher
	timeouts   *resilience.TimeoutConfig
	now        func() time.Time
	logger     ports.Logger
}

// NewOrchestrator creates a new refund orchestrator
func NewOrchestrator(
	applier *transition.OrderApplier,
	gateway ports.RefundGateway,
	dispatcher *notification.Dispatcher,
	timeouts *resilience.TimeoutConfig,
	logger ports.Logger,
) *Orchestrator {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Orchestrator{
		applier:    applier,
		gateway:    gateway,
		dispatcher: dispatcher,
		timeouts:   timeouts,
		now:        time.Now,
		logger:     logger,
	}
}

// Refund reverses amount (the order total when nil) of a paid online order.
// The gateway is called once; a failed call leaves the order untouched and
// is reported to the caller to retry.
func (o *Orchestrator) Refund(ctx context.Context, orderID string, amount *decimal.Decimal, reason string) (domain.RefundResult, error) {
	order, err := o.applier.Get(ctx, orderID)
	if err != nil {
		return domain.RefundResult{}, err
	}

	if err := order.CheckRefundable(); err != nil {
		observability.RecordRefund("rejected")
		return domain.RefundResult{}, err
	}
	refundAmount, err := order.ResolveRefundAmount(amount)
	if err != nil {
		observability.RecordRefund("rejected")
		return domain.RefundResult{}, err
	}

	resp, err := o.callGateway(ctx, order, refundAmount, reason)
	if err != nil {
		observability.RecordRefund("gateway_failed")
		o.logger.Error("gateway refund failed",
			ports.String("order_id", order.ID),
			ports.String("amount", refundAmount.StringFixed(2)),
			ports.Err(err))
		return domain.RefundResult{}, err
	}

	// Money has moved. The order update must not depend on the caller
	// staying connected, or a retry would refund twice.
	commitCtx, cancel := o.timeouts.CommitContext(ctx)
	defer cancel()

	now := o.now()
	result, err := o.applier.Apply(commitCtx, order.ID, domain.ExpectPaymentStatus(domain.PaymentStatusPaid), domain.OrderChange{
		Status:              domain.Ptr(domain.OrderStatusRefunded),
		PaymentStatus:       domain.Ptr(domain.PaymentStatusRefunded),
		RefundAmount:        &refundAmount,
		RefundTransactionID: domain.Ptr(resp.RefundID),
		RefundedAt:          &now,
		PreRefundStatus:     domain.Ptr(order.Status),
	})
	if err != nil {
		observability.RecordRefund("store_failed")
		o.logger.Error("refund applied at gateway but order update failed",
			ports.String("order_id", order.ID),
			ports.String("gateway_refund_id", resp.RefundID),
			ports.Bool("requires_manual_reconciliation", true),
			ports.Err(err))
		return domain.RefundResult{}, domain.WrapError(domain.ErrorCodeRefundStoreFailed,
			"refund succeeded at gateway but order update failed", err).
			WithDetail("order_id", order.ID).
			WithDetail("refund_id", resp.RefundID)
	}

	if !result.Applied {
		return o.lostRace(commitCtx, order.ID, resp.RefundID, refundAmount), nil
	}

	observability.RecordRefund("refunded")
	o.logger.Info("refund completed",
		ports.String("order_id", order.ID),
		ports.String("refund_id", resp.RefundID),
		ports.String("amount", refundAmount.StringFixed(2)),
		ports.String("from_status", string(order.Status)))

	o.dispatcher.Dispatch(ctx, notification.ForOrder(domain.NotificationRefundProcessed, result.Order))

	return domain.RefundResult{
		OrderID:  order.ID,
		RefundID: resp.RefundID,
		Amount:   refundAmount.StringFixed(2),
	}, nil
}

func (o *Orchestrator) callGateway(ctx context.Context, order *domain.Order, amount decimal.Decimal, reason string) (*ports.RefundResponse, error) {
	ctx, cancel := o.timeouts.ExternalAPIContext(ctx)
	defer cancel()

	resp, err := o.gateway.Refund(ctx, &ports.RefundRequest{
		TransactionID: *order.PaymentTransactionID,
		OrderID:       order.ID,
		Currency:      order.Currency,
		Reason:        reason,
		Amount:        amount,
	})
	if err != nil {
		if domain.IsGatewayError(err) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.WrapError(domain.ErrorCodeGatewayTimeout, "refund gateway timed out", err).
				WithDetail("order_id", order.ID)
		}
		return nil, domain.WrapError(domain.ErrorCodeRefundGatewayFailed, "refund gateway call failed", err).
			WithDetail("order_id", order.ID)
	}
	if resp == nil || resp.RefundID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeRefundGatewayFailed, "refund gateway returned no refund id").
			WithDetail("order_id", order.ID)
	}
	return resp, nil
}

// lostRace handles a refund the gateway accepted for an order another
// actor already moved out of paid. Money has moved either way, so the
// result is success with the stored refund id, flagged for reconciliation.
func (o *Orchestrator) lostRace(ctx context.Context, orderID, gatewayRefundID string, amount decimal.Decimal) domain.RefundResult {
	observability.RecordRefund("already_refunded")

	existingRefundID := ""
	current, err := o.applier.Get(ctx, orderID)
	if err == nil {
		existingRefundID = current.StoredRefundID()
	}

	o.logger.Error("refund applied at gateway but order already transitioned",
		ports.String("order_id", orderID),
		ports.String("gateway_refund_id", gatewayRefundID),
		ports.String("existing_refund_id", existingRefundID),
		ports.Bool("requires_manual_reconciliation", true))

	refundID := existingRefundID
	if refundID == "" {
		refundID = gatewayRefundID
	}
	return domain.RefundResult{
		OrderID:         orderID,
		RefundID:        refundID,
		Amount:          amount.StringFixed(2),
		AlreadyRefunded: true,
	}
}
