package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// GatewayPaymentStatus is the payment status reported by the gateway callback
type GatewayPaymentStatus string

const (
	GatewayPaymentSuccess   GatewayPaymentStatus = "SUCCESS"
	GatewayPaymentPending   GatewayPaymentStatus = "PENDING"
	GatewayPaymentFailed    GatewayPaymentStatus = "FAILED"
	GatewayPaymentCancelled GatewayPaymentStatus = "CANCELLED"
)

// GatewayRefundStatus is the refund status reported by the refund callback
type GatewayRefundStatus string

const (
	GatewayRefundSuccess  GatewayRefundStatus = "SUCCESS"
	GatewayRefundRefunded GatewayRefundStatus = "REFUNDED"
	GatewayRefundFailed   GatewayRefundStatus = "FAILED"
	GatewayRefundRejected GatewayRefundStatus = "REJECTED"
)

// SignatureParam is the callback field carrying the HMAC signature
const SignatureParam = "signature"

// PaymentCallback is a parsed payment confirmation from the gateway
type PaymentCallback struct {
	Params        map[string]string
	OrderID       string
	TransactionID string
	Signature     string
	Status        GatewayPaymentStatus
}

// ParsePaymentCallback extracts the callback fields, accepting the alternate
// names the gateway uses for redirect-style and server-to-server callbacks.
func ParsePaymentCallback(params map[string]string) PaymentCallback {
	return PaymentCallback{
		Params:        params,
		Status:        GatewayPaymentStatus(strings.ToUpper(firstNonEmpty(params, "paymentStatus", "status"))),
		OrderID:       firstNonEmpty(params, "orderId", "merchantOrderId"),
		TransactionID: firstNonEmpty(params, "transactionId", "kashierOrderId"),
		Signature:     params[SignatureParam],
	}
}

// PaymentOutcome is the target state for a gateway payment status
type PaymentOutcome struct {
	PaymentStatus PaymentStatus
	Status        *OrderStatus     // nil leaves the fulfillment status unchanged
	Notification  NotificationType // empty for non-terminal outcomes
	Cancels       bool
}

// MapPaymentStatus maps a gateway status to its domain outcome.
// ok is false for statuses the engine does not act on.
func MapPaymentStatus(s GatewayPaymentStatus) (outcome PaymentOutcome, ok bool) {
	switch s {
	case GatewayPaymentSuccess:
		return PaymentOutcome{
			PaymentStatus: PaymentStatusPaid,
			Status:        Ptr(OrderStatusPending),
			Notification:  NotificationPaymentSuccess,
		}, true
	case GatewayPaymentPending:
		return PaymentOutcome{
			PaymentStatus: PaymentStatusPending,
		}, true
	case GatewayPaymentFailed, GatewayPaymentCancelled:
		return PaymentOutcome{
			PaymentStatus: PaymentStatusFailed,
			Status:        Ptr(OrderStatusCancelled),
			Notification:  NotificationPaymentFailed,
			Cancels:       true,
		}, true
	default:
		return PaymentOutcome{}, false
	}
}

// RefundCallback is a parsed asynchronous refund confirmation
type RefundCallback struct {
	Params        map[string]string
	Amount        *decimal.Decimal
	OrderID       string
	RefundID      string
	TransactionID string
	Signature     string
	Status        GatewayRefundStatus
	GatewayError  string
}

// ParseRefundCallback extracts the refund callback fields
func ParseRefundCallback(params map[string]string) RefundCallback {
	cb := RefundCallback{
		Params:        params,
		OrderID:       params["orderId"],
		RefundID:      params["refundId"],
		TransactionID: params["transactionId"],
		Signature:     params[SignatureParam],
		Status:        GatewayRefundStatus(strings.ToUpper(firstNonEmpty(params, "refundStatus", "status"))),
		GatewayError:  params["error"],
	}
	if raw := params["amount"]; raw != "" {
		if amt, err := decimal.NewFromString(raw); err == nil {
			cb.Amount = &amt
		}
	}
	return cb
}

// Reference returns the gateway refund reference, falling back to the transaction id
func (c RefundCallback) Reference() string {
	if c.RefundID != "" {
		return c.RefundID
	}
	return c.TransactionID
}

// IsSuccess reports a confirmed refund
func (c RefundCallback) IsSuccess() bool {
	return c.Status == GatewayRefundSuccess || c.Status == GatewayRefundRefunded
}

// IsFailure reports a denied refund
func (c RefundCallback) IsFailure() bool {
	return c.Status == GatewayRefundFailed || c.Status == GatewayRefundRejected
}

func firstNonEmpty(params map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := params[k]; v != "" {
			return v
		}
	}
	return ""
}

// CallbackOutcome describes what a gateway callback did. Every outcome is a
// success from the gateway's point of view.
type CallbackOutcome string

const (
	CallbackProcessed        CallbackOutcome = "processed"
	CallbackAlreadyProcessed CallbackOutcome = "already_processed"
	CallbackRaceLost         CallbackOutcome = "race_lost"
	CallbackIgnored          CallbackOutcome = "ignored"
)

// CallbackResult is returned to the webhook handlers
type CallbackResult struct {
	Outcome       CallbackOutcome `json:"outcome"`
	OrderID       string          `json:"order_id"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Message       string          `json:"message"`
}
