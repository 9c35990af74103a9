package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GuardField names the order column a conditional update is predicated on
type GuardField string

const (
	GuardOnStatus        GuardField = "status"
	GuardOnPaymentStatus GuardField = "payment_status"
)

// OrderGuard is the expected current state a transition is conditioned on.
// Payment transitions guard on status; refund transitions guard on
// payment_status because a refund can start from several fulfillment states.
type OrderGuard struct {
	Field GuardField
	Value string
}

// ExpectStatus guards a transition on the order's fulfillment status
func ExpectStatus(s OrderStatus) OrderGuard {
	return OrderGuard{Field: GuardOnStatus, Value: string(s)}
}

// ExpectPaymentStatus guards a transition on the order's payment status
func ExpectPaymentStatus(s PaymentStatus) OrderGuard {
	return OrderGuard{Field: GuardOnPaymentStatus, Value: string(s)}
}

// OrderChange lists the fields a transition writes. Nil fields are left as is.
type OrderChange struct {
	Status               *OrderStatus
	PaymentStatus        *PaymentStatus
	PaymentTransactionID *string
	PaidAt               *time.Time
	CancelledAt          *time.Time
	RefundAmount         *decimal.Decimal
	RefundTransactionID  *string
	RefundedAt           *time.Time
	PreRefundStatus      *OrderStatus

	// ClearRefund nulls refund_amount, refund_transaction_id, refunded_at and
	// pre_refund_status. It takes precedence over the refund fields above.
	ClearRefund bool
}

// IsEmpty reports whether the change writes nothing
func (c OrderChange) IsEmpty() bool {
	return c.Status == nil && c.PaymentStatus == nil && c.PaymentTransactionID == nil &&
		c.PaidAt == nil && c.CancelledAt == nil && c.RefundAmount == nil &&
		c.RefundTransactionID == nil && c.RefundedAt == nil && c.PreRefundStatus == nil &&
		!c.ClearRefund
}

// TransitionResult reports whether this caller won the compare-and-swap.
// Applied=false is the expected outcome of a lost race, not an error.
type TransitionResult struct {
	Order   *Order
	Applied bool
}

// Ptr returns a pointer to v. Used to build OrderChange values.
func Ptr[T any](v T) *T {
	return &v
}
