package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how the customer chose to pay at checkout
type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodOnline         PaymentMethod = "online"
)

// PaymentStatus tracks money movement for an order
type PaymentStatus string

const (
	PaymentStatusUnset    PaymentStatus = "unset"
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// IsTerminal reports whether the payment outcome may no longer be overwritten
// by callbacks or sweeps. Refunds use their own guarded transition.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed
}

// OrderStatus is the fulfillment status of an order. Only the states this
// service reads or writes are listed; merchants move orders through others.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment" // Awaiting online payment, hidden from merchant
	OrderStatusPending        OrderStatus = "pending"         // Visible to merchant
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

// Order represents a checkout order as seen by the reconciliation engine
type Order struct {
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
	PaymentTransactionID *string          `json:"payment_transaction_id"`
	PromoCode            *string          `json:"promo_code"`
	RefundAmount         *decimal.Decimal `json:"refund_amount"`
	RefundTransactionID  *string          `json:"refund_transaction_id"`
	RefundedAt           *time.Time       `json:"refunded_at"`
	PreRefundStatus      *OrderStatus     `json:"pre_refund_status"`
	CancelledAt          *time.Time       `json:"cancelled_at"`
	PaidAt               *time.Time       `json:"paid_at"`
	ID                   string           `json:"id"`
	UserID               string           `json:"user_id"`
	MerchantID           string           `json:"merchant_id"`
	Currency             string           `json:"currency"`
	PaymentMethod        PaymentMethod    `json:"payment_method"`
	PaymentStatus        PaymentStatus    `json:"payment_status"`
	Status               OrderStatus      `json:"status"`
	Total                decimal.Decimal  `json:"total"`
}

// HasTransaction returns true if the stored gateway reference equals txnID
func (o *Order) HasTransaction(txnID string) bool {
	return txnID != "" && o.PaymentTransactionID != nil && *o.PaymentTransactionID == txnID
}

// HasPromoCode returns true if the order consumed a promo code at checkout
func (o *Order) HasPromoCode() bool {
	return o.PromoCode != nil && *o.PromoCode != ""
}

// StoredRefundID returns the recorded refund reference or an empty string
func (o *Order) StoredRefundID() string {
	if o.RefundTransactionID == nil {
		return ""
	}
	return *o.RefundTransactionID
}

// CheckRefundable validates the preconditions for a gateway refund
func (o *Order) CheckRefundable() error {
	if o.PaymentStatus == PaymentStatusRefunded {
		return NewDomainError(ErrorCodeRefundAlreadyRefunded, "order already refunded").
			WithDetail("order_id", o.ID).
			WithDetail("refund_id", o.StoredRefundID())
	}
	if o.PaymentMethod != PaymentMethodOnline {
		return NewDomainError(ErrorCodeRefundNotEligible, "only online payments can be refunded").
			WithDetail("payment_method", string(o.PaymentMethod))
	}
	if o.PaymentStatus != PaymentStatusPaid {
		return NewDomainError(ErrorCodeRefundNotEligible, "order is not paid").
			WithDetail("payment_status", string(o.PaymentStatus))
	}
	if o.PaymentTransactionID == nil || *o.PaymentTransactionID == "" {
		return NewDomainError(ErrorCodeRefundNotEligible, "order has no gateway transaction")
	}
	return nil
}

// ResolveRefundAmount defaults to the order total and rejects amounts outside (0, total]
func (o *Order) ResolveRefundAmount(requested *decimal.Decimal) (decimal.Decimal, error) {
	if requested == nil {
		return o.Total, nil
	}
	if !requested.IsPositive() {
		return decimal.Zero, NewDomainError(ErrorCodeValidationAmountInvalid, "refund amount must be positive")
	}
	if requested.GreaterThan(o.Total) {
		return decimal.Zero, NewDomainError(ErrorCodeValidationAmountInvalid, "refund amount exceeds order total").
			WithDetail("total", o.Total.StringFixed(2)).
			WithDetail("requested", requested.StringFixed(2))
	}
	return *requested, nil
}

// RefundResult is returned to the administrator who requested a refund
type RefundResult struct {
	OrderID         string `json:"order_id"`
	RefundID        string `json:"refund_id"`
	Amount          string `json:"amount"`
	AlreadyRefunded bool   `json:"already_refunded"`
}
