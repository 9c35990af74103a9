package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// RefundRequest represents a request to refund a captured online payment
type RefundRequest struct {
	TransactionID string
	OrderID       string
	Currency      string
	Reason        string
	Amount        decimal.Decimal // Can be partial refund
}

// RefundResponse represents an accepted refund
type RefundResponse struct {
	RefundID string
	Status   string
}

// RefundGateway is the outbound side of the payment gateway.
// Implementations must not retry: a failed call is reported to the caller.
type RefundGateway interface {
	// Refund reverses all or part of a payment.
	// Returns an error if the gateway rejects the refund or cannot be reached.
	Refund(ctx context.Context, req *RefundRequest) (*RefundResponse, error)
}
