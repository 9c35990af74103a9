package domain

import "time"

// CustomOrderStatus is the lifecycle of a quoted custom order request
type CustomOrderStatus string

const (
	CustomOrderPending  CustomOrderStatus = "pending"
	CustomOrderPriced   CustomOrderStatus = "priced"
	CustomOrderApproved CustomOrderStatus = "approved"
	CustomOrderExpired  CustomOrderStatus = "expired"
)

// CustomOrder is a customer request a merchant has quoted a price for.
// A quote the customer never answers expires after the quote TTL.
type CustomOrder struct {
	QuotedAt   time.Time         `json:"quoted_at"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiredAt  *time.Time        `json:"expired_at"`
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	MerchantID string            `json:"merchant_id"`
	Status     CustomOrderStatus `json:"status"`
}

// ExpiryReport summarizes one custom-order expiry run
type ExpiryReport struct {
	Errors  []string `json:"errors"`
	Found   int      `json:"found"`
	Expired int      `json:"expired"`
	Skipped int      `json:"skipped"`
}
