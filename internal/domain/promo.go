package domain

import "time"

// PromoCodeUsage links a promo code, a user and the order that consumed it.
// The existence of the row is the record that the code was used.
type PromoCodeUsage struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	PromoCode string    `json:"promo_code"`
	UserID    string    `json:"user_id"`
	OrderID   string    `json:"order_id"`
}
