package domain

import "time"

// NotificationType identifies the customer-facing message template
type NotificationType string

const (
	NotificationPaymentSuccess     NotificationType = "payment_success"
	NotificationPaymentFailed      NotificationType = "payment_failed"
	NotificationPaymentExpired     NotificationType = "payment_expired"
	NotificationRefundProcessed    NotificationType = "refund_processed"
	NotificationRefundFailed       NotificationType = "refund_failed"
	NotificationCustomOrderExpired NotificationType = "custom_order_expired"
)

// Notification is an outbound customer message. Delivery is best-effort.
type Notification struct {
	CreatedAt      time.Time        `json:"created_at"`
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	Title          string           `json:"title"`
	Body           string           `json:"body"`
	RelatedOrderID string           `json:"related_order_id,omitempty"`
	Type           NotificationType `json:"type"`
}

// Email is an outbound merchant email
type Email struct {
	To      string
	Subject string
	Body    string
}
