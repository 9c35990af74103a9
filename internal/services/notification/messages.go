package notification

import (
	"fmt"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/shopspring/decimal"
)

// ForOrder builds the customer notification of type t about order
func ForOrder(t domain.NotificationType, order *domain.Order) domain.Notification {
	n := domain.Notification{
		UserID:         order.UserID,
		RelatedOrderID: order.ID,
		Type:           t,
	}

	switch t {
	case domain.NotificationPaymentSuccess:
		n.Title = "Payment Successful"
		n.Body = "Your payment was received and your order has been sent to the merchant."
	case domain.NotificationPaymentFailed:
		n.Title = "Payment Failed"
		n.Body = "Your payment could not be completed and the order was cancelled."
	case domain.NotificationPaymentExpired:
		n.Title = "Payment Expired"
		n.Body = "Your payment session expired. You can place the order again."
	case domain.NotificationRefundProcessed:
		n.Title = "Refund Processed"
		n.Body = "Your refund has been processed. It may take 5-14 business days to appear."
		if order.RefundAmount != nil {
			n.Body = refundBody(*order.RefundAmount, order.Currency)
		}
	case domain.NotificationRefundFailed:
		n.Title = "Refund Failed"
		n.Body = "We were unable to process your refund. Our support team will contact you soon."
	}
	return n
}

// ForCustomOrder builds the expiry notification for a custom order quote
func ForCustomOrder(order *domain.CustomOrder) domain.Notification {
	return domain.Notification{
		UserID:         order.UserID,
		RelatedOrderID: order.ID,
		Type:           domain.NotificationCustomOrderExpired,
		Title:          "Your custom order has expired",
		Body:           "The price quote for your custom order has expired. You can create a new order.",
	}
}

func refundBody(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "EGP"
	}
	return fmt.Sprintf("A refund of %s %s has been processed. It may take 5-14 business days to appear.",
		amount.StringFixed(2), currency)
}
