package fixtures

import (
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/shopspring/decimal"
)

// OrderBuilder provides fluent API for building test orders.
type OrderBuilder struct {
	order *domain.Order
}

// NewOrder creates an online order awaiting payment, an hour old.
func NewOrder() *OrderBuilder {
	created := time.Now().Add(-time.Hour)
	return &OrderBuilder{
		order: &domain.Order{
			ID:            uuid.New().String(),
			UserID:        uuid.New().String(),
			MerchantID:    uuid.New().String(),
			PaymentMethod: domain.PaymentMethodOnline,
			PaymentStatus: domain.PaymentStatusPending,
			Status:        domain.OrderStatusPendingPayment,
			Total:         decimal.RequireFromString("100.00"),
			Currency:      "EGP",
			CreatedAt:     created,
			UpdatedAt:     created,
		},
	}
}

func (b *OrderBuilder) WithID(id string) *OrderBuilder {
	b.order.ID = id
	return b
}

func (b *OrderBuilder) WithUserID(id string) *OrderBuilder {
	b.order.UserID = id
	return b
}

func (b *OrderBuilder) WithTotal(total string) *OrderBuilder {
	b.order.Total = decimal.RequireFromString(total)
	return b
}

func (b *OrderBuilder) WithStatus(s domain.OrderStatus) *OrderBuilder {
	b.order.Status = s
	return b
}

func (b *OrderBuilder) WithPaymentStatus(s domain.PaymentStatus) *OrderBuilder {
	b.order.PaymentStatus = s
	return b
}

func (b *OrderBuilder) WithPromoCode(code string) *OrderBuilder {
	b.order.PromoCode = &code
	return b
}

func (b *OrderBuilder) WithTransactionID(id string) *OrderBuilder {
	b.order.PaymentTransactionID = &id
	return b
}

func (b *OrderBuilder) CashOnDelivery() *OrderBuilder {
	b.order.PaymentMethod = domain.PaymentMethodCashOnDelivery
	b.order.PaymentStatus = domain.PaymentStatusUnset
	b.order.Status = domain.OrderStatusPending
	return b
}

// Paid marks the order as captured by the gateway under txnID
func (b *OrderBuilder) Paid(txnID string) *OrderBuilder {
	paidAt := b.order.CreatedAt.Add(time.Minute)
	b.order.PaymentStatus = domain.PaymentStatusPaid
	b.order.Status = domain.OrderStatusPending
	b.order.PaymentTransactionID = &txnID
	b.order.PaidAt = &paidAt
	return b
}

// Refunded marks a paid order as refunded from the given fulfillment state
func (b *OrderBuilder) Refunded(refundID string, from domain.OrderStatus) *OrderBuilder {
	now := time.Now()
	amount := b.order.Total
	b.order.PaymentStatus = domain.PaymentStatusRefunded
	b.order.Status = domain.OrderStatusRefunded
	b.order.RefundTransactionID = &refundID
	b.order.RefundAmount = &amount
	b.order.RefundedAt = &now
	b.order.PreRefundStatus = &from
	return b
}

func (b *OrderBuilder) CreatedAt(t time.Time) *OrderBuilder {
	b.order.CreatedAt = t
	b.order.UpdatedAt = t
	return b
}

func (b *OrderBuilder) Build() *domain.Order {
	o := *b.order
	return &o
}

// NewSettlement returns a pending settlement whose period ended endedAgo before now
func NewSettlement(endedAgo time.Duration) *domain.Settlement {
	end := time.Now().Add(-endedAgo)
	return &domain.Settlement{
		ID:            uuid.New().String(),
		MerchantID:    uuid.New().String(),
		MerchantName:  "Cairo Crafts",
		MerchantEmail: "billing@cairocrafts.example",
		Status:        domain.SettlementPending,
		Amount:        decimal.RequireFromString("1250.00"),
		PeriodStart:   end.AddDate(0, 0, -7),
		PeriodEnd:     end,
		CreatedAt:     end,
	}
}

// NewCustomOrder returns a priced custom order quoted quotedAgo before now
func NewCustomOrder(quotedAgo time.Duration) *domain.CustomOrder {
	quoted := time.Now().Add(-quotedAgo)
	return &domain.CustomOrder{
		ID:         uuid.New().String(),
		UserID:     uuid.New().String(),
		MerchantID: uuid.New().String(),
		Status:     domain.CustomOrderPriced,
		QuotedAt:   quoted,
		CreatedAt:  quoted.Add(-time.Hour),
	}
}
