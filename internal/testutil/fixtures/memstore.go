package fixtures

import (
	"context"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
)

// OrderStore is an in-memory ports.OrderRepository with the same
// compare-and-swap semantics as the postgres adapter. Used by race tests.
type OrderStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	swaps  int
}

func NewOrderStore(orders ...*domain.Order) *OrderStore {
	s := &OrderStore{orders: make(map[string]*domain.Order)}
	for _, o := range orders {
		s.Put(o)
	}
	return s
}

// Put stores a copy of o
func (s *OrderStore) Put(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *o
	s.orders[o.ID] = &c
}

// Get returns a copy of the stored order, or nil
func (s *OrderStore) Get(id string) *domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil
	}
	c := *o
	return &c
}

// AppliedSwaps counts compare-and-swaps that matched a row
func (s *OrderStore) AppliedSwaps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swaps
}

func (s *OrderStore) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Order, error) {
	if o := s.Get(id); o != nil {
		return o, nil
	}
	return nil, domain.ErrOrderNotFound(id)
}

func (s *OrderStore) FindStalePendingPayment(ctx context.Context, db ports.DBTX, filter ports.StaleOrderFilter) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(filter.IDs))
	for _, id := range filter.IDs {
		wanted[id] = true
	}

	var out []*domain.Order
	for _, o := range s.orders {
		if o.Status != domain.OrderStatusPendingPayment || !o.CreatedAt.Before(filter.CreatedBefore) {
			continue
		}
		if filter.CreatedAfter != nil && o.CreatedAt.Before(*filter.CreatedAfter) {
			continue
		}
		if len(wanted) > 0 && !wanted[o.ID] {
			continue
		}
		c := *o
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *OrderStore) CompareAndSwap(ctx context.Context, db ports.DBTX, id string, guard domain.OrderGuard, change domain.OrderChange) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	var current string
	switch guard.Field {
	case domain.GuardOnStatus:
		current = string(o.Status)
	case domain.GuardOnPaymentStatus:
		current = string(o.PaymentStatus)
	}
	if current != guard.Value {
		return nil, nil
	}

	applyChange(o, change)
	s.swaps++
	c := *o
	return &c, nil
}

func applyChange(o *domain.Order, change domain.OrderChange) {
	if change.Status != nil {
		o.Status = *change.Status
	}
	if change.PaymentStatus != nil {
		o.PaymentStatus = *change.PaymentStatus
	}
	if change.PaymentTransactionID != nil {
		o.PaymentTransactionID = change.PaymentTransactionID
	}
	if change.PaidAt != nil {
		o.PaidAt = change.PaidAt
	}
	if change.CancelledAt != nil {
		o.CancelledAt = change.CancelledAt
	}
	if change.ClearRefund {
		o.RefundAmount = nil
		o.RefundTransactionID = nil
		o.RefundedAt = nil
		o.PreRefundStatus = nil
		return
	}
	if change.RefundAmount != nil {
		o.RefundAmount = change.RefundAmount
	}
	if change.RefundTransactionID != nil {
		o.RefundTransactionID = change.RefundTransactionID
	}
	if change.RefundedAt != nil {
		o.RefundedAt = change.RefundedAt
	}
	if change.PreRefundStatus != nil {
		o.PreRefundStatus = change.PreRefundStatus
	}
}

// PromoLedger is an in-memory ports.PromoRepository that also acts as the
// ports.DBPort for the compensator. Transactions are serialized and roll
// back on error.
type PromoLedger struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	counts map[string]int
	usages map[string]*domain.PromoCodeUsage
}

func NewPromoLedger() *PromoLedger {
	return &PromoLedger{
		counts: make(map[string]int),
		usages: make(map[string]*domain.PromoCodeUsage),
	}
}

// Seed sets the counter for code and records one usage row per order
func (l *PromoLedger) Seed(code string, count int, usages ...*domain.PromoCodeUsage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[code] = count
	for _, u := range usages {
		c := *u
		l.usages[u.ID] = &c
	}
}

// Count returns the current usage counter for code
func (l *PromoLedger) Count(code string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[code]
}

// UsageCount returns the number of usage rows left for code
func (l *PromoLedger) UsageCount(code string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, u := range l.usages {
		if u.PromoCode == code {
			n++
		}
	}
	return n
}

func (l *PromoLedger) GetDB() *pgxpool.Pool { return nil }

func (l *PromoLedger) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.txMu.Lock()
	defer l.txMu.Unlock()

	l.mu.Lock()
	counts := make(map[string]int, len(l.counts))
	for k, v := range l.counts {
		counts[k] = v
	}
	usages := make(map[string]*domain.PromoCodeUsage, len(l.usages))
	for k, v := range l.usages {
		usages[k] = v
	}
	l.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		l.mu.Lock()
		l.counts = counts
		l.usages = usages
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *PromoLedger) ListUsagesByOrder(ctx context.Context, db ports.DBTX, orderID string) ([]*domain.PromoCodeUsage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.PromoCodeUsage
	for _, u := range l.usages {
		if u.OrderID == orderID {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

func (l *PromoLedger) DeleteUsage(ctx context.Context, db ports.DBTX, usageID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.usages[usageID]; !ok {
		return false, nil
	}
	delete(l.usages, usageID)
	return true, nil
}

func (l *PromoLedger) GetUsageCount(ctx context.Context, db ports.DBTX, code string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[code], nil
}

func (l *PromoLedger) CompareAndSwapUsageCount(ctx context.Context, db ports.DBTX, code string, expected, next int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[code] != expected {
		return false, nil
	}
	l.counts[code] = next
	return true, nil
}
