// Package mocks provides shared testify mocks for the service layer ports.
package mocks

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/stretchr/testify/mock"
)

// MockDBPort runs transactions inline with a nil tx. Repository mocks ignore the executor.
type MockDBPort struct {
	TxCalls int
}

func (m *MockDBPort) GetDB() *pgxpool.Pool { return nil }

func (m *MockDBPort) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	m.TxCalls++
	return fn(ctx, nil)
}

// MockOrderRepository is a testify mock of ports.OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Order, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) FindStalePendingPayment(ctx context.Context, db ports.DBTX, filter ports.StaleOrderFilter) ([]*domain.Order, error) {
	args := m.Called(ctx, db, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) CompareAndSwap(ctx context.Context, db ports.DBTX, id string, guard domain.OrderGuard, change domain.OrderChange) (*domain.Order, error) {
	args := m.Called(ctx, db, id, guard, change)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

// MockPromoRepository is a testify mock of ports.PromoRepository
type MockPromoRepository struct {
	mock.Mock
}

func (m *MockPromoRepository) ListUsagesByOrder(ctx context.Context, db ports.DBTX, orderID string) ([]*domain.PromoCodeUsage, error) {
	args := m.Called(ctx, db, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PromoCodeUsage), args.Error(1)
}

func (m *MockPromoRepository) DeleteUsage(ctx context.Context, db ports.DBTX, usageID string) (bool, error) {
	args := m.Called(ctx, db, usageID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPromoRepository) GetUsageCount(ctx context.Context, db ports.DBTX, code string) (int, error) {
	args := m.Called(ctx, db, code)
	return args.Int(0), args.Error(1)
}

func (m *MockPromoRepository) CompareAndSwapUsageCount(ctx context.Context, db ports.DBTX, code string, expected, next int) (bool, error) {
	args := m.Called(ctx, db, code, expected, next)
	return args.Bool(0), args.Error(1)
}

// MockSettlementRepository is a testify mock of ports.SettlementRepository
type MockSettlementRepository struct {
	mock.Mock
}

func (m *MockSettlementRepository) FindOverdueCandidates(ctx context.Context, db ports.DBTX, cutoff time.Time, limit int) ([]*domain.Settlement, error) {
	args := m.Called(ctx, db, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) SwapStatus(ctx context.Context, db ports.DBTX, id string, from, to domain.SettlementStatus) (bool, error) {
	args := m.Called(ctx, db, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockSettlementRepository) FindUnsettledDelivered(ctx context.Context, db ports.DBTX, period domain.SettlementPeriod) ([]*domain.UnsettledOrder, error) {
	args := m.Called(ctx, db, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.UnsettledOrder), args.Error(1)
}

func (m *MockSettlementRepository) CreateForPeriod(ctx context.Context, db ports.DBTX, id string, draft *domain.SettlementDraft, period domain.SettlementPeriod) (*domain.Settlement, bool, error) {
	args := m.Called(ctx, db, id, draft, period)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Settlement), args.Bool(1), args.Error(2)
}

func (m *MockSettlementRepository) LinkOrders(ctx context.Context, db ports.DBTX, settlementID string, orderIDs []string) (int, error) {
	args := m.Called(ctx, db, settlementID, orderIDs)
	return args.Int(0), args.Error(1)
}

// MockCustomOrderRepository is a testify mock of ports.CustomOrderRepository
type MockCustomOrderRepository struct {
	mock.Mock
}

func (m *MockCustomOrderRepository) FindExpiredQuotes(ctx context.Context, db ports.DBTX, quotedBefore time.Time, limit int) ([]*domain.CustomOrder, error) {
	args := m.Called(ctx, db, quotedBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CustomOrder), args.Error(1)
}

func (m *MockCustomOrderRepository) SwapStatus(ctx context.Context, db ports.DBTX, id string, from, to domain.CustomOrderStatus) (bool, error) {
	args := m.Called(ctx, db, id, from, to)
	return args.Bool(0), args.Error(1)
}

// MockNotificationRepository is a testify mock of ports.NotificationRepository
type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) Insert(ctx context.Context, db ports.DBTX, n domain.Notification) error {
	args := m.Called(ctx, db, n)
	return args.Error(0)
}
