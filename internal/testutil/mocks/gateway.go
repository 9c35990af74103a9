package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/stretchr/testify/mock"
)

// MockRefundGateway is a testify mock of ports.RefundGateway
type MockRefundGateway struct {
	mock.Mock
}

func (m *MockRefundGateway) Refund(ctx context.Context, req *ports.RefundRequest) (*ports.RefundResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.RefundResponse), args.Error(1)
}

// RecordingNotifier captures notifications. Safe for concurrent use.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	Err  error
}

func (r *RecordingNotifier) Notify(ctx context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.Err
}

// Sent returns a copy of the captured notifications
func (r *RecordingNotifier) Sent() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification(nil), r.sent...)
}

// CountOf returns how many notifications of type t were sent
func (r *RecordingNotifier) CountOf(t domain.NotificationType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.Type == t {
			n++
		}
	}
	return n
}

// MockMailer is a testify mock of ports.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, email domain.Email) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// MockLocker is a testify mock of ports.Locker
type MockLocker struct {
	mock.Mock
	Released int
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	args := m.Called(ctx, key, ttl)
	release := func(context.Context) error {
		m.Released++
		return nil
	}
	return release, args.Bool(0), args.Error(1)
}
