package transition

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/kevin07696/checkout-reconciler/internal/testutil/fixtures"
	"github.com/kevin07696/checkout-reconciler/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestApply_AppliesWhenGuardMatches(t *testing.T) {
	order := fixtures.NewOrder().Build()
	store := fixtures.NewOrderStore(order)
	applier := NewOrderApplier(&mocks.MockDBPort{}, store, mocks.NewMockLogger())

	result, err := applier.Apply(context.Background(), order.ID,
		domain.ExpectStatus(domain.OrderStatusPendingPayment),
		domain.OrderChange{Status: domain.Ptr(domain.OrderStatusCancelled)})

	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, domain.OrderStatusCancelled, result.Order.Status)
	assert.Equal(t, domain.OrderStatusCancelled, store.Get(order.ID).Status)
}

func TestApply_SkipsWhenGuardMismatch(t *testing.T) {
	order := fixtures.NewOrder().Paid("txn_1").Build()
	store := fixtures.NewOrderStore(order)
	applier := NewOrderApplier(&mocks.MockDBPort{}, store, mocks.NewMockLogger())

	result, err := applier.Apply(context.Background(), order.ID,
		domain.ExpectStatus(domain.OrderStatusPendingPayment),
		domain.OrderChange{PaymentStatus: domain.Ptr(domain.PaymentStatusFailed)})

	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Nil(t, result.Order)
	assert.Equal(t, domain.PaymentStatusPaid, store.Get(order.ID).PaymentStatus)
}

func TestApply_WrapsRepositoryError(t *testing.T) {
	repo := new(mocks.MockOrderRepository)
	repo.On("CompareAndSwap", mock.Anything, mock.Anything, "o1", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset"))
	applier := NewOrderApplier(&mocks.MockDBPort{}, repo, mocks.NewMockLogger())

	_, err := applier.Apply(context.Background(), "o1",
		domain.ExpectStatus(domain.OrderStatusPendingPayment),
		domain.OrderChange{Status: domain.Ptr(domain.OrderStatusCancelled)})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestApply_ConcurrentWritersOnlyOneWins(t *testing.T) {
	order := fixtures.NewOrder().Build()
	store := fixtures.NewOrderStore(order)
	applier := NewOrderApplier(&mocks.MockDBPort{}, store, mocks.NewMockLogger())

	const writers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := domain.PaymentStatusPaid
			if i%2 == 0 {
				target = domain.PaymentStatusFailed
			}
			result, err := applier.Apply(context.Background(), order.ID,
				domain.ExpectStatus(domain.OrderStatusPendingPayment),
				domain.OrderChange{
					Status:        domain.Ptr(domain.OrderStatusPending),
					PaymentStatus: &target,
				})
			assert.NoError(t, err)
			if result.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, store.AppliedSwaps())
}

type fakeSwapper struct {
	applied bool
	err     error
	calls   int
}

func (f *fakeSwapper) SwapStatus(ctx context.Context, db ports.DBTX, id string, from, to domain.SettlementStatus) (bool, error) {
	f.calls++
	return f.applied, f.err
}

func TestSwap(t *testing.T) {
	ok, err := Swap[domain.SettlementStatus](context.Background(), &fakeSwapper{applied: true}, nil, "settlement", "s1",
		domain.SettlementPending, domain.SettlementOverdue)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Swap[domain.SettlementStatus](context.Background(), &fakeSwapper{}, nil, "settlement", "s1",
		domain.SettlementPending, domain.SettlementOverdue)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Swap[domain.SettlementStatus](context.Background(), &fakeSwapper{err: errors.New("boom")}, nil, "settlement", "s1",
		domain.SettlementPending, domain.SettlementOverdue)
	assert.ErrorContains(t, err, "settlement s1 pending->overdue")
}
