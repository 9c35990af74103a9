package refund

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/kevin07696/checkout-reconciler/internal/services/notification"
	"github.com/kevin07696/checkout-reconciler/internal/services/transition"
	"github.com/kevin07696/checkout-reconciler/internal/testutil/fixtures"
	"github.com/kevin07696/checkout-reconciler/internal/testutil/mocks"
	"github.com/kevin07696/checkout-reconciler/pkg/resilience"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type orchestratorHarness struct {
	store    *fixtures.OrderStore
	gateway  *mocks.MockRefundGateway
	notifier *mocks.RecordingNotifier
	logger   *mocks.MockLogger
	orch     *Orchestrator
}

func newOrchestratorHarness(orders ...*domain.Order) *orchestratorHarness {
	store := fixtures.NewOrderStore(orders...)
	return newOrchestratorHarnessWithRepo(store, store)
}

func newOrchestratorHarnessWithRepo(store *fixtures.OrderStore, repo ports.OrderRepository) *orchestratorHarness {
	logger := mocks.NewMockLogger()
	gateway := new(mocks.MockRefundGateway)
	notifier := &mocks.RecordingNotifier{}
	applier := transition.NewOrderApplier(&mocks.MockDBPort{}, repo, logger)
	dispatcher := notification.NewDispatcher(notifier, nil, resilience.TestTimeoutConfig(), logger)
	return &orchestratorHarness{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
		orch:     NewOrchestrator(applier, gateway, dispatcher, resilience.TestTimeoutConfig(), logger),
	}
}

func deliveredOrder() *domain.Order {
	return fixtures.NewOrder().WithTotal("200.00").Paid("txn_1").WithStatus(domain.OrderStatusDelivered).Build()
}

func TestRefund_FullRefund(t *testing.T) {
	order := deliveredOrder()
	h := newOrchestratorHarness(order)
	h.gateway.On("Refund", mock.Anything, mock.MatchedBy(func(req *ports.RefundRequest) bool {
		return req.TransactionID == "txn_1" && req.OrderID == order.ID && req.Amount.StringFixed(2) == "200.00"
	})).Return(&ports.RefundResponse{RefundID: "rf_1", Status: "SUCCESS"}, nil)

	result, err := h.orch.Refund(context.Background(), order.ID, nil, "damaged")
	require.NoError(t, err)

	assert.Equal(t, domain.RefundResult{OrderID: order.ID, RefundID: "rf_1", Amount: "200.00"}, result)
	got := h.store.Get(order.ID)
	assert.Equal(t, domain.PaymentStatusRefunded, got.PaymentStatus)
	assert.Equal(t, domain.OrderStatusRefunded, got.Status)
	assert.Equal(t, "rf_1", got.StoredRefundID())
	assert.Equal(t, domain.OrderStatusDelivered, *got.PreRefundStatus)
	assert.NotNil(t, got.RefundedAt)
	assert.Equal(t, 1, h.notifier.CountOf(domain.NotificationRefundProcessed))
}

func TestRefund_PartialAmount(t *testing.T) {
	order := deliveredOrder()
	h := newOrchestratorHarness(order)
	h.gateway.On("Refund", mock.Anything, mock.Anything).Return(&ports.RefundResponse{RefundID: "rf_2"}, nil)

	result, err := h.orch.Refund(context.Background(), order.ID, fixtures.DecimalPtr("49.5"), "")
	require.NoError(t, err)

	assert.Equal(t, "49.50", result.Amount)
	assert.Equal(t, "49.5", h.store.Get(order.ID).RefundAmount.String())
}

func TestRefund_PreconditionsCheckedBeforeGateway(t *testing.T) {
	cod := fixtures.NewOrder().CashOnDelivery().Build()
	unpaid := fixtures.NewOrder().Build()
	noTxn := fixtures.NewOrder().WithPaymentStatus(domain.PaymentStatusPaid).Build()
	refunded := deliveredOrder()
	refunded.PaymentStatus = domain.PaymentStatusRefunded
	refunded.RefundTransactionID = fixtures.StringPtr("rf_old")
	paid := deliveredOrder()

	h := newOrchestratorHarness(cod, unpaid, noTxn, refunded, paid)

	tests := []struct {
		name   string
		id     string
		amount string
		code   domain.ErrorCode
	}{
		{"cash on delivery", cod.ID, "", domain.ErrorCodeRefundNotEligible},
		{"not paid", unpaid.ID, "", domain.ErrorCodeRefundNotEligible},
		{"no transaction", noTxn.ID, "", domain.ErrorCodeRefundNotEligible},
		{"already refunded", refunded.ID, "", domain.ErrorCodeRefundAlreadyRefunded},
		{"exceeds total", paid.ID, "200.01", domain.ErrorCodeValidationAmountInvalid},
		{"zero amount", paid.ID, "0", domain.ErrorCodeValidationAmountInvalid},
		{"unknown order", "missing", "", domain.ErrorCodeOrderNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var amount *decimal.Decimal
			if tt.amount != "" {
				amount = fixtures.DecimalPtr(tt.amount)
			}
			_, err := h.orch.Refund(context.Background(), tt.id, amount, "")
			assert.True(t, domain.IsDomainError(err, tt.code), "got %v", err)
		})
	}

	_, err := h.orch.Refund(context.Background(), refunded.ID, nil, "")
	v, ok := domain.GetErrorDetail(err, "refund_id")
	assert.True(t, ok)
	assert.Equal(t, "rf_old", v)

	h.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}

func TestRefund_GatewayFailureLeavesOrderUntouched(t *testing.T) {
	order := deliveredOrder()
	h := newOrchestratorHarness(order)
	h.gateway.On("Refund", mock.Anything, mock.Anything).Return(nil, errors.New("insufficient merchant balance"))

	_, err := h.orch.Refund(context.Background(), order.ID, nil, "")

	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeRefundGatewayFailed))
	assert.Equal(t, domain.PaymentStatusPaid, h.store.Get(order.ID).PaymentStatus)
	assert.Equal(t, 0, h.store.AppliedSwaps())
	assert.Empty(t, h.notifier.Sent())
	h.gateway.AssertNumberOfCalls(t, "Refund", 1)
}

func TestRefund_GatewayTimeout(t *testing.T) {
	order := deliveredOrder()
	h := newOrchestratorHarness(order)
	h.gateway.On("Refund", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)
	h.orch.timeouts = &resilience.TimeoutConfig{ExternalAPI: 10 * time.Millisecond}

	_, err := h.orch.Refund(context.Background(), order.ID, nil, "")

	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeGatewayTimeout))
	assert.Equal(t, domain.PaymentStatusPaid, h.store.Get(order.ID).PaymentStatus)
}

func TestRefund_StoreFailureAfterGatewaySuccess(t *testing.T) {
	order := deliveredOrder()
	repo := new(mocks.MockOrderRepository)
	repo.On("GetByID", mock.Anything, mock.Anything, order.ID).Return(order, nil)
	repo.On("CompareAndSwap", mock.Anything, mock.Anything, order.ID, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))
	h := newOrchestratorHarnessWithRepo(fixtures.NewOrderStore(), repo)
	h.gateway.On("Refund", mock.Anything, mock.Anything).Return(&ports.RefundResponse{RefundID: "rf_9"}, nil)

	_, err := h.orch.Refund(context.Background(), order.ID, nil, "")

	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeRefundStoreFailed))
	v, _ := domain.GetErrorDetail(err, "refund_id")
	assert.Equal(t, "rf_9", v)
	_, logged := h.logger.FindError("refund applied at gateway but order update failed")
	assert.True(t, logged)
}

func TestRefund_LostRaceReturnsExistingRefund(t *testing.T) {
	order := deliveredOrder()
	h := newOrchestratorHarness(order)
	h.gateway.On("Refund", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			// A concurrent request records its refund while this call is in flight
			h.store.Put(fixtures.NewOrder().WithID(order.ID).Paid("txn_1").
				Refunded("rf_other", domain.OrderStatusDelivered).Build())
		}).
		Return(&ports.RefundResponse{RefundID: "rf_mine"}, nil)

	result, err := h.orch.Refund(context.Background(), order.ID, nil, "")
	require.NoError(t, err)

	assert.True(t, result.AlreadyRefunded)
	assert.Equal(t, "rf_other", result.RefundID)
	assert.Empty(t, h.notifier.Sent())

	call, logged := h.logger.FindError("refund applied at gateway but order already transitioned")
	require.True(t, logged)
	assert.Equal(t, order.ID, call.Field("order_id"))
	assert.Equal(t, "rf_mine", call.Field("gateway_refund_id"))
	assert.Equal(t, "rf_other", call.Field("existing_refund_id"))
	assert.Equal(t, true, call.Field("requires_manual_reconciliation"))
}

// contextStore fails with ctx.Err() once the context is done, like pgx
type contextStore struct {
	*fixtures.OrderStore
}

func (s contextStore) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.OrderStore.GetByID(ctx, db, id)
}

func (s contextStore) CompareAndSwap(ctx context.Context, db ports.DBTX, id string, guard domain.OrderGuard, change domain.OrderChange) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.OrderStore.CompareAndSwap(ctx, db, id, guard, change)
}

func TestRefund_CallerCancelAfterGatewayStillRecordsRefund(t *testing.T) {
	order := deliveredOrder()
	store := fixtures.NewOrderStore(order)
	h := newOrchestratorHarnessWithRepo(store, contextStore{store})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.gateway.On("Refund", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(&ports.RefundResponse{RefundID: "rf_1"}, nil)

	result, err := h.orch.Refund(ctx, order.ID, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "rf_1", result.RefundID)

	got := store.Get(order.ID)
	assert.Equal(t, domain.PaymentStatusRefunded, got.PaymentStatus)
	assert.Equal(t, "rf_1", got.StoredRefundID())

	// A retry now fails the precondition instead of refunding again
	_, err = h.orch.Refund(context.Background(), order.ID, nil, "")
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeRefundAlreadyRefunded))
	h.gateway.AssertNumberOfCalls(t, "Refund", 1)
}
