package kashier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGateway(Config{
		APIURL:     srv.URL + "/",
		MerchantID: "MID-1",
		APIKey:     "key-1",
		Breaker:    BreakerConfig{MaxFailures: 2, OpenFor: time.Minute, HalfOpenProbes: 1},
	}, srv.Client(), zaptest.NewLogger(t))
}

func refundReq() *ports.RefundRequest {
	return &ports.RefundRequest{
		TransactionID: "txn-1",
		OrderID:       "order-1",
		Amount:        decimal.RequireFromString("49.5"),
	}
}

func TestGateway_Refund_Success(t *testing.T) {
	var got refundRequest
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments/refund", r.URL.Path)
		assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("MID-1:key-1")), r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"SUCCESS","refundId":"rf-77"}`))
	})

	resp, err := g.Refund(context.Background(), refundReq())
	require.NoError(t, err)

	assert.Equal(t, "rf-77", resp.RefundID)
	assert.Equal(t, refundRequest{TransactionID: "txn-1", OrderID: "order-1", Amount: "49.50", Currency: "EGP"}, got)
}

func TestGateway_Refund_FallsBackToTransactionID(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"SUCCESS","transactionId":"tx-r-5"}`))
	})

	resp, err := g.Refund(context.Background(), refundReq())
	require.NoError(t, err)
	assert.Equal(t, "tx-r-5", resp.RefundID)
}

func TestGateway_Refund_FailureStatusIsRejection(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"FAILURE","message":"Refund amount exceeds captured amount"}`))
	})

	for i := 0; i < 3; i++ {
		_, err := g.Refund(context.Background(), refundReq())
		require.Error(t, err)
		assert.Equal(t, domain.ErrorCodeRefundGatewayFailed, domain.GetErrorCode(err))
		assert.Contains(t, err.Error(), "exceeds captured amount")
	}
	assert.Equal(t, StateClosed, g.BreakerState())
}

func TestGateway_Refund_HTTPErrorWithoutBody(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := g.Refund(context.Background(), refundReq())
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeRefundGatewayFailed, domain.GetErrorCode(err))
	assert.Contains(t, err.Error(), "Refund failed (HTTP 401)")
}

func TestGateway_Refund_ServerErrorsOpenCircuit(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 2; i++ {
		_, err := g.Refund(context.Background(), refundReq())
		require.Error(t, err)
		assert.False(t, domain.IsGatewayError(err))
	}
	require.Equal(t, StateOpen, g.BreakerState())

	_, err := g.Refund(context.Background(), refundReq())
	assert.Equal(t, domain.ErrorCodeGatewayUnavailable, domain.GetErrorCode(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestGateway_Refund_ContextDeadline(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := g.Refund(ctx, refundReq())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGateway_Refund_MissingCredentials(t *testing.T) {
	g := NewGateway(Config{}, http.DefaultClient, zaptest.NewLogger(t))

	_, err := g.Refund(context.Background(), refundReq())
	assert.Equal(t, domain.ErrorCodeGatewayUnavailable, domain.GetErrorCode(err))
}
