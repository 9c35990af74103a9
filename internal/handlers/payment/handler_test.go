package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/pkg/resilience"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeProcessor struct {
	params map[string]string
	result domain.CallbackResult
	err    error
	calls  int
}

func (f *fakeProcessor) Process(ctx context.Context, params map[string]string) (domain.CallbackResult, error) {
	f.calls++
	f.params = params
	if _, ok := ctx.Deadline(); !ok {
		return domain.CallbackResult{}, errors.New("missing handler deadline")
	}
	return f.result, f.err
}

type fakeRefunder struct {
	orderID string
	amount  *decimal.Decimal
	reason  string
	result  domain.RefundResult
	err     error
	calls   int
}

func (f *fakeRefunder) Refund(_ context.Context, orderID string, amount *decimal.Decimal, reason string) (domain.RefundResult, error) {
	f.calls++
	f.orderID, f.amount, f.reason = orderID, amount, reason
	return f.result, f.err
}

type fixture struct {
	payments *fakeProcessor
	refunds  *fakeProcessor
	refunder *fakeRefunder
	mux      *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		payments: &fakeProcessor{},
		refunds:  &fakeProcessor{},
		refunder: &fakeRefunder{},
		mux:      http.NewServeMux(),
	}
	h := NewHandler(f.payments, f.refunds, f.refunder, resilience.TestTimeoutConfig(), zaptest.NewLogger(t))
	h.RegisterRoutes(f.mux,
		func(_ string, next http.Handler) http.Handler { return next },
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer admin" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
	)
	return f
}

func (f *fixture) do(req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestPaymentWebhook_JSONBody(t *testing.T) {
	f := newFixture(t)
	f.payments.result = domain.CallbackResult{
		Outcome:       domain.CallbackProcessed,
		OrderID:       "order-1",
		PaymentStatus: domain.PaymentStatusPaid,
	}

	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook",
		strings.NewReader(`{"orderId":"order-1","paymentStatus":"SUCCESS","amount":150.5,"signature":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	rec, body := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "processed", body["outcome"])
	assert.Equal(t, "paid", body["paymentStatus"])
	assert.Equal(t, "150.5", f.payments.params["amount"])
	assert.Equal(t, "abc", f.payments.params["signature"])
}

func TestPaymentWebhook_RedirectQuery(t *testing.T) {
	f := newFixture(t)
	f.payments.result = domain.CallbackResult{Outcome: domain.CallbackAlreadyProcessed, OrderID: "order-2"}

	q := url.Values{"merchantOrderId": {"order-2"}, "paymentStatus": {"SUCCESS"}, "signature": {"s"}}
	rec, body := f.do(httptest.NewRequest(http.MethodGet, "/api/payment/webhook?"+q.Encode(), nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "already_processed", body["outcome"])
	assert.Equal(t, "order-2", f.payments.params["merchantOrderId"])
}

func TestPaymentWebhook_FormBody(t *testing.T) {
	f := newFixture(t)
	f.payments.result = domain.CallbackResult{Outcome: domain.CallbackIgnored, OrderID: "order-3"}

	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook",
		strings.NewReader(url.Values{"orderId": {"order-3"}, "status": {"PENDING"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec, _ := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PENDING", f.payments.params["status"])
}

func TestPaymentWebhook_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{
			name:       "bad signature",
			err:        domain.NewDomainError(domain.ErrorCodeSignatureInvalid, "invalid signature"),
			wantStatus: http.StatusForbidden,
			wantCode:   "SIGNATURE_INVALID",
			wantError:  "invalid signature",
		},
		{
			name:       "missing order",
			err:        domain.ErrOrderNotFound("order-x"),
			wantStatus: http.StatusNotFound,
			wantCode:   "ORDER_NOT_FOUND",
		},
		{
			name:       "missing field",
			err:        domain.ErrMissingField("orderId"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_MISSING_FIELD",
		},
		{
			name:       "store failure hides detail",
			err:        errors.New("pq: connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Webhook processing failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.payments.err = tt.err

			req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", strings.NewReader(`{"orderId":"order-x"}`))
			req.Header.Set("Content-Type", "application/json")
			rec, body := f.do(req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, false, body["success"])
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["code"])
			}
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
			}
		})
	}
}

func TestPaymentWebhook_MalformedJSON(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", strings.NewReader(`{"orderId":`))
	req.Header.Set("Content-Type", "application/json")
	rec, body := f.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])
	assert.Zero(t, f.payments.calls)
}

func TestRefundWebhook_RoutesToRefundProcessor(t *testing.T) {
	f := newFixture(t)
	f.refunds.result = domain.CallbackResult{
		Outcome:       domain.CallbackProcessed,
		OrderID:       "order-4",
		PaymentStatus: domain.PaymentStatusRefunded,
	}

	req := httptest.NewRequest(http.MethodPost, "/api/payment/refund-webhook",
		strings.NewReader(`{"orderId":"order-4","refundStatus":"SUCCESS","signature":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec, body := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "refunded", body["paymentStatus"])
	assert.Equal(t, 1, f.refunds.calls)
	assert.Zero(t, f.payments.calls)
}

func TestRefundWebhook_RejectsGet(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(httptest.NewRequest(http.MethodGet, "/api/payment/refund-webhook?orderId=o", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func adminRequest(id, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/orders/"+id+"/refund", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer admin")
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAdminRefund_PartialAmount(t *testing.T) {
	f := newFixture(t)
	f.refunder.result = domain.RefundResult{OrderID: "order-5", RefundID: "rf_1", Amount: "40.00"}

	rec, body := f.do(adminRequest("order-5", `{"amount":"40","reason":"damaged"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "rf_1", body["refund_id"])
	assert.Equal(t, "order-5", f.refunder.orderID)
	assert.Equal(t, "damaged", f.refunder.reason)
	require.NotNil(t, f.refunder.amount)
	assert.True(t, f.refunder.amount.Equal(decimal.NewFromInt(40)))
}

func TestAdminRefund_FullAmountWhenOmitted(t *testing.T) {
	f := newFixture(t)
	f.refunder.result = domain.RefundResult{OrderID: "order-6", RefundID: "rf_2", Amount: "100.00"}

	rec, _ := f.do(adminRequest("order-6", `{"reason":"customer request"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, f.refunder.amount)
}

func TestAdminRefund_RequiresReason(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(adminRequest("order-7", `{"amount":"10","reason":"  "}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_MISSING_FIELD", body["code"])
	assert.Zero(t, f.refunder.calls)
}

func TestAdminRefund_Unauthorized(t *testing.T) {
	f := newFixture(t)
	req := adminRequest("order-8", `{"reason":"x"}`)
	req.Header.Del("Authorization")

	rec, _ := f.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.refunder.calls)
}

func TestAdminRefund_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not eligible", domain.NewDomainError(domain.ErrorCodeRefundNotEligible, "order is not paid"), http.StatusConflict},
		{"already refunded", domain.NewDomainError(domain.ErrorCodeRefundAlreadyRefunded, "order already refunded"), http.StatusConflict},
		{"amount too large", domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "refund amount exceeds order total"), http.StatusBadRequest},
		{"gateway rejected", domain.NewDomainError(domain.ErrorCodeRefundGatewayFailed, "card expired"), http.StatusBadGateway},
		{"gateway down", domain.NewDomainError(domain.ErrorCodeGatewayUnavailable, "circuit open"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.refunder.err = tt.err

			rec, body := f.do(adminRequest("order-9", `{"reason":"x"}`))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["code"])
		})
	}
}
