// Package payment serves the gateway callbacks and the admin refund endpoint.
package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/pkg/resilience"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CallbackProcessor applies one parsed gateway callback
type CallbackProcessor interface {
	Process(ctx context.Context, params map[string]string) (domain.CallbackResult, error)
}

// Refunder issues an administrator refund
type Refunder interface {
	Refund(ctx context.Context, orderID string, amount *decimal.Decimal, reason string) (domain.RefundResult, error)
}

// Handler serves the payment HTTP endpoints
type Handler struct {
	payments CallbackProcessor
	refunds  CallbackProcessor
	refunder Refunder
	timeouts *resilience.TimeoutConfig
	logger   *zap.Logger
}

// NewHandler creates a new payment handler
func NewHandler(
	payments CallbackProcessor,
	refunds CallbackProcessor,
	refunder Refunder,
	timeouts *resilience.TimeoutConfig,
	logger *zap.Logger,
) *Handler {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Handler{
		payments: payments,
		refunds:  refunds,
		refunder: refunder,
		timeouts: timeouts,
		logger:   logger,
	}
}

type callbackResponse struct {
	Success       bool   `json:"success"`
	Outcome       string `json:"outcome"`
	OrderID       string `json:"orderId"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
	Message       string `json:"message,omitempty"`
}

// PaymentWebhook handles POST and GET /api/payment/webhook
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	h.handleCallback(w, r, "payment", h.payments)
}

// RefundWebhook handles POST /api/payment/refund-webhook
func (h *Handler) RefundWebhook(w http.ResponseWriter, r *http.Request) {
	h.handleCallback(w, r, "refund", h.refunds)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request, kind string, processor CallbackProcessor) {
	params, err := readParams(w, r)
	if err != nil {
		h.logger.Warn("Unreadable gateway callback",
			zap.String("kind", kind),
			zap.Error(err),
		)
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{
			Error: "invalid callback payload",
			Code:  string(domain.ErrorCodeValidationFailed),
		})
		return
	}

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	result, err := processor.Process(ctx, params)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.Error("Gateway callback processing failed",
				zap.String("kind", kind),
				zap.String("order_id", params["orderId"]),
				zap.Error(err),
			)
		}
		writeError(w, h.logger, err, "Webhook processing failed")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, callbackResponse{
		Success:       true,
		Outcome:       string(result.Outcome),
		OrderID:       result.OrderID,
		PaymentStatus: string(result.PaymentStatus),
		Message:       result.Message,
	})
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason"`
}

type refundResponse struct {
	Success bool `json:"success"`
	domain.RefundResult
}

// AdminRefund handles POST /api/admin/orders/{id}/refund. Authentication
// is applied by the router.
func (h *Handler) AdminRefund(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(r.PathValue("id"))
	if orderID == "" {
		writeError(w, h.logger, domain.ErrMissingField("orderId"), "")
		return
	}

	var req refundRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{
			Error: "invalid request body",
			Code:  string(domain.ErrorCodeValidationFailed),
		})
		return
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		writeError(w, h.logger, domain.ErrMissingField("reason"), "")
		return
	}

	h.logger.Info("Admin refund requested",
		zap.String("order_id", orderID),
		zap.Bool("partial", req.Amount != nil),
	)

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	result, err := h.refunder.Refund(ctx, orderID, req.Amount, req.Reason)
	if err != nil {
		writeError(w, h.logger, err, "Refund failed")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, refundResponse{Success: true, RefundResult: result})
}

// RegisterRoutes mounts the endpoints. webhook wraps the public callback
// routes (rate limiting); admin wraps the refund route (authentication).
func (h *Handler) RegisterRoutes(mux *http.ServeMux, webhook func(route string, next http.Handler) http.Handler, admin func(http.Handler) http.Handler) {
	paymentWebhook := webhook("payment_webhook", http.HandlerFunc(h.PaymentWebhook))
	mux.Handle("POST /api/payment/webhook", paymentWebhook)
	mux.Handle("GET /api/payment/webhook", paymentWebhook)
	mux.Handle("POST /api/payment/refund-webhook", webhook("refund_webhook", http.HandlerFunc(h.RefundWebhook)))
	mux.Handle("POST /api/admin/orders/{id}/refund", admin(http.HandlerFunc(h.AdminRefund)))
}
