// Package kashier implements the outbound refund call to the Kashier payment gateway.
package kashier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/kevin07696/checkout-reconciler/pkg/observability"
	"go.uber.org/zap"
)

const (
	DefaultAPIURL   = "https://api.kashier.io"
	DefaultCurrency = "EGP"

	// maxResponseBytes bounds how much of a gateway response is read
	maxResponseBytes = 1 << 20
)

// Config contains configuration for the Kashier refund adapter
type Config struct {
	APIURL     string
	MerchantID string
	APIKey     string
	Currency   string
	Breaker    BreakerConfig
}

// refundRequest is the JSON body of POST /payments/refund
type refundRequest struct {
	TransactionID string `json:"transactionId"`
	OrderID       string `json:"orderId"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason,omitempty"`
}

type refundResponse struct {
	Status        string `json:"status"`
	RefundID      string `json:"refundId"`
	TransactionID string `json:"transactionId"`
	ID            string `json:"id"`
	Message       string `json:"message"`
	Error         string `json:"error"`
}

// rejection is a refusal by the gateway. It does not count toward opening the breaker.
type rejection struct {
	message    string
	httpStatus int
}

func (r *rejection) Error() string {
	return fmt.Sprintf("gateway rejected refund (HTTP %d): %s", r.httpStatus, r.message)
}

// Gateway implements ports.RefundGateway against the Kashier REST API
type Gateway struct {
	cfg     Config
	client  ports.HTTPClient
	breaker *Breaker
	logger  *zap.Logger
}

// NewGateway creates a new Kashier refund gateway. The client's own timeout
// is a backstop; callers bound each call with a context deadline.
func NewGateway(cfg Config, client ports.HTTPClient, logger *zap.Logger) *Gateway {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker = DefaultBreakerConfig()
	}
	cfg.Breaker.IsFailure = func(err error) bool {
		var r *rejection
		return !errors.As(err, &r)
	}

	g := &Gateway{cfg: cfg, client: client, logger: logger}
	g.breaker = NewBreaker(cfg.Breaker, func(from, to BreakerState) {
		logger.Warn("Refund gateway circuit state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	})
	return g
}

// Refund reverses all or part of a captured payment. It never retries.
func (g *Gateway) Refund(ctx context.Context, req *ports.RefundRequest) (*ports.RefundResponse, error) {
	if g.cfg.MerchantID == "" || g.cfg.APIKey == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayUnavailable, "refund gateway credentials not configured")
	}

	currency := req.Currency
	if currency == "" {
		currency = g.cfg.Currency
	}
	body, err := json.Marshal(refundRequest{
		TransactionID: req.TransactionID,
		OrderID:       req.OrderID,
		Amount:        req.Amount.StringFixed(2),
		Currency:      currency,
		Reason:        req.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("encode refund request: %w", err)
	}

	start := time.Now()
	var resp *ports.RefundResponse
	err = g.breaker.Do(func() error {
		var callErr error
		resp, callErr = g.post(ctx, body)
		return callErr
	})
	observability.RecordGatewayRequest("refund", gatewayStatus(err), time.Since(start).Seconds())

	if err != nil {
		g.logger.Error("Refund gateway call failed",
			zap.String("order_id", req.OrderID),
			zap.String("amount", req.Amount.StringFixed(2)),
			zap.String("circuit_state", g.breaker.State().String()),
			zap.Error(err),
		)
		if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyProbes) {
			return nil, domain.WrapError(domain.ErrorCodeGatewayUnavailable, "refund gateway unavailable", err)
		}
		var r *rejection
		if errors.As(err, &r) {
			return nil, domain.WrapError(domain.ErrorCodeRefundGatewayFailed, r.message, err).
				WithDetail("http_status", r.httpStatus)
		}
		return nil, err
	}

	g.logger.Info("Refund accepted by gateway",
		zap.String("order_id", req.OrderID),
		zap.String("refund_id", resp.RefundID),
		zap.String("amount", req.Amount.StringFixed(2)),
	)
	return resp, nil
}

func (g *Gateway) post(ctx context.Context, body []byte) (*ports.RefundResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.APIURL+"/payments/refund", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create refund request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Basic "+g.authToken())

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send refund request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read refund response: %w", err)
	}

	var parsed refundResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("refund gateway returned HTTP %d", httpResp.StatusCode)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 || strings.EqualFold(parsed.Status, "FAILURE") {
		msg := parsed.Message
		if msg == "" {
			msg = parsed.Error
		}
		if msg == "" {
			msg = fmt.Sprintf("Refund failed (HTTP %d)", httpResp.StatusCode)
		}
		return nil, &rejection{message: msg, httpStatus: httpResp.StatusCode}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode refund response: %w", decodeErr)
	}

	refundID := parsed.RefundID
	if refundID == "" {
		refundID = parsed.TransactionID
	}
	if refundID == "" {
		refundID = parsed.ID
	}
	return &ports.RefundResponse{RefundID: refundID, Status: parsed.Status}, nil
}

func (g *Gateway) authToken() string {
	return base64.StdEncoding.EncodeToString([]byte(g.cfg.MerchantID + ":" + g.cfg.APIKey))
}

// BreakerState exposes the circuit state for health reporting
func (g *Gateway) BreakerState() BreakerState {
	return g.breaker.State()
}

func gatewayStatus(err error) string {
	var r *rejection
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrTooManyProbes):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &r):
		return "rejected"
	default:
		return "error"
	}
}
