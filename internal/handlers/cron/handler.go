// Package cron exposes the reconciliation jobs to an external scheduler.
package cron

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/pkg/resilience"
	"go.uber.org/zap"
)

// Sweeper cancels abandoned online-payment orders
type Sweeper interface {
	Sweep(ctx context.Context, req domain.SweepRequest) (domain.SweepReport, error)
}

// SettlementScanner flags overdue merchant settlements
type SettlementScanner interface {
	Scan(ctx context.Context) (domain.SettlementReport, error)
}

// SettlementGenerator creates merchant settlements for a day of delivered orders
type SettlementGenerator interface {
	Generate(ctx context.Context) (domain.SettlementCreationReport, error)
	GenerateDay(ctx context.Context, day time.Time) (domain.SettlementCreationReport, error)
}

// CustomOrderExpirer expires stale custom-order quotes
type CustomOrderExpirer interface {
	Expire(ctx context.Context) (domain.ExpiryReport, error)
}

// Tracker runs request work as in-flight work so shutdown can drain it
type Tracker interface {
	RunWithContext(ctx context.Context, fn func(context.Context)) bool
}

// Handler serves the cron endpoints. Authentication is applied by the router.
type Handler struct {
	sweeper   Sweeper
	scanner   SettlementScanner
	generator SettlementGenerator
	expirer   CustomOrderExpirer
	tracker   Tracker
	timeouts  *resilience.TimeoutConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewHandler creates a new cron handler
func NewHandler(
	sweeper Sweeper,
	scanner SettlementScanner,
	generator SettlementGenerator,
	expirer CustomOrderExpirer,
	tracker Tracker,
	timeouts *resilience.TimeoutConfig,
	logger *zap.Logger,
) *Handler {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Handler{
		sweeper:   sweeper,
		scanner:   scanner,
		generator: generator,
		expirer:   expirer,
		tracker:   tracker,
		timeouts:  timeouts,
		logger:    logger,
		now:       time.Now,
	}
}

// sweepBody is the optional request body of the expiry endpoint.
// orderIds and since are mutually exclusive.
type sweepBody struct {
	OrderIDs []string `json:"orderIds"`
	Since    string   `json:"since"`
	Limit    int      `json:"limit"`
}

type sweepResponse struct {
	Success bool `json:"success"`
	domain.SweepReport
	ProcessedAt string `json:"processed_at"`
}

type settlementResponse struct {
	Success bool `json:"success"`
	domain.SettlementReport
	ProcessedAt string `json:"processed_at"`
}

type settlementCreationResponse struct {
	Success bool `json:"success"`
	domain.SettlementCreationReport
	ProcessedAt string `json:"processed_at"`
}

type expiryResponse struct {
	Success bool `json:"success"`
	domain.ExpiryReport
	ProcessedAt string `json:"processed_at"`
}

// ExpirePendingPayments handles /api/cron/expire-pending-payments
func (h *Handler) ExpirePendingPayments(w http.ResponseWriter, r *http.Request) {
	req, err := parseSweepRequest(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.run(w, r, domain.JobExpirePendingPayments, func(ctx context.Context) (int, interface{}, error) {
		report, err := h.sweeper.Sweep(ctx, req)
		if err != nil {
			return 0, nil, err
		}
		h.logger.Info("Pending payment sweep completed",
			zap.Int("found", report.Found),
			zap.Int("cancelled", report.Cancelled),
			zap.Int("skipped", report.Skipped),
			zap.Int("errors", len(report.Errors)),
		)
		report.Errors = nonNil(report.Errors)
		return len(report.Errors), sweepResponse{
			Success:     len(report.Errors) == 0,
			SweepReport: report,
			ProcessedAt: h.now().UTC().Format(time.RFC3339),
		}, nil
	})
}

// SettlementOverdue handles /api/cron/settlement-overdue
func (h *Handler) SettlementOverdue(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, domain.JobSettlementOverdue, func(ctx context.Context) (int, interface{}, error) {
		report, err := h.scanner.Scan(ctx)
		if err != nil {
			return 0, nil, err
		}
		h.logger.Info("Settlement overdue scan completed",
			zap.Int("found", report.Found),
			zap.Int("updated", report.Updated),
			zap.Int("emails_sent", report.EmailsSent),
			zap.Int("errors", len(report.Errors)),
		)
		report.Errors = nonNil(report.Errors)
		return len(report.Errors), settlementResponse{
			Success:          len(report.Errors) == 0,
			SettlementReport: report,
			ProcessedAt:      h.now().UTC().Format(time.RFC3339),
		}, nil
	})
}

// CreateSettlements handles /api/cron/settlements. An optional date=YYYY-MM-DD
// query settles that day instead of yesterday.
func (h *Handler) CreateSettlements(w http.ResponseWriter, r *http.Request) {
	var day *time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = &d
	}

	h.run(w, r, domain.JobCreateSettlements, func(ctx context.Context) (int, interface{}, error) {
		var (
			report domain.SettlementCreationReport
			err    error
		)
		if day != nil {
			report, err = h.generator.GenerateDay(ctx, *day)
		} else {
			report, err = h.generator.Generate(ctx)
		}
		if err != nil {
			return 0, nil, err
		}
		h.logger.Info("Settlement creation completed",
			zap.Int("orders", report.Orders),
			zap.Int("merchants", report.Merchants),
			zap.Int("created", report.Created),
			zap.Int("skipped", report.Skipped),
			zap.Int("errors", len(report.Errors)),
		)
		report.Errors = nonNil(report.Errors)
		return len(report.Errors), settlementCreationResponse{
			Success:                  len(report.Errors) == 0,
			SettlementCreationReport: report,
			ProcessedAt:              h.now().UTC().Format(time.RFC3339),
		}, nil
	})
}

// ExpireCustomOrders handles /api/cron/expire-custom-orders
func (h *Handler) ExpireCustomOrders(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, domain.JobExpireCustomOrders, func(ctx context.Context) (int, interface{}, error) {
		report, err := h.expirer.Expire(ctx)
		if err != nil {
			return 0, nil, err
		}
		h.logger.Info("Custom order expiry completed",
			zap.Int("found", report.Found),
			zap.Int("expired", report.Expired),
			zap.Int("errors", len(report.Errors)),
		)
		report.Errors = nonNil(report.Errors)
		return len(report.Errors), expiryResponse{
			Success:      len(report.Errors) == 0,
			ExpiryReport: report,
			ProcessedAt:  h.now().UTC().Format(time.RFC3339),
		}, nil
	})
}

// run executes job under the cron deadline and writes 200 on a clean run,
// 206 when per-row errors were collected.
func (h *Handler) run(w http.ResponseWriter, r *http.Request, job string, fn func(context.Context) (int, interface{}, error)) {
	h.logger.Info("Cron job triggered",
		zap.String("job", job),
		zap.String("method", r.Method),
		zap.String("remote_addr", r.RemoteAddr),
	)

	ctx, cancel := h.timeouts.CronContext(r.Context())
	defer cancel()

	var (
		errCount int
		resp     interface{}
		err      error
	)
	started := h.tracker.RunWithContext(ctx, func(ctx context.Context) {
		errCount, resp, err = fn(ctx)
	})
	if !started {
		h.respondError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	if err != nil {
		status := http.StatusInternalServerError
		if domain.IsValidationError(err) {
			status = http.StatusBadRequest
		}
		h.logger.Error("Cron job failed", zap.String("job", job), zap.Error(err))
		h.respondError(w, status, err.Error())
		return
	}

	status := http.StatusOK
	if errCount > 0 {
		status = http.StatusPartialContent
	}
	h.writeJSON(w, status, resp)
}

// HealthCheck handles GET /api/cron/health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   h.now().UTC().Format(time.RFC3339),
	})
}

// RegisterRoutes mounts the endpoints. wrap applies route-level middleware
// and auth applies the shared-secret check to the job routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, wrap func(route string, next http.Handler) http.Handler, auth func(http.Handler) http.Handler) {
	jobs := []struct {
		path    string
		route   string
		handler http.HandlerFunc
	}{
		{"/api/cron/expire-pending-payments", domain.JobExpirePendingPayments, h.ExpirePendingPayments},
		{"/api/cron/settlement-overdue", domain.JobSettlementOverdue, h.SettlementOverdue},
		{"/api/cron/settlements", domain.JobCreateSettlements, h.CreateSettlements},
		{"/api/cron/expire-custom-orders", domain.JobExpireCustomOrders, h.ExpireCustomOrders},
	}
	for _, j := range jobs {
		handler := wrap(j.route, auth(j.handler))
		mux.Handle("GET "+j.path, handler)
		mux.Handle("POST "+j.path, handler)
	}
	mux.Handle("GET /api/cron/health", wrap("cron_health", http.HandlerFunc(h.HealthCheck)))
}

// parseSweepRequest resolves the optional body into a sweep request.
// An empty body selects the scheduled stale sweep.
func parseSweepRequest(r *http.Request) (domain.SweepRequest, error) {
	var body sweepBody
	if r.Body != nil {
		dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.New("invalid request body")
		}
	}

	switch {
	case len(body.OrderIDs) > 0 && body.Since != "":
		return nil, errors.New("orderIds and since are mutually exclusive")
	case len(body.OrderIDs) > 0:
		return domain.SweepOrders{IDs: body.OrderIDs}, nil
	case body.Since != "":
		since, err := time.Parse(time.RFC3339, body.Since)
		if err != nil {
			return nil, errors.New("since must be an RFC3339 timestamp")
		}
		return domain.SweepCatchup{Since: since, Limit: body.Limit}, nil
	default:
		return domain.SweepStale{Limit: body.Limit}, nil
	}
}

// nonNil keeps the errors field a JSON array
func nonNil(errs []string) []string {
	if errs == nil {
		return []string{}
	}
	return errs
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
