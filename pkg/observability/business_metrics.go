package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Compare-and-swap outcomes per entity
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_transitions_total",
		Help: "Conditional state transitions attempted, by outcome",
	}, []string{
		"entity", // order, settlement, custom_order
		"result", // applied, skipped, error
	})

	webhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_webhooks_total",
		Help: "Gateway callbacks received, by outcome",
	}, []string{
		"kind",    // payment, refund
		"outcome", // processed, already_processed, race_lost, ignored, rejected, not_found, error
	})

	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_sweep_runs_total",
		Help: "Reconciliation job runs",
	}, []string{
		"job",    // expire_pending_payments, settlement_overdue, expire_custom_orders
		"status", // ok, partial, failed, lock_held, lock_error
	})

	sweepRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_sweep_rows_total",
		Help: "Rows handled by reconciliation jobs",
	}, []string{
		"job",
		"result", // transitioned, skipped, error
	})

	refundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_refunds_total",
		Help: "Administrator refunds, by result",
	}, []string{
		"result", // refunded, already_refunded, gateway_failed, store_failed, rejected
	})

	gatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reconciler_gateway_request_duration_seconds",
		Help:    "Outbound payment gateway call latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"operation",
		"status", // ok, error
	})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_notifications_total",
		Help: "Notification deliveries, by sink and result",
	}, []string{
		"sink",
		"result", // sent, failed
	})

	rateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{
		"route",
	})
)

func RecordTransition(entity, result string) {
	transitionsTotal.WithLabelValues(entity, result).Inc()
}

func RecordWebhook(kind, outcome string) {
	webhooksTotal.WithLabelValues(kind, outcome).Inc()
}

func RecordSweepRun(job, status string) {
	sweepRunsTotal.WithLabelValues(job, status).Inc()
}

// RecordSweepRows adds count rows for a job result; zero counts are skipped
func RecordSweepRows(job, result string, count int) {
	if count <= 0 {
		return
	}
	sweepRowsTotal.WithLabelValues(job, result).Add(float64(count))
}

func RecordRefund(result string) {
	refundsTotal.WithLabelValues(result).Inc()
}

func RecordGatewayRequest(operation, status string, seconds float64) {
	gatewayRequestDuration.WithLabelValues(operation, status).Observe(seconds)
}

func RecordNotification(sink, result string) {
	notificationsTotal.WithLabelValues(sink, result).Inc()
}

func RecordRateLimited(route string) {
	rateLimitedTotal.WithLabelValues(route).Inc()
}
