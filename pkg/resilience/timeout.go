package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines the timeout hierarchy, outermost first:
//
//	Cron job (5m)
//	  HTTP handler (60s)
//	    Commit (50s)
//	      Gateway call (30s)
//	      Notification delivery (10s)
//
// Each layer must finish before its parent gives up.
type TimeoutConfig struct {
	CronJob      time.Duration // Whole reconciliation run
	HTTPHandler  time.Duration // Webhook and admin requests
	Service      time.Duration // Store commit after an external side effect
	ExternalAPI  time.Duration // Refund call to the payment gateway
	Notification time.Duration // Best-effort notification fan-out
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		CronJob:      5 * time.Minute,
		HTTPHandler:  60 * time.Second,
		Service:      50 * time.Second,
		ExternalAPI:  30 * time.Second,
		Notification: 10 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		CronJob:      10 * time.Second,
		HTTPHandler:  5 * time.Second,
		Service:      4 * time.Second,
		ExternalAPI:  2 * time.Second,
		Notification: 1 * time.Second,
	}
}

// CronContext creates a context with timeout for a reconciliation run
func (tc *TimeoutConfig) CronContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.CronJob)
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// CommitContext creates a context for store writes that record a side effect
// which already happened elsewhere, such as a refund the gateway accepted or
// an order the sweeper cancelled. It ignores parent cancellation and is
// bounded by the service timeout.
func (tc *TimeoutConfig) CommitContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), tc.Service)
}

// ExternalAPIContext creates a context for gateway calls
func (tc *TimeoutConfig) ExternalAPIContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.ExternalAPI)
}

// NonCriticalContext creates a context for notification delivery.
// It is detached from parent cancellation so a finished request does not
// abort deliveries it started.
func (tc *TimeoutConfig) NonCriticalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), tc.Notification)
}
