package domain

import "time"

// SweepRequest selects which abandoned orders a sweep considers.
// Exactly one concrete type is resolved at the request boundary.
type SweepRequest interface {
	sweepRequest()
}

// SweepStale is the scheduled sweep: every pending_payment order older than OlderThan
type SweepStale struct {
	OlderThan time.Duration
	Limit     int
}

// SweepOrders targets specific orders. Each must still be past the threshold.
type SweepOrders struct {
	IDs []string
}

// SweepCatchup sweeps orders created since Since that are already past the threshold.
// Used after scheduler downtime.
type SweepCatchup struct {
	Since time.Time
	Limit int
}

func (SweepStale) sweepRequest()   {}
func (SweepOrders) sweepRequest()  {}
func (SweepCatchup) sweepRequest() {}

// SweepReport summarizes one expiry sweep
type SweepReport struct {
	Errors    []string `json:"errors"`
	Found     int      `json:"found"`
	Cancelled int      `json:"cancelled"`
	Skipped   int      `json:"skipped"`
}

// Reconciliation job names, used for locks, metrics and logs
const (
	JobExpirePendingPayments = "expire_pending_payments"
	JobSettlementOverdue     = "settlement_overdue"
	JobCreateSettlements     = "create_settlements"
	JobExpireCustomOrders    = "expire_custom_orders"
)
