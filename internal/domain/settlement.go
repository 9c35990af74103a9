package domain

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementStatus represents the status of a merchant settlement
type SettlementStatus string

const (
	SettlementPending SettlementStatus = "pending"
	SettlementOverdue SettlementStatus = "overdue"
	SettlementPaid    SettlementStatus = "paid"
)

// Settlement is the amount a merchant owes the platform for a billing period
type Settlement struct {
	PeriodStart   time.Time        `json:"period_start"`
	PeriodEnd     time.Time        `json:"period_end"`
	CreatedAt     time.Time        `json:"created_at"`
	OverdueAt     *time.Time       `json:"overdue_at"`
	ID            string           `json:"id"`
	MerchantID    string           `json:"merchant_id"`
	MerchantName  string           `json:"merchant_name"`
	MerchantEmail string           `json:"merchant_email"`
	Status        SettlementStatus `json:"status"`
	Amount        decimal.Decimal  `json:"amount"`
}

// OverdueDays returns the number of started days since the period ended
func (s *Settlement) OverdueDays(now time.Time) int {
	elapsed := now.Sub(s.PeriodEnd)
	if elapsed <= 0 {
		return 0
	}
	return int(math.Ceil(elapsed.Hours() / 24))
}

// SettlementReport summarizes one overdue scan
type SettlementReport struct {
	Errors     []string `json:"errors"`
	Found      int      `json:"found"`
	Updated    int      `json:"updated"`
	Skipped    int      `json:"skipped"`
	EmailsSent int      `json:"emails_sent"`
}

// SettlementPeriod is the half-open billing window [Start, End)
type SettlementPeriod struct {
	Start time.Time
	End   time.Time
}

// DayPeriod returns the calendar day containing t in loc
func DayPeriod(t time.Time, loc *time.Location) SettlementPeriod {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return SettlementPeriod{Start: start, End: start.AddDate(0, 0, 1)}
}

// PreviousDay returns the calendar day before now in loc
func PreviousDay(now time.Time, loc *time.Location) SettlementPeriod {
	return DayPeriod(now.In(loc).AddDate(0, 0, -1), loc)
}

// UnsettledOrder is a delivered order not yet attached to a settlement
type UnsettledOrder struct {
	ID                 string
	MerchantID         string
	MerchantName       string
	MerchantEmail      string
	Total              decimal.Decimal
	PlatformCommission decimal.Decimal
	DeliveryFee        decimal.Decimal
}

// SettlementDraft is one merchant's settlement before it is stored
type SettlementDraft struct {
	MerchantID         string
	MerchantName       string
	MerchantEmail      string
	OrderIDs           []string
	GrossRevenue       decimal.Decimal
	PlatformCommission decimal.Decimal
	DeliveryFees       decimal.Decimal
}

// AmountDue is what the merchant owes the platform for the period
func (d *SettlementDraft) AmountDue() decimal.Decimal {
	return d.PlatformCommission
}

// NetRevenue is the merchant's share of the period's gross revenue
func (d *SettlementDraft) NetRevenue() decimal.Decimal {
	return d.GrossRevenue.Sub(d.PlatformCommission)
}

// GroupByMerchant folds orders into one draft per merchant, sorted by merchant id
func GroupByMerchant(orders []*UnsettledOrder) []*SettlementDraft {
	byMerchant := make(map[string]*SettlementDraft)
	for _, o := range orders {
		d, ok := byMerchant[o.MerchantID]
		if !ok {
			d = &SettlementDraft{
				MerchantID:    o.MerchantID,
				MerchantName:  o.MerchantName,
				MerchantEmail: o.MerchantEmail,
			}
			byMerchant[o.MerchantID] = d
		}
		d.OrderIDs = append(d.OrderIDs, o.ID)
		d.GrossRevenue = d.GrossRevenue.Add(o.Total)
		d.PlatformCommission = d.PlatformCommission.Add(o.PlatformCommission)
		d.DeliveryFees = d.DeliveryFees.Add(o.DeliveryFee)
	}

	drafts := make([]*SettlementDraft, 0, len(byMerchant))
	for _, d := range byMerchant {
		drafts = append(drafts, d)
	}
	sort.Slice(drafts, func(i, j int) bool { return drafts[i].MerchantID < drafts[j].MerchantID })
	return drafts
}

// SettlementCreationReport summarizes one settlement creation run
type SettlementCreationReport struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Errors      []string  `json:"errors"`
	Orders      int       `json:"orders"`
	Merchants   int       `json:"merchants_processed"`
	Created     int       `json:"settlements_created"`
	Skipped     int       `json:"skipped"`
	EmailsSent  int       `json:"emails_sent"`
}
