package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/kevin07696/checkout-reconciler/pkg/observability"
	"github.com/kevin07696/checkout-reconciler/pkg/resilience"
)

var errOrdersClaimed = errors.New("orders were claimed by another settlement")

// Generator creates one pending settlement per merchant for the delivered
// orders of a period
type Generator struct {
	db       ports.DBPort
	repo     ports.SettlementRepository
	mailer   ports.Mailer
	timeouts *resilience.TimeoutConfig
	loc      *time.Location
	newID    func() string
	now      func() time.Time
	logger   ports.Logger
}

// NewGenerator creates a new settlement generator. A nil loc uses UTC.
func NewGenerator(
	db ports.DBPort,
	repo ports.SettlementRepository,
	mailer ports.Mailer,
	timeouts *resilience.TimeoutConfig,
	loc *time.Location,
	logger ports.Logger,
) *Generator {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{
		db:       db,
		repo:     repo,
		mailer:   mailer,
		timeouts: timeouts,
		loc:      loc,
		newID:    uuid.NewString,
		now:      time.Now,
		logger:   logger,
	}
}

// Generate settles the day before now
func (g *Generator) Generate(ctx context.Context) (domain.SettlementCreationReport, error) {
	return g.GenerateFor(ctx, domain.PreviousDay(g.now(), g.loc))
}

// GenerateDay settles the date of day, taken as a date in the settlement timezone
func (g *Generator) GenerateDay(ctx context.Context, day time.Time) (domain.SettlementCreationReport, error) {
	local := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, g.loc)
	return g.GenerateFor(ctx, domain.DayPeriod(local, g.loc))
}

// GenerateFor settles period. Reruns are safe: a merchant's settlement for a
// period is inserted at most once and an order is claimed by at most one
// settlement. Per-merchant failures are collected in the report.
func (g *Generator) GenerateFor(ctx context.Context, period domain.SettlementPeriod) (domain.SettlementCreationReport, error) {
	report := domain.SettlementCreationReport{
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		Errors:      []string{},
	}

	orders, err := g.repo.FindUnsettledDelivered(ctx, g.db.GetDB(), period)
	if err != nil {
		observability.RecordSweepRun(domain.JobCreateSettlements, "failed")
		return report, fmt.Errorf("find unsettled orders: %w", err)
	}
	report.Orders = len(orders)

	drafts := domain.GroupByMerchant(orders)
	report.Merchants = len(drafts)

	for _, draft := range drafts {
		g.settle(ctx, draft, period, &report)
	}

	observability.RecordSweepRows(domain.JobCreateSettlements, "transitioned", report.Created)
	observability.RecordSweepRows(domain.JobCreateSettlements, "skipped", report.Skipped)
	observability.RecordSweepRows(domain.JobCreateSettlements, "error", len(report.Errors))
	status := "ok"
	if len(report.Errors) > 0 {
		status = "partial"
	}
	observability.RecordSweepRun(domain.JobCreateSettlements, status)

	g.logger.Info("settlement creation completed",
		ports.String("period_start", period.Start.Format(time.RFC3339)),
		ports.String("period_end", period.End.Format(time.RFC3339)),
		ports.Int("orders", report.Orders),
		ports.Int("merchants", report.Merchants),
		ports.Int("created", report.Created),
		ports.Int("skipped", report.Skipped),
		ports.Int("emails_sent", report.EmailsSent),
		ports.Int("errors", len(report.Errors)))

	return report, nil
}

func (g *Generator) settle(ctx context.Context, draft *domain.SettlementDraft, period domain.SettlementPeriod, report *domain.SettlementCreationReport) {
	var (
		st      *domain.Settlement
		created bool
	)
	err := g.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		st, created, err = g.repo.CreateForPeriod(ctx, tx, g.newID(), draft, period)
		if err != nil || !created {
			return err
		}
		linked, err := g.repo.LinkOrders(ctx, tx, st.ID, draft.OrderIDs)
		if err != nil {
			return err
		}
		if linked != len(draft.OrderIDs) {
			return fmt.Errorf("%w: linked %d of %d", errOrdersClaimed, linked, len(draft.OrderIDs))
		}
		return nil
	})
	if err != nil {
		g.logger.Error("failed to create settlement",
			ports.String("merchant_id", draft.MerchantID),
			ports.Err(err))
		report.Errors = append(report.Errors, fmt.Sprintf("merchant %s: %v", draft.MerchantID, err))
		return
	}
	if !created {
		g.logger.Warn("settlement for period already exists, orders left unsettled",
			ports.String("merchant_id", draft.MerchantID),
			ports.Int("orders", len(draft.OrderIDs)))
		report.Skipped++
		return
	}
	report.Created++

	g.logger.Info("settlement created",
		ports.String("settlement_id", st.ID),
		ports.String("merchant_id", st.MerchantID),
		ports.Int("orders", len(draft.OrderIDs)),
		ports.String("amount_due", st.Amount.StringFixed(2)))

	if g.notifyMerchant(ctx, st, draft) {
		report.EmailsSent++
	}
}

// notifyMerchant sends the settlement statement. Failures are logged only;
// the settlement stands either way.
func (g *Generator) notifyMerchant(ctx context.Context, st *domain.Settlement, draft *domain.SettlementDraft) bool {
	if st.MerchantEmail == "" {
		return false
	}

	ctx, cancel := g.timeouts.NonCriticalContext(ctx)
	defer cancel()

	if err := g.mailer.Send(ctx, CreatedEmail(st, draft)); err != nil {
		g.logger.Warn("settlement email failed",
			ports.String("settlement_id", st.ID),
			ports.String("merchant_id", st.MerchantID),
			ports.Err(err))
		return false
	}
	return true
}

// CreatedEmail renders the statement sent when a settlement is created
func CreatedEmail(st *domain.Settlement, draft *domain.SettlementDraft) domain.Email {
	name := st.MerchantName
	if name == "" {
		name = "Merchant"
	}
	return domain.Email{
		To:      st.MerchantEmail,
		Subject: fmt.Sprintf("New Settlement - %s", st.PeriodStart.Format("2006-01-02")),
		Body: fmt.Sprintf(
			"Dear %s,\n\n"+
				"Your settlement for %s is ready.\n\n"+
				"Orders: %d\n"+
				"Gross revenue: %s EGP\n"+
				"Platform commission due: %s EGP\n"+
				"Your net revenue: %s EGP\n\n"+
				"Settlement reference: %s\n",
			name,
			st.PeriodStart.Format("2006-01-02"),
			len(draft.OrderIDs),
			draft.GrossRevenue.StringFixed(2),
			draft.AmountDue().StringFixed(2),
			draft.NetRevenue().StringFixed(2),
			st.ID,
		),
	}
}
