// Package settlement creates daily merchant settlements from delivered orders
// and flags the ones not paid by the end of their grace period.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/kevin07696/checkout-reconciler/internal/services/transition"
	"github.com/kevin07696/checkout-reconciler/pkg/observability"
	"github.com/kevin07696/checkout-reconciler/pkg/resilience"
)

const (
	DefaultGracePeriod = 24 * time.Hour
	DefaultBatchSize   = 500
)

// Scanner moves pending settlements past their grace period to overdue
// and emails the merchant once per settlement
type Scanner struct {
	db        ports.DBPort
	repo      ports.SettlementRepository
	mailer    ports.Mailer
	timeouts  *resilience.TimeoutConfig
	grace     time.Duration
	batchSize int
	now       func() time.Time
	logger    ports.Logger
}

// NewScanner creates a new settlement overdue scanner
func NewScanner(
	db ports.DBPort,
	repo ports.SettlementRepository,
	mailer ports.Mailer,
	timeouts *resilience.TimeoutConfig,
	grace time.Duration,
	batchSize int,
	logger ports.Logger,
) *Scanner {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Scanner{
		db:        db,
		repo:      repo,
		mailer:    mailer,
		timeouts:  timeouts,
		grace:     grace,
		batchSize: batchSize,
		now:       time.Now,
		logger:    logger,
	}
}

// Scan processes one batch of overdue candidates
func (s *Scanner) Scan(ctx context.Context) (domain.SettlementReport, error) {
	report := domain.SettlementReport{Errors: []string{}}
	now := s.now()

	candidates, err := s.repo.FindOverdueCandidates(ctx, s.db.GetDB(), now.Add(-s.grace), s.batchSize)
	if err != nil {
		observability.RecordSweepRun(domain.JobSettlementOverdue, "failed")
		return report, fmt.Errorf("find overdue settlements: %w", err)
	}
	report.Found = len(candidates)

	for _, st := range candidates {
		days := st.OverdueDays(now)
		if days < 1 {
			report.Skipped++
			continue
		}

		applied, err := transition.Swap[domain.SettlementStatus](ctx, s.repo, s.db.GetDB(), "settlement", st.ID,
			domain.SettlementPending, domain.SettlementOverdue)
		if err != nil {
			s.logger.Error("failed to mark settlement overdue",
				ports.String("settlement_id", st.ID),
				ports.Err(err))
			report.Errors = append(report.Errors, fmt.Sprintf("settlement %s: %v", st.ID, err))
			continue
		}
		if !applied {
			report.Skipped++
			continue
		}
		report.Updated++

		s.logger.Info("settlement marked overdue",
			ports.String("settlement_id", st.ID),
			ports.String("merchant_id", st.MerchantID),
			ports.Int("overdue_days", days))

		sent, err := s.notifyMerchant(ctx, st, days)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("email for settlement %s: %v", st.ID, err))
		}
		if sent {
			report.EmailsSent++
		}
	}

	observability.RecordSweepRows(domain.JobSettlementOverdue, "transitioned", report.Updated)
	observability.RecordSweepRows(domain.JobSettlementOverdue, "skipped", report.Skipped)
	observability.RecordSweepRows(domain.JobSettlementOverdue, "error", len(report.Errors))
	status := "ok"
	if len(report.Errors) > 0 {
		status = "partial"
	}
	observability.RecordSweepRun(domain.JobSettlementOverdue, status)

	s.logger.Info("settlement overdue scan completed",
		ports.Int("found", report.Found),
		ports.Int("updated", report.Updated),
		ports.Int("skipped", report.Skipped),
		ports.Int("emails_sent", report.EmailsSent),
		ports.Int("errors", len(report.Errors)))

	return report, nil
}

// notifyMerchant sends the overdue email. A failure never undoes the transition.
func (s *Scanner) notifyMerchant(ctx context.Context, st *domain.Settlement, days int) (bool, error) {
	if st.MerchantEmail == "" {
		s.logger.Warn("settlement merchant has no email",
			ports.String("settlement_id", st.ID),
			ports.String("merchant_id", st.MerchantID))
		return false, nil
	}

	ctx, cancel := s.timeouts.NonCriticalContext(ctx)
	defer cancel()

	if err := s.mailer.Send(ctx, OverdueEmail(st, days)); err != nil {
		s.logger.Warn("overdue email failed",
			ports.String("settlement_id", st.ID),
			ports.String("merchant_id", st.MerchantID),
			ports.Err(err))
		return false, err
	}
	return true, nil
}

// OverdueEmail renders the merchant reminder for a settlement overdue by days
func OverdueEmail(st *domain.Settlement, days int) domain.Email {
	name := st.MerchantName
	if name == "" {
		name = "Merchant"
	}
	return domain.Email{
		To:      st.MerchantEmail,
		Subject: fmt.Sprintf("Settlement Payment Overdue - %d days", days),
		Body: fmt.Sprintf(
			"Dear %s,\n\n"+
				"Your settlement of %s EGP for the period %s to %s is %d days overdue.\n"+
				"Please complete the payment as soon as possible to avoid interruption of your store.\n\n"+
				"Settlement reference: %s\n",
			name,
			st.Amount.StringFixed(2),
			st.PeriodStart.Format("2006-01-02"),
			st.PeriodEnd.Format("2006-01-02"),
			days,
			st.ID,
		),
	}
}
