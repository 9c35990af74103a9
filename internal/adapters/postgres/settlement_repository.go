package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
)

// settlementRepository implements ports.SettlementRepository
type settlementRepository struct{}

// NewSettlementRepository creates a new PostgreSQL settlement repository
func NewSettlementRepository() ports.SettlementRepository {
	return &settlementRepository{}
}

func (r *settlementRepository) FindOverdueCandidates(ctx context.Context, db ports.DBTX, cutoff time.Time, limit int) ([]*domain.Settlement, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(ctx, `
		SELECT id, merchant_id, merchant_name, merchant_email, amount, status,
		       period_start, period_end, overdue_at, created_at
		FROM settlements
		WHERE status = $1 AND period_end < $2
		ORDER BY period_end
		LIMIT $3`, string(domain.SettlementPending), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query overdue settlements: %w", err)
	}
	defer rows.Close()

	var settlements []*domain.Settlement
	for rows.Next() {
		var (
			s         domain.Settlement
			status    string
			amount    pgtype.Numeric
			overdueAt pgtype.Timestamptz
		)
		if err := rows.Scan(&s.ID, &s.MerchantID, &s.MerchantName, &s.MerchantEmail, &amount, &status,
			&s.PeriodStart, &s.PeriodEnd, &overdueAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		s.Status = domain.SettlementStatus(status)
		s.OverdueAt = optionalTime(overdueAt)
		if s.Amount, err = pgNumericToDecimal(amount); err != nil {
			return nil, fmt.Errorf("parse settlement amount: %w", err)
		}
		settlements = append(settlements, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlements: %w", err)
	}
	return settlements, nil
}

func (r *settlementRepository) SwapStatus(ctx context.Context, db ports.DBTX, id string, from, to domain.SettlementStatus) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE settlements
		SET status = $3::text,
		    overdue_at = CASE WHEN $3::text = 'overdue' THEN now() ELSE overdue_at END,
		    updated_at = now()
		WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("swap settlement status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *settlementRepository) FindUnsettledDelivered(ctx context.Context, db ports.DBTX, period domain.SettlementPeriod) ([]*domain.UnsettledOrder, error) {
	rows, err := db.Query(ctx, `
		SELECT o.id, o.merchant_id,
		       COALESCE(NULLIF(m.name, ''), 'Unknown Merchant'), COALESCE(m.email, ''),
		       o.total, o.platform_commission, o.delivery_fee
		FROM orders o
		LEFT JOIN merchants m ON m.id = o.merchant_id
		WHERE o.status = $1
		  AND o.settlement_id IS NULL
		  AND o.delivered_at >= $2 AND o.delivered_at < $3
		ORDER BY o.merchant_id, o.delivered_at`,
		string(domain.OrderStatusDelivered), period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("query unsettled orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.UnsettledOrder
	for rows.Next() {
		var (
			o                      domain.UnsettledOrder
			total, commission, fee pgtype.Numeric
		)
		if err := rows.Scan(&o.ID, &o.MerchantID, &o.MerchantName, &o.MerchantEmail, &total, &commission, &fee); err != nil {
			return nil, fmt.Errorf("scan unsettled order: %w", err)
		}
		if o.Total, err = pgNumericToDecimal(total); err != nil {
			return nil, fmt.Errorf("parse order total: %w", err)
		}
		if o.PlatformCommission, err = pgNumericToDecimal(commission); err != nil {
			return nil, fmt.Errorf("parse platform commission: %w", err)
		}
		if o.DeliveryFee, err = pgNumericToDecimal(fee); err != nil {
			return nil, fmt.Errorf("parse delivery fee: %w", err)
		}
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unsettled orders: %w", err)
	}
	return orders, nil
}

func (r *settlementRepository) CreateForPeriod(ctx context.Context, db ports.DBTX, id string, draft *domain.SettlementDraft, period domain.SettlementPeriod) (*domain.Settlement, bool, error) {
	st := domain.Settlement{
		ID:            id,
		MerchantID:    draft.MerchantID,
		MerchantName:  draft.MerchantName,
		MerchantEmail: draft.MerchantEmail,
		Amount:        draft.AmountDue(),
		Status:        domain.SettlementPending,
		PeriodStart:   period.Start,
		PeriodEnd:     period.End,
	}
	err := db.QueryRow(ctx, `
		INSERT INTO settlements (
			id, merchant_id, merchant_name, merchant_email, amount, status,
			period_start, period_end, total_orders, gross_revenue,
			platform_commission, delivery_fees, net_revenue
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (merchant_id, period_start, period_end) DO NOTHING
		RETURNING created_at`,
		st.ID, st.MerchantID, st.MerchantName, st.MerchantEmail, st.Amount.String(), string(st.Status),
		period.Start, period.End, len(draft.OrderIDs), draft.GrossRevenue.String(),
		draft.PlatformCommission.String(), draft.DeliveryFees.String(), draft.NetRevenue().String(),
	).Scan(&st.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert settlement: %w", err)
	}
	return &st, true, nil
}

func (r *settlementRepository) LinkOrders(ctx context.Context, db ports.DBTX, settlementID string, orderIDs []string) (int, error) {
	tag, err := db.Exec(ctx, `
		UPDATE orders
		SET settlement_id = $1, updated_at = now()
		WHERE id = ANY($2::text[]) AND settlement_id IS NULL`, settlementID, orderIDs)
	if err != nil {
		return 0, fmt.Errorf("link orders to settlement: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
