package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
)

// promoRepository implements ports.PromoRepository
type promoRepository struct{}

// NewPromoRepository creates a new PostgreSQL promo ledger repository
func NewPromoRepository() ports.PromoRepository {
	return &promoRepository{}
}

func (r *promoRepository) ListUsagesByOrder(ctx context.Context, db ports.DBTX, orderID string) ([]*domain.PromoCodeUsage, error) {
	rows, err := db.Query(ctx, `
		SELECT id::text, promo_code, user_id, order_id, created_at
		FROM promo_code_usages
		WHERE order_id = $1
		ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query promo usages: %w", err)
	}
	defer rows.Close()

	var usages []*domain.PromoCodeUsage
	for rows.Next() {
		var u domain.PromoCodeUsage
		if err := rows.Scan(&u.ID, &u.PromoCode, &u.UserID, &u.OrderID, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan promo usage: %w", err)
		}
		usages = append(usages, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate promo usages: %w", err)
	}
	return usages, nil
}

func (r *promoRepository) DeleteUsage(ctx context.Context, db ports.DBTX, usageID string) (bool, error) {
	tag, err := db.Exec(ctx, `DELETE FROM promo_code_usages WHERE id = $1::uuid`, usageID)
	if err != nil {
		return false, fmt.Errorf("delete promo usage: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *promoRepository) GetUsageCount(ctx context.Context, db ports.DBTX, code string) (int, error) {
	var count int
	err := db.QueryRow(ctx, `SELECT usage_count FROM promo_codes WHERE code = $1`, code).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("promo code %s not found: %w", code, err)
		}
		return 0, fmt.Errorf("get promo usage count: %w", err)
	}
	return count, nil
}

func (r *promoRepository) CompareAndSwapUsageCount(ctx context.Context, db ports.DBTX, code string, expected, next int) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE promo_codes
		SET usage_count = $3, updated_at = now()
		WHERE code = $1 AND usage_count = $2`, code, expected, next)
	if err != nil {
		return false, fmt.Errorf("swap promo usage count: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
