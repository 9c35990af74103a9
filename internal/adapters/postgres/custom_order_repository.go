package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
)

// customOrderRepository implements ports.CustomOrderRepository
type customOrderRepository struct{}

// NewCustomOrderRepository creates a new PostgreSQL custom order repository
func NewCustomOrderRepository() ports.CustomOrderRepository {
	return &customOrderRepository{}
}

func (r *customOrderRepository) FindExpiredQuotes(ctx context.Context, db ports.DBTX, quotedBefore time.Time, limit int) ([]*domain.CustomOrder, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(ctx, `
		SELECT id, user_id, merchant_id, status, quoted_at, expired_at, created_at
		FROM custom_orders
		WHERE status = $1 AND quoted_at < $2
		ORDER BY quoted_at
		LIMIT $3`, string(domain.CustomOrderPriced), quotedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("query expired quotes: %w", err)
	}
	defer rows.Close()

	var orders []*domain.CustomOrder
	for rows.Next() {
		var (
			o         domain.CustomOrder
			status    string
			expiredAt pgtype.Timestamptz
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.MerchantID, &status, &o.QuotedAt, &expiredAt, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan custom order: %w", err)
		}
		o.Status = domain.CustomOrderStatus(status)
		o.ExpiredAt = optionalTime(expiredAt)
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate custom orders: %w", err)
	}
	return orders, nil
}

func (r *customOrderRepository) SwapStatus(ctx context.Context, db ports.DBTX, id string, from, to domain.CustomOrderStatus) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE custom_orders
		SET status = $3::text,
		    expired_at = CASE WHEN $3::text = 'expired' THEN now() ELSE expired_at END
		WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("swap custom order status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
