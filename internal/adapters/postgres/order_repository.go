package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
)

const orderColumns = `id, user_id, merchant_id, payment_method, payment_status, status, total, currency,
	payment_transaction_id, promo_code, refund_amount, refund_transaction_id, refunded_at,
	pre_refund_status, cancelled_at, paid_at, created_at, updated_at`

// orderRepository implements ports.OrderRepository with raw pgx queries
type orderRepository struct{}

// NewOrderRepository creates a new PostgreSQL order repository
func NewOrderRepository() ports.OrderRepository {
	return &orderRepository{}
}

func (r *orderRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Order, error) {
	row := db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound(id)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) FindStalePendingPayment(ctx context.Context, db ports.DBTX, filter ports.StaleOrderFilter) ([]*domain.Order, error) {
	var createdAfter pgtype.Timestamptz
	if filter.CreatedAfter != nil {
		createdAfter = pgtype.Timestamptz{Time: *filter.CreatedAfter, Valid: true}
	}
	ids := filter.IDs
	if ids == nil {
		ids = []string{}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}

	rows, err := db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = $1
		  AND created_at < $2
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND (cardinality($4::text[]) = 0 OR id = ANY($4))
		ORDER BY created_at
		LIMIT $5`,
		string(domain.OrderStatusPendingPayment), filter.CreatedBefore, createdAfter, ids, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query stale orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale orders: %w", err)
	}
	return orders, nil
}

// CompareAndSwap issues UPDATE ... WHERE id = $1 AND <guard> = $2 RETURNING.
// No returned row means zero rows were affected.
func (r *orderRepository) CompareAndSwap(ctx context.Context, db ports.DBTX, id string, guard domain.OrderGuard, change domain.OrderChange) (*domain.Order, error) {
	query, args, err := buildOrderUpdate(id, guard, change)
	if err != nil {
		return nil, err
	}

	order, err := scanOrder(db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("conditional update order: %w", err)
	}
	return order, nil
}

// buildOrderUpdate renders the conditional update for a transition
func buildOrderUpdate(id string, guard domain.OrderGuard, change domain.OrderChange) (string, []interface{}, error) {
	switch guard.Field {
	case domain.GuardOnStatus, domain.GuardOnPaymentStatus:
	default:
		return "", nil, fmt.Errorf("unsupported guard column %q", guard.Field)
	}
	if change.IsEmpty() {
		return "", nil, errors.New("empty order change")
	}

	args := []interface{}{id, guard.Value}
	var sets []string
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if change.Status != nil {
		set("status", string(*change.Status))
	}
	if change.PaymentStatus != nil {
		set("payment_status", string(*change.PaymentStatus))
	}
	if change.PaymentTransactionID != nil {
		set("payment_transaction_id", *change.PaymentTransactionID)
	}
	if change.PaidAt != nil {
		set("paid_at", *change.PaidAt)
	}
	if change.CancelledAt != nil {
		set("cancelled_at", *change.CancelledAt)
	}
	if change.ClearRefund {
		sets = append(sets,
			"refund_amount = NULL",
			"refund_transaction_id = NULL",
			"refunded_at = NULL",
			"pre_refund_status = NULL",
		)
	} else {
		if change.RefundAmount != nil {
			args = append(args, change.RefundAmount.String())
			sets = append(sets, fmt.Sprintf("refund_amount = $%d::numeric", len(args)))
		}
		if change.RefundTransactionID != nil {
			set("refund_transaction_id", *change.RefundTransactionID)
		}
		if change.RefundedAt != nil {
			set("refunded_at", *change.RefundedAt)
		}
		if change.PreRefundStatus != nil {
			set("pre_refund_status", string(*change.PreRefundStatus))
		}
	}
	sets = append(sets, "updated_at = now()")

	query := fmt.Sprintf(
		"UPDATE orders SET %s WHERE id = $1 AND %s = $2 RETURNING %s",
		strings.Join(sets, ", "), guard.Field, orderColumns,
	)
	return query, args, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                                                   domain.Order
		paymentMethod, paymentStatus, status                string
		total, refundAmount                                 pgtype.Numeric
		currency, txnID, promoCode, refundTxnID, preRefund pgtype.Text
		refundedAt, cancelledAt, paidAt                     pgtype.Timestamptz
	)

	err := row.Scan(
		&o.ID, &o.UserID, &o.MerchantID, &paymentMethod, &paymentStatus, &status, &total, &currency,
		&txnID, &promoCode, &refundAmount, &refundTxnID, &refundedAt,
		&preRefund, &cancelledAt, &paidAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.PaymentMethod = domain.PaymentMethod(paymentMethod)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	o.Status = domain.OrderStatus(status)
	o.Currency = currency.String
	o.PaymentTransactionID = optionalText(txnID)
	o.PromoCode = optionalText(promoCode)
	o.RefundTransactionID = optionalText(refundTxnID)
	o.RefundedAt = optionalTime(refundedAt)
	o.CancelledAt = optionalTime(cancelledAt)
	o.PaidAt = optionalTime(paidAt)
	if preRefund.Valid {
		s := domain.OrderStatus(preRefund.String)
		o.PreRefundStatus = &s
	}

	if o.Total, err = pgNumericToDecimal(total); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if o.RefundAmount, err = optionalDecimal(refundAmount); err != nil {
		return nil, fmt.Errorf("parse refund amount: %w", err)
	}
	return &o, nil
}
