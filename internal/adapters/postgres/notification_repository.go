package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
)

// notificationRepository implements ports.NotificationRepository
type notificationRepository struct{}

// NewNotificationRepository creates a repository for the in-app notification inbox
func NewNotificationRepository() ports.NotificationRepository {
	return &notificationRepository{}
}

func (r *notificationRepository) Insert(ctx context.Context, db ports.DBTX, n domain.Notification) error {
	var related pgtype.Text
	if n.RelatedOrderID != "" {
		related = pgtype.Text{String: n.RelatedOrderID, Valid: true}
	}
	_, err := db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, body, related_order_id, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Body, related, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
