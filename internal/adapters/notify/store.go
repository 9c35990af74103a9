// Package notify contains the notification sinks and the merchant mailer.
package notify

import (
	"context"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
)

// StoreNotifier writes notifications to the in-app inbox
type StoreNotifier struct {
	db   ports.DBPort
	repo ports.NotificationRepository
}

// NewStoreNotifier creates an inbox sink
func NewStoreNotifier(db ports.DBPort, repo ports.NotificationRepository) *StoreNotifier {
	return &StoreNotifier{db: db, repo: repo}
}

func (s *StoreNotifier) Notify(ctx context.Context, n domain.Notification) error {
	return s.repo.Insert(ctx, s.db.GetDB(), n)
}
