package ports

import (
	"context"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
)

// Notifier delivers customer notifications. Callers treat errors as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Mailer sends merchant emails. Callers treat errors as non-fatal.
type Mailer interface {
	Send(ctx context.Context, email domain.Email) error
}

// Locker provides a cross-instance mutual exclusion for scheduled jobs
type Locker interface {
	// TryLock returns acquired=false without error when another holder owns key
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// NotificationRepository persists customer notifications to the in-app inbox
type NotificationRepository interface {
	Insert(ctx context.Context, db DBTX, n domain.Notification) error
}
