// Package promo releases promo-code reservations held by orders that never
// completed payment.
package promo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/kevin07696/checkout-reconciler/pkg/resilience"
)

// DefaultMaxAttempts bounds optimistic retries per usage row
const DefaultMaxAttempts = 5

var errCounterConflict = errors.New("promo usage counter changed concurrently")

// Compensator reverses promo usage for cancelled orders. Each usage row is
// deleted and its counter decremented in one transaction, so running the
// compensator twice for the same order decrements at most once.
type Compensator struct {
	db          ports.DBPort
	promos      ports.PromoRepository
	backoff     resilience.BackoffStrategy
	timeouts    *resilience.TimeoutConfig
	maxAttempts int
	logger      ports.Logger
}

// Option configures a Compensator
type Option func(*Compensator)

// WithBackoff overrides the retry backoff
func WithBackoff(b resilience.BackoffStrategy) Option {
	return func(c *Compensator) { c.backoff = b }
}

// WithMaxAttempts overrides the retry limit
func WithMaxAttempts(n int) Option {
	return func(c *Compensator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithTimeouts overrides the timeout used for the release commit
func WithTimeouts(tc *resilience.TimeoutConfig) Option {
	return func(c *Compensator) {
		if tc != nil {
			c.timeouts = tc
		}
	}
}

// NewCompensator creates a new promo compensator
func NewCompensator(db ports.DBPort, promos ports.PromoRepository, logger ports.Logger, opts ...Option) *Compensator {
	c := &Compensator{
		db:          db,
		promos:      promos,
		backoff:     resilience.LedgerRetryBackoff(),
		timeouts:    resilience.DefaultTimeoutConfig(),
		maxAttempts: DefaultMaxAttempts,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type releaseOutcome int

const (
	outcomeReleased releaseOutcome = iota
	outcomeAlreadyReleased
	outcomeCounterAtZero
)

// Release returns every promo usage recorded against orderID and reports
// how many counters were decremented. It is called after the order's
// cancellation committed, so it runs to completion even when ctx is
// cancelled. Rows are released independently; failures are joined.
func (c *Compensator) Release(ctx context.Context, orderID string) (int, error) {
	ctx, cancel := c.timeouts.CommitContext(ctx)
	defer cancel()

	usages, err := c.promos.ListUsagesByOrder(ctx, c.db.GetDB(), orderID)
	if err != nil {
		return 0, fmt.Errorf("list promo usages: %w", err)
	}

	released := 0
	var errs []error
	for _, usage := range usages {
		outcome, err := c.releaseUsage(ctx, usage.ID, usage.PromoCode)
		if err != nil {
			c.logger.Error("promo usage release failed",
				ports.String("order_id", orderID),
				ports.String("promo_code", usage.PromoCode),
				ports.Err(err))
			errs = append(errs, fmt.Errorf("release promo %s for order %s: %w", usage.PromoCode, orderID, err))
			continue
		}

		switch outcome {
		case outcomeReleased:
			released++
			c.logger.Info("promo usage released",
				ports.String("order_id", orderID),
				ports.String("promo_code", usage.PromoCode))
		case outcomeCounterAtZero:
			c.logger.Warn("promo usage counter already at zero",
				ports.String("order_id", orderID),
				ports.String("promo_code", usage.PromoCode))
		case outcomeAlreadyReleased:
			c.logger.Debug("promo usage already released",
				ports.String("order_id", orderID),
				ports.String("promo_code", usage.PromoCode))
		}
	}
	return released, errors.Join(errs...)
}

func (c *Compensator) releaseUsage(ctx context.Context, usageID, code string) (releaseOutcome, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := resilience.Sleep(ctx, c.backoff, attempt-1); err != nil {
				return 0, err
			}
		}

		var outcome releaseOutcome
		err := c.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			deleted, err := c.promos.DeleteUsage(ctx, tx, usageID)
			if err != nil {
				return fmt.Errorf("delete usage: %w", err)
			}
			if !deleted {
				outcome = outcomeAlreadyReleased
				return nil
			}

			count, err := c.promos.GetUsageCount(ctx, tx, code)
			if err != nil {
				return fmt.Errorf("read usage count: %w", err)
			}
			if count <= 0 {
				outcome = outcomeCounterAtZero
				return nil
			}

			swapped, err := c.promos.CompareAndSwapUsageCount(ctx, tx, code, count, count-1)
			if err != nil {
				return fmt.Errorf("decrement usage count: %w", err)
			}
			if !swapped {
				return errCounterConflict
			}
			outcome = outcomeReleased
			return nil
		})
		if err == nil {
			return outcome, nil
		}
		if !errors.Is(err, errCounterConflict) {
			return 0, err
		}

		lastErr = err
		c.logger.Debug("promo counter conflict, retrying",
			ports.String("promo_code", code),
			ports.Int("attempt", attempt+1))
	}
	return 0, fmt.Errorf("gave up after %d attempts: %w", c.maxAttempts, lastErr)
}
