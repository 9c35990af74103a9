package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy yields the delay before retry number attempt (0-indexed)
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier per attempt up to MaxDelay,
// then spreads it by ±Jitter so competing writers do not retry in lockstep.
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     float64 // 0.0-1.0
}

// LedgerRetryBackoff is used for optimistic promo ledger retries.
// Conflicts clear quickly: ~10ms, 20ms, 40ms, 80ms, then 100ms.
func LedgerRetryBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   100 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}

// NextDelay returns BaseDelay * Multiplier^attempt, capped and jittered
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return b.BaseDelay
	}
	delay := math.Min(float64(b.BaseDelay)*math.Pow(b.Multiplier, float64(attempt)), float64(b.MaxDelay))
	delay += (rand.Float64()*2 - 1) * delay * b.Jitter
	if delay < 0 {
		return b.BaseDelay
	}
	return time.Duration(delay)
}

// FixedBackoff always waits Delay. Tests use the zero value to retry without sleeping.
type FixedBackoff struct {
	Delay time.Duration
}

func (b *FixedBackoff) NextDelay(int) time.Duration {
	return b.Delay
}

// Sleep waits for the delay of attempt or until ctx is done
func Sleep(ctx context.Context, b BackoffStrategy, attempt int) error {
	timer := time.NewTimer(b.NextDelay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
