package kashier

import (
	"errors"
	"sync"
	"time"
)

// BreakerState represents the current state of the circuit breaker
type BreakerState int

const (
	// StateClosed - requests flow normally
	StateClosed BreakerState = iota
	// StateOpen - requests fail immediately
	StateOpen
	// StateHalfOpen - a limited number of probes test whether the gateway recovered
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyProbes is returned when the half-open probe budget is used up
	ErrTooManyProbes = errors.New("too many requests in half-open state")
)

// BreakerConfig configures circuit breaker behavior
type BreakerConfig struct {
	// IsFailure decides which errors count toward opening the circuit.
	// nil counts every error.
	IsFailure func(error) bool
	// OpenFor is how long the circuit stays open before probing
	OpenFor time.Duration
	// MaxFailures is the number of consecutive failures before opening
	MaxFailures uint32
	// HalfOpenProbes is the number of concurrent probes allowed when half-open
	HalfOpenProbes uint32
}

// DefaultBreakerConfig opens after 5 consecutive failures and probes again after 30s
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:    5,
		OpenFor:        30 * time.Second,
		HalfOpenProbes: 1,
	}
}

// Breaker guards calls to the refund gateway
type Breaker struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	state     BreakerState
	failures  uint32
	probes    uint32
	changedAt time.Time
	now       func() time.Time
	onChange  func(from, to BreakerState)
}

// NewBreaker creates a closed breaker. onChange may be nil.
func NewBreaker(cfg BreakerConfig, onChange func(from, to BreakerState)) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 1
	}
	if cfg.HalfOpenProbes == 0 {
		cfg.HalfOpenProbes = 1
	}
	return &Breaker{
		cfg:       cfg,
		state:     StateClosed,
		changedAt: time.Now(),
		now:       time.Now,
		onChange:  onChange,
	}
}

// Do runs fn if the breaker allows it and records the result
func (b *Breaker) Do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.changedAt) < b.cfg.OpenFor {
			return ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
		b.probes++
		return nil
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			return ErrTooManyProbes
		}
		b.probes++
		return nil
	default:
		return ErrCircuitOpen
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil && (b.cfg.IsFailure == nil || b.cfg.IsFailure(err))

	switch b.state {
	case StateClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.MaxFailures {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		if failed {
			b.setState(StateOpen)
		} else {
			b.setState(StateClosed)
		}
	}
}

// setState must be called with mu held
func (b *Breaker) setState(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.changedAt = b.now()
	b.failures = 0
	b.probes = 0
	if b.onChange != nil {
		b.onChange(from, to)
	}
}

// State returns the current circuit state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count
func (b *Breaker) Failures() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
