package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/kevin07696/checkout-reconciler/pkg/observability"
)

// Sink is a named notifier
type Sink struct {
	Name     string
	Notifier ports.Notifier
}

// Fanout delivers every notification to all sinks. One sink failing does
// not stop delivery to the others.
type Fanout struct {
	sinks []Sink
}

// NewFanout creates a fan-out notifier over the given sinks
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Notifier.Notify(ctx, n); err != nil {
			observability.RecordNotification(s.Name, "failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		observability.RecordNotification(s.Name, "sent")
	}
	return errors.Join(errs...)
}

// Names lists the configured sinks
func (f *Fanout) Names() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name
	}
	return names
}
