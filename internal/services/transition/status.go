package transition

import (
	"context"
	"fmt"

	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/kevin07696/checkout-reconciler/pkg/observability"
)

// StatusSwapper is a repository that moves an entity between statuses with
// a single guarded update
type StatusSwapper[S ~string] interface {
	SwapStatus(ctx context.Context, db ports.DBTX, id string, from, to S) (bool, error)
}

// Swap moves entity id from one status to another. It returns false without
// error when the entity has already left from.
func Swap[S ~string](ctx context.Context, swapper StatusSwapper[S], db ports.DBTX, entity, id string, from, to S) (bool, error) {
	applied, err := swapper.SwapStatus(ctx, db, id, from, to)
	if err != nil {
		observability.RecordTransition(entity, resultError)
		return false, fmt.Errorf("transition %s %s %s->%s: %w", entity, id, from, to, err)
	}
	if !applied {
		observability.RecordTransition(entity, resultSkipped)
		return false, nil
	}
	observability.RecordTransition(entity, resultApplied)
	return true, nil
}
