package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/example/cqrs-es/cqrs"
	"github.com/example/cqrs-es/persist"
)

// ViewRepository keeps serialized views in a mutex-guarded map, versioned
// for optimistic locking.
type ViewRepository[V cqrs.View[E], E cqrs.DomainEvent] struct {
	mu      sync.RWMutex
	views   map[string]viewRecord
	newView func() V
}

type viewRecord struct {
	payload []byte
	version int64
}

// NewViewRepository creates an empty repository. The newView factory must
// return a pointer so stored payloads can be unmarshaled into it.
func NewViewRepository[V cqrs.View[E], E cqrs.DomainEvent](newView func() V) *ViewRepository[V, E] {
	return &ViewRepository[V, E]{
		views:   make(map[string]viewRecord),
		newView: newView,
	}
}

func (r *ViewRepository[V, E]) Load(_ context.Context, viewID string) (V, bool, error) {
	view, _, found, err := r.load(viewID)
	return view, found, err
}

func (r *ViewRepository[V, E]) LoadWithContext(_ context.Context, viewID string) (V, persist.ViewContext, bool, error) {
	return r.load(viewID)
}

func (r *ViewRepository[V, E]) load(viewID string) (V, persist.ViewContext, bool, error) {
	r.mu.RLock()
	record, ok := r.views[viewID]
	r.mu.RUnlock()

	var zero V
	if !ok {
		return zero, persist.ViewContext{}, false, nil
	}
	view := r.newView()
	if err := json.Unmarshal(record.payload, view); err != nil {
		return zero, persist.ViewContext{}, false, &persist.DeserializationError{Err: err}
	}
	return view, persist.NewViewContext(viewID, record.version), true, nil
}

func (r *ViewRepository[V, E]) UpdateView(_ context.Context, view V, context persist.ViewContext) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return &persist.UnknownError{Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.views[context.ViewInstanceID]
	if context.Version == 0 {
		if exists {
			return fmt.Errorf("%w: view %s already exists", persist.ErrOptimisticLock, context.ViewInstanceID)
		}
	} else if !exists || record.version != context.Version {
		return fmt.Errorf("%w: view %s version mismatch", persist.ErrOptimisticLock, context.ViewInstanceID)
	}
	r.views[context.ViewInstanceID] = viewRecord{payload: payload, version: context.Version + 1}
	return nil
}
