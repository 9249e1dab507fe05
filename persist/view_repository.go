package persist

import (
	"context"

	"github.com/example/cqrs-es/cqrs"
)

// ViewContext carries the optimistic-lock state for a view update.
type ViewContext struct {
	// ViewInstanceID identifies the view instance being modified.
	ViewInstanceID string

	// Version is the stored version the update is conditioned on.
	// Version 0 means the view does not exist yet and will be inserted.
	Version int64
}

// NewViewContext creates a context for the given view instance.
func NewViewContext(viewInstanceID string, version int64) ViewContext {
	return ViewContext{ViewInstanceID: viewInstanceID, Version: version}
}

// ViewRepository is the storage contract backing a GenericQuery.
type ViewRepository[V cqrs.View[E], E cqrs.DomainEvent] interface {
	// Load returns the current view instance, or false when none exists.
	Load(ctx context.Context, viewID string) (V, bool, error)

	// LoadWithContext returns the view together with its version context,
	// used when the view is loaded for update.
	LoadWithContext(ctx context.Context, viewID string) (V, ViewContext, bool, error)

	// UpdateView writes the view back. A context version of 0 inserts;
	// any other version updates conditioned on the stored version still
	// matching, returning ErrOptimisticLock (possibly wrapped) on a
	// mismatch. The stored version increases by exactly 1 per successful
	// write.
	UpdateView(ctx context.Context, view V, context ViewContext) error
}
