package persist

import (
	"context"
	"log/slog"

	"github.com/example/cqrs-es/cqrs"
)

// GenericQuery is a ready-made cqrs.Query that maintains one view instance
// per aggregate instance in a ViewRepository.
//
// Queries are downstream, eventually-consistent observers and cannot fail
// the command that produced the events: every error in the dispatch path
// is routed to the configured handler. Without a handler, errors are
// logged; whether to panic, log or ignore is a deployment decision, so
// production configurations should install their own handler.
type GenericQuery[V cqrs.View[E], E cqrs.DomainEvent] struct {
	repo         ViewRepository[V, E]
	newView      func() V
	errorHandler func(error)
	logger       *slog.Logger
}

// NewGenericQuery creates a query backed by the given repository. The
// newView factory must return a pointer to the zero value of the view.
func NewGenericQuery[V cqrs.View[E], E cqrs.DomainEvent](repo ViewRepository[V, E], newView func() V) *GenericQuery[V, E] {
	return &GenericQuery[V, E]{
		repo:    repo,
		newView: newView,
		logger:  slog.Default(),
	}
}

// WithErrorHandler installs a handler for failures in the dispatch path.
func (q *GenericQuery[V, E]) WithErrorHandler(handler func(error)) *GenericQuery[V, E] {
	q.errorHandler = handler
	return q
}

// WithLogger replaces the logger used when no error handler is installed.
func (q *GenericQuery[V, E]) WithLogger(logger *slog.Logger) *GenericQuery[V, E] {
	q.logger = logger
	return q
}

// Load returns the materialized view for read access, or false when it
// does not exist. Repository errors are routed to the error handler.
func (q *GenericQuery[V, E]) Load(ctx context.Context, viewID string) (V, bool) {
	view, found, err := q.repo.Load(ctx, viewID)
	if err != nil {
		q.handleError(err)
		var zero V
		return zero, false
	}
	return view, found
}

// Dispatch implements cqrs.Query: the view is loaded (or created fresh at
// version 0), every event is folded in, and the result is written back
// under the view's optimistic lock.
func (q *GenericQuery[V, E]) Dispatch(ctx context.Context, aggregateID string, events []cqrs.EventEnvelope[E]) {
	if err := q.applyEvents(ctx, aggregateID, events); err != nil {
		q.handleError(err)
	}
}

func (q *GenericQuery[V, E]) applyEvents(ctx context.Context, viewID string, events []cqrs.EventEnvelope[E]) error {
	view, viewContext, found, err := q.repo.LoadWithContext(ctx, viewID)
	if err != nil {
		return err
	}
	if !found {
		view = q.newView()
		viewContext = NewViewContext(viewID, 0)
	}
	for _, event := range events {
		view.Update(event)
	}
	return q.repo.UpdateView(ctx, view, viewContext)
}

func (q *GenericQuery[V, E]) handleError(err error) {
	if q.errorHandler != nil {
		q.errorHandler(err)
		return
	}
	q.logger.Error("query processing failed", "error", err)
}
