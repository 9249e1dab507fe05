package cqrs

import "context"

// Query is a downstream observer of committed events. Queries maintain
// read-optimized views or forward events to other systems.
//
// Queries are best-effort and eventually consistent: Dispatch has no error
// return because a query failure must never roll back or surface as a
// failure of the command that produced the events. Implementations route
// internal failures to their own error handler.
type Query[E DomainEvent] interface {
	// Dispatch is called once per successful commit with the newly
	// committed envelopes, in sequence order.
	Dispatch(ctx context.Context, aggregateID string, events []EventEnvelope[E])
}

// View is a read-model projection of an aggregate's events. Views are
// rebuilt on demand by a ViewRepository and updated by folding committed
// events.
type View[E DomainEvent] interface {
	// Update folds a single committed event into the view. It must be
	// total: a view ignores events it has no interest in.
	Update(event EventEnvelope[E])
}
