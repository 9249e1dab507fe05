package cqrs

import (
	"context"
	"log/slog"
)

// Framework orchestrates command execution against a single aggregate
// family: it loads the aggregate, lets it handle the command, commits the
// resulting events and dispatches them to every registered query.
//
// A Framework is safe for concurrent use. No aggregate state is shared
// between calls; every Execute rebuilds the aggregate from storage, and
// conflicting concurrent writers are detected at commit time.
type Framework[A Aggregate[C, E, S], C any, E DomainEvent, S any] struct {
	store    EventStore[A, C, E, S]
	queries  []Query[E]
	services S
	logger   *slog.Logger
}

// NewFramework creates a Framework from the given store and services.
// The queries receive every committed event, in commit order.
func NewFramework[A Aggregate[C, E, S], C any, E DomainEvent, S any](
	store EventStore[A, C, E, S],
	services S,
	queries ...Query[E],
) *Framework[A, C, E, S] {
	return &Framework[A, C, E, S]{
		store:    store,
		queries:  queries,
		services: services,
		logger:   slog.Default(),
	}
}

// WithLogger replaces the logger used for debug output.
func (f *Framework[A, C, E, S]) WithLogger(logger *slog.Logger) *Framework[A, C, E, S] {
	f.logger = logger
	return f
}

// Execute applies a command to the aggregate identified by aggregateID.
// This is the only way to change aggregate state.
//
// A business-rule rejection is returned as a *UserError with nothing
// persisted and no query notified. A storage conflict is returned as
// ErrAggregateConflict; the caller should retry from scratch since the
// state used to decide the command is stale.
func (f *Framework[A, C, E, S]) Execute(ctx context.Context, aggregateID string, command C) error {
	return f.ExecuteWithMetadata(ctx, aggregateID, command, map[string]string{})
}

// ExecuteWithMetadata behaves like Execute and additionally attaches the
// given metadata to every committed event. Common entries include the
// acting user, a request id, or the application version.
func (f *Framework[A, C, E, S]) ExecuteWithMetadata(
	ctx context.Context,
	aggregateID string,
	command C,
	metadata map[string]string,
) error {
	aggregateContext, err := f.store.LoadAggregate(ctx, aggregateID)
	if err != nil {
		return err
	}

	events, err := aggregateContext.Aggregate.Handle(ctx, command, f.services)
	if err != nil {
		return &UserError{Err: err}
	}

	committed, err := f.store.Commit(ctx, events, aggregateContext, metadata)
	if err != nil {
		return err
	}

	f.logger.DebugContext(ctx, "events committed",
		"aggregate_id", aggregateID,
		"events", len(committed),
	)

	// Queries are eventually consistent observers; a failing query is
	// handled by its own error handler and never fails the command.
	for _, query := range f.queries {
		query.Dispatch(ctx, aggregateID, committed)
	}
	return nil
}
