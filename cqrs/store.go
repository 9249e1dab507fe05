package cqrs

import "context"

// AggregateContext is the state handed from LoadAggregate to Commit. It
// carries the rebuilt aggregate together with the sequence bookkeeping the
// store needs for optimistic concurrency and snapshot arithmetic.
type AggregateContext[A any] struct {
	// AggregateID identifies the aggregate instance.
	AggregateID string

	// Aggregate is the current state, rebuilt by the store.
	Aggregate A

	// CurrentSequence is the sequence number of the last committed event,
	// or 0 for a fresh aggregate.
	CurrentSequence uint64

	// CurrentSnapshot is the version of the last persisted snapshot, or 0
	// when no snapshot exists yet. Only meaningful for snapshot-backed
	// storage strategies.
	CurrentSnapshot uint64
}

// EventStore loads aggregates and commits new events. Implementations
// decide the source of truth (event log, snapshots, or both) but must all
// provide gapless sequence assignment and conflict detection.
type EventStore[A Aggregate[C, E, S], C any, E DomainEvent, S any] interface {
	// LoadAggregate rebuilds the aggregate identified by aggregateID,
	// returning a fresh zero-state context when no history exists.
	LoadAggregate(ctx context.Context, aggregateID string) (AggregateContext[A], error)

	// Commit persists the given events, assigning sequence numbers
	// starting at context.CurrentSequence+1 and attaching metadata to
	// each. It returns ErrAggregateConflict (possibly wrapped) when a
	// concurrent writer already claimed one of those sequences.
	Commit(ctx context.Context, events []E, context AggregateContext[A], metadata map[string]string) ([]EventEnvelope[E], error)
}
