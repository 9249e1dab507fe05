package cqrs

import "context"

// DomainEvent is implemented by every event type an aggregate can emit.
// The type and version are persisted alongside the payload and drive both
// deserialization and schema upcasting.
type DomainEvent interface {
	// EventType uniquely identifies the event type within the aggregate.
	EventType() string

	// EventVersion is the semantic version of the event schema,
	// e.g. "1.0". Bump it when the payload shape changes.
	EventVersion() string
}

// Aggregate is the consistency boundary of the domain model. Its state is
// derived entirely from its event history: it is created as the zero value
// of its type and mutated only by folding events in sequence order.
//
// The type parameters carry the aggregate's associated families:
// C is the command type, E the domain event type and S the external
// services consulted while handling commands.
//
// Implementations must marshal to and from JSON, since snapshots persist
// the serialized aggregate state.
type Aggregate[C any, E DomainEvent, S any] interface {
	// AggregateType identifies the aggregate family, e.g. "account".
	// It must be unique within the system and stable across releases.
	AggregateType() string

	// Handle validates a command against the current state and returns the
	// resulting events, or an error if the command violates a business
	// rule. A rejected command produces no events and must leave the
	// aggregate unchanged. This is the only path that produces events.
	Handle(ctx context.Context, command C, services S) ([]E, error)

	// Apply folds a single committed event into the aggregate state.
	// It is called during replay and during commit-time snapshot folding,
	// must never fail, and must contain no business logic.
	Apply(event E)
}
