package cqrs

// EventEnvelope wraps a committed domain event together with its position
// in the aggregate's history and any metadata attached at commit time.
//
// Envelopes are created only by the event store during Commit; sequence
// numbers are assigned there, never by the caller.
type EventEnvelope[E DomainEvent] struct {
	// AggregateID identifies the aggregate instance the event belongs to.
	AggregateID string

	// Sequence is the 1-based position of the event for this aggregate
	// instance. Sequences are gapless and strictly increasing.
	Sequence uint64

	// Payload is the domain event itself.
	Payload E

	// Metadata carries contextual information attached at commit time,
	// such as the acting user or a request id.
	Metadata map[string]string
}
