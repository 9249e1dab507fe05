package persist

import "encoding/json"

// SerializedEvent is the wire and storage form of a committed event.
//
// The triple (AggregateType, AggregateID, Sequence) is globally unique and
// gapless starting at 1 for a given aggregate instance; storage backends
// enforce the uniqueness and report violations as ErrOptimisticLock.
type SerializedEvent struct {
	// AggregateID identifies the aggregate instance.
	AggregateID string `json:"aggregate_id"`

	// Sequence is the 1-based position of the event for the instance.
	Sequence uint64 `json:"sequence"`

	// AggregateType identifies the aggregate family.
	AggregateType string `json:"aggregate_type"`

	// EventType identifies the domain event type.
	EventType string `json:"event_type"`

	// EventVersion is the schema version of the payload, used by
	// upcasters to migrate old event shapes.
	EventVersion string `json:"event_version"`

	// Payload is the serialized domain event.
	Payload json.RawMessage `json:"payload"`

	// Metadata is the serialized metadata map attached at commit time.
	Metadata json.RawMessage `json:"metadata"`
}

// SerializedSnapshot is the storage form of an aggregate snapshot.
type SerializedSnapshot struct {
	// AggregateType identifies the aggregate family.
	AggregateType string `json:"aggregate_type"`

	// AggregateID identifies the aggregate instance.
	AggregateID string `json:"aggregate_id"`

	// Aggregate is the serialized aggregate state.
	Aggregate json.RawMessage `json:"aggregate"`

	// CurrentSequence is the sequence number of the last event folded
	// into this snapshot.
	CurrentSequence uint64 `json:"current_sequence"`

	// CurrentSnapshot is the snapshot version, monotonically increasing
	// per aggregate instance starting at 1. Updates are conditioned on
	// the previous version so a stale write is rejected.
	CurrentSnapshot uint64 `json:"current_snapshot"`
}
