package persist

import "context"

// EventRepository is the storage contract backing a PersistedEventStore.
// One implementation per backend; all snapshot and upcasting logic stays
// out of the adapters.
type EventRepository interface {
	// GetEvents returns all events for a single aggregate instance,
	// ordered by sequence.
	GetEvents(ctx context.Context, aggregateType, aggregateID string) ([]SerializedEvent, error)

	// GetLastEvents returns the events with a sequence greater than
	// lastSequence, ordered by sequence. Used to catch up from a snapshot.
	GetLastEvents(ctx context.Context, aggregateType, aggregateID string, lastSequence uint64) ([]SerializedEvent, error)

	// GetSnapshot returns the current snapshot for an aggregate instance,
	// or nil when none exists.
	GetSnapshot(ctx context.Context, aggregateType, aggregateID string) (*SerializedSnapshot, error)

	// Persist commits the events and, when non-nil, the snapshot update
	// in a single atomic write. It returns ErrOptimisticLock (possibly
	// wrapped) when an event sequence already exists or when the snapshot
	// update does not follow the stored snapshot version.
	Persist(ctx context.Context, events []SerializedEvent, snapshot *SerializedSnapshot) error

	// StreamEvents streams all events for an aggregate instance.
	StreamEvents(ctx context.Context, aggregateType, aggregateID string) (*ReplayStream, error)

	// StreamAllEvents streams all events for an aggregate type, across
	// every instance.
	StreamAllEvents(ctx context.Context, aggregateType string) (*ReplayStream, error)
}
