package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/cqrs-es/cqrs"
)

// PersistedEventStore implements cqrs.EventStore on top of an
// EventRepository. The configured SourceOfTruth decides whether aggregate
// state is rebuilt from the event log, from a snapshot plus trailing
// events, or from the snapshot alone.
//
// All events read through the store pass through the configured upcaster
// chain before they are deserialized.
type PersistedEventStore[A cqrs.Aggregate[C, E, S], C any, E cqrs.DomainEvent, S any] struct {
	repo          EventRepository
	serializer    *EventSerializer[E]
	newAggregate  func() A
	aggregateType string
	storage       SourceOfTruth
	upcasters     []EventUpcaster
}

// NewPersistedEventStore creates a store using the pure event log as the
// source of truth. The newAggregate factory must return a pointer to the
// zero value of the aggregate, since snapshots are unmarshaled into it.
func NewPersistedEventStore[A cqrs.Aggregate[C, E, S], C any, E cqrs.DomainEvent, S any](
	repo EventRepository,
	serializer *EventSerializer[E],
	newAggregate func() A,
) *PersistedEventStore[A, C, E, S] {
	return &PersistedEventStore[A, C, E, S]{
		repo:          repo,
		serializer:    serializer,
		newAggregate:  newAggregate,
		aggregateType: newAggregate().AggregateType(),
		storage:       EventStoreSource(),
	}
}

// WithStorageMethod replaces the source-of-truth strategy.
func (s *PersistedEventStore[A, C, E, S]) WithStorageMethod(storage SourceOfTruth) *PersistedEventStore[A, C, E, S] {
	s.storage = storage
	return s
}

// WithUpcasters configures the upcaster chain, applied in the given order
// to every event read from the repository.
func (s *PersistedEventStore[A, C, E, S]) WithUpcasters(upcasters ...EventUpcaster) *PersistedEventStore[A, C, E, S] {
	s.upcasters = upcasters
	return s
}

// LoadEvents returns every committed event for the aggregate instance,
// upcast and deserialized into envelopes.
func (s *PersistedEventStore[A, C, E, S]) LoadEvents(ctx context.Context, aggregateID string) ([]cqrs.EventEnvelope[E], error) {
	serialized, err := s.repo.GetEvents(ctx, s.aggregateType, aggregateID)
	if err != nil {
		return nil, err
	}
	return s.deserialize(serialized)
}

// LoadAggregate implements cqrs.EventStore.
func (s *PersistedEventStore[A, C, E, S]) LoadAggregate(ctx context.Context, aggregateID string) (cqrs.AggregateContext[A], error) {
	aggregateContext := cqrs.AggregateContext[A]{
		AggregateID: aggregateID,
		Aggregate:   s.newAggregate(),
	}

	if !s.storage.usesSnapshots() {
		envelopes, err := s.LoadEvents(ctx, aggregateID)
		if err != nil {
			return aggregateContext, err
		}
		for _, envelope := range envelopes {
			aggregateContext.Aggregate.Apply(envelope.Payload)
			aggregateContext.CurrentSequence = envelope.Sequence
		}
		return aggregateContext, nil
	}

	snapshot, err := s.repo.GetSnapshot(ctx, s.aggregateType, aggregateID)
	if err != nil {
		return aggregateContext, err
	}
	if snapshot != nil {
		if err := json.Unmarshal(snapshot.Aggregate, aggregateContext.Aggregate); err != nil {
			return aggregateContext, &DeserializationError{Err: err}
		}
		aggregateContext.CurrentSequence = snapshot.CurrentSequence
		aggregateContext.CurrentSnapshot = snapshot.CurrentSnapshot
	}

	if s.storage.kind == kindAggregateStore {
		// The serialized aggregate is the source of truth; trailing
		// events exist only for query dispatch and audit.
		return aggregateContext, nil
	}

	serialized, err := s.repo.GetLastEvents(ctx, s.aggregateType, aggregateID, aggregateContext.CurrentSequence)
	if err != nil {
		return aggregateContext, err
	}
	envelopes, err := s.deserialize(serialized)
	if err != nil {
		return aggregateContext, err
	}
	for _, envelope := range envelopes {
		aggregateContext.Aggregate.Apply(envelope.Payload)
		aggregateContext.CurrentSequence = envelope.Sequence
	}
	return aggregateContext, nil
}

// Commit implements cqrs.EventStore. Sequence numbers are assigned here,
// starting at the loaded context's CurrentSequence+1, and the snapshot
// update (when the strategy calls for one) is persisted atomically with
// the events.
func (s *PersistedEventStore[A, C, E, S]) Commit(
	ctx context.Context,
	events []E,
	aggregateContext cqrs.AggregateContext[A],
	metadata map[string]string,
) ([]cqrs.EventEnvelope[E], error) {
	snapshotUpdate, err := s.snapshotUpdate(aggregateContext, events)
	if err != nil {
		return nil, err
	}

	envelopes := wrapEvents(aggregateContext.AggregateID, aggregateContext.CurrentSequence, events, metadata)
	serialized := make([]SerializedEvent, 0, len(envelopes))
	for _, envelope := range envelopes {
		event, err := s.serializer.Serialize(s.aggregateType, envelope)
		if err != nil {
			return nil, err
		}
		serialized = append(serialized, event)
	}

	if err := s.repo.Persist(ctx, serialized, snapshotUpdate); err != nil {
		if errors.Is(err, ErrOptimisticLock) {
			return nil, fmt.Errorf("%w: %w", cqrs.ErrAggregateConflict, err)
		}
		return nil, err
	}
	return envelopes, nil
}

// snapshotUpdate folds the leading slice of new events into a clone of the
// loaded aggregate when the strategy crosses a snapshot boundary. The
// snapshot's CurrentSequence is the sequence of the last folded event,
// which for the Snapshot strategy may trail the last committed event.
func (s *PersistedEventStore[A, C, E, S]) snapshotUpdate(
	aggregateContext cqrs.AggregateContext[A],
	events []E,
) (*SerializedSnapshot, error) {
	numToFold := s.storage.commitSnapshotWithAddlEvents(aggregateContext.CurrentSequence, uint64(len(events)))
	if numToFold == 0 || !s.storage.usesSnapshots() {
		return nil, nil
	}

	aggregate, err := s.cloneAggregate(aggregateContext.Aggregate)
	if err != nil {
		return nil, err
	}
	sequence := aggregateContext.CurrentSequence
	for _, event := range events[:numToFold] {
		aggregate.Apply(event)
		sequence++
	}
	payload, err := json.Marshal(aggregate)
	if err != nil {
		return nil, &UnknownError{Err: err}
	}
	return &SerializedSnapshot{
		AggregateType:   s.aggregateType,
		AggregateID:     aggregateContext.AggregateID,
		Aggregate:       payload,
		CurrentSequence: sequence,
		CurrentSnapshot: aggregateContext.CurrentSnapshot + 1,
	}, nil
}

// cloneAggregate copies the aggregate through a serialization round trip
// so commit-time folding never mutates the caller's context.
func (s *PersistedEventStore[A, C, E, S]) cloneAggregate(aggregate A) (A, error) {
	clone := s.newAggregate()
	payload, err := json.Marshal(aggregate)
	if err != nil {
		return clone, &UnknownError{Err: err}
	}
	if err := json.Unmarshal(payload, clone); err != nil {
		return clone, &DeserializationError{Err: err}
	}
	return clone, nil
}

func (s *PersistedEventStore[A, C, E, S]) deserialize(events []SerializedEvent) ([]cqrs.EventEnvelope[E], error) {
	envelopes := make([]cqrs.EventEnvelope[E], 0, len(events))
	for _, event := range events {
		envelope, err := s.serializer.Deserialize(applyUpcasters(event, s.upcasters))
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes, nil
}

// StreamEvents streams the full event history of one aggregate instance
// as typed envelopes, upcasting each event on receipt.
func (s *PersistedEventStore[A, C, E, S]) StreamEvents(ctx context.Context, aggregateID string) (*EventStream[E], error) {
	stream, err := s.repo.StreamEvents(ctx, s.aggregateType, aggregateID)
	if err != nil {
		return nil, err
	}
	return &EventStream[E]{stream: stream, serializer: s.serializer, upcasters: s.upcasters}, nil
}

// StreamAllEvents streams every event of the aggregate type, across all
// instances. Used for view rebuilds and migrations.
func (s *PersistedEventStore[A, C, E, S]) StreamAllEvents(ctx context.Context) (*EventStream[E], error) {
	stream, err := s.repo.StreamAllEvents(ctx, s.aggregateType)
	if err != nil {
		return nil, err
	}
	return &EventStream[E]{stream: stream, serializer: s.serializer, upcasters: s.upcasters}, nil
}

func wrapEvents[E cqrs.DomainEvent](aggregateID string, currentSequence uint64, events []E, metadata map[string]string) []cqrs.EventEnvelope[E] {
	envelopes := make([]cqrs.EventEnvelope[E], 0, len(events))
	sequence := currentSequence
	for _, event := range events {
		sequence++
		envelopes = append(envelopes, cqrs.EventEnvelope[E]{
			AggregateID: aggregateID,
			Sequence:    sequence,
			Payload:     event,
			Metadata:    metadata,
		})
	}
	return envelopes
}

// EventStream is a typed view over a ReplayStream: each serialized event
// is upcast and deserialized as it is received.
type EventStream[E cqrs.DomainEvent] struct {
	stream     *ReplayStream
	serializer *EventSerializer[E]
	upcasters  []EventUpcaster
}

// Next returns the next envelope, ErrEndOfStream when the replay is
// complete, or the first error encountered.
func (s *EventStream[E]) Next(ctx context.Context) (cqrs.EventEnvelope[E], error) {
	event, err := s.stream.Next(ctx)
	if err != nil {
		return cqrs.EventEnvelope[E]{}, err
	}
	return s.serializer.Deserialize(applyUpcasters(event, s.upcasters))
}

// Close releases the stream; the repository's background pager terminates
// on its next push.
func (s *EventStream[E]) Close() {
	s.stream.Close()
}
