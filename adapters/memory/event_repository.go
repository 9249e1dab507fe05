// Package memory provides in-memory repositories with full conflict
// semantics, for tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/cqrs-es/persist"
)

// EventRepository keeps events and snapshots in mutex-guarded maps.
type EventRepository struct {
	mu                sync.RWMutex
	events            map[string][]persist.SerializedEvent
	snapshots         map[string]persist.SerializedSnapshot
	streamChannelSize int
}

var _ persist.EventRepository = (*EventRepository)(nil)

// NewEventRepository creates an empty repository.
func NewEventRepository() *EventRepository {
	return &EventRepository{
		events:            make(map[string][]persist.SerializedEvent),
		snapshots:         make(map[string]persist.SerializedSnapshot),
		streamChannelSize: persist.DefaultStreamChannelSize,
	}
}

// WithStreamChannelSize overrides the replay stream buffer capacity.
func (r *EventRepository) WithStreamChannelSize(size int) *EventRepository {
	r.streamChannelSize = size
	return r
}

func instanceKey(aggregateType, aggregateID string) string {
	return aggregateType + "|" + aggregateID
}

func (r *EventRepository) GetEvents(_ context.Context, aggregateType, aggregateID string) ([]persist.SerializedEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.events[instanceKey(aggregateType, aggregateID)]
	events := make([]persist.SerializedEvent, len(stored))
	copy(events, stored)
	return events, nil
}

func (r *EventRepository) GetLastEvents(_ context.Context, aggregateType, aggregateID string, lastSequence uint64) ([]persist.SerializedEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var events []persist.SerializedEvent
	for _, event := range r.events[instanceKey(aggregateType, aggregateID)] {
		if event.Sequence > lastSequence {
			events = append(events, event)
		}
	}
	return events, nil
}

func (r *EventRepository) GetSnapshot(_ context.Context, aggregateType, aggregateID string) (*persist.SerializedSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot, ok := r.snapshots[instanceKey(aggregateType, aggregateID)]
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}

func (r *EventRepository) Persist(_ context.Context, events []persist.SerializedEvent, snapshot *persist.SerializedSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Validate everything before mutating so the write stays atomic.
	for _, event := range events {
		for _, existing := range r.events[instanceKey(event.AggregateType, event.AggregateID)] {
			if existing.Sequence == event.Sequence {
				return fmt.Errorf("%w: sequence %d already exists for %s/%s",
					persist.ErrOptimisticLock, event.Sequence, event.AggregateType, event.AggregateID)
			}
		}
	}
	if snapshot != nil {
		existing, ok := r.snapshots[instanceKey(snapshot.AggregateType, snapshot.AggregateID)]
		expected := uint64(0)
		if ok {
			expected = existing.CurrentSnapshot
		}
		if snapshot.CurrentSnapshot != expected+1 {
			return fmt.Errorf("%w: snapshot version %d does not follow %d",
				persist.ErrOptimisticLock, snapshot.CurrentSnapshot, expected)
		}
	}

	for _, event := range events {
		key := instanceKey(event.AggregateType, event.AggregateID)
		r.events[key] = append(r.events[key], event)
	}
	if snapshot != nil {
		r.snapshots[instanceKey(snapshot.AggregateType, snapshot.AggregateID)] = *snapshot
	}
	return nil
}

func (r *EventRepository) StreamEvents(ctx context.Context, aggregateType, aggregateID string) (*persist.ReplayStream, error) {
	events, err := r.GetEvents(ctx, aggregateType, aggregateID)
	if err != nil {
		return nil, err
	}
	return r.stream(ctx, events), nil
}

func (r *EventRepository) StreamAllEvents(ctx context.Context, aggregateType string) (*persist.ReplayStream, error) {
	r.mu.RLock()
	keys := make([]string, 0, len(r.events))
	for key, stored := range r.events {
		if len(stored) > 0 && stored[0].AggregateType == aggregateType {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	var events []persist.SerializedEvent
	for _, key := range keys {
		events = append(events, r.events[key]...)
	}
	r.mu.RUnlock()
	return r.stream(ctx, events), nil
}

func (r *EventRepository) stream(ctx context.Context, events []persist.SerializedEvent) *persist.ReplayStream {
	feed, stream := persist.NewReplayStream(r.streamChannelSize)
	go func() {
		defer feed.Close()
		for _, event := range events {
			if err := feed.Push(ctx, event); err != nil {
				return
			}
		}
	}()
	return stream
}
