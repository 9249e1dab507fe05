package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cqrs-es/persist"
)

func serializedEvent(aggregateID string, sequence uint64) persist.SerializedEvent {
	return persist.SerializedEvent{
		AggregateID:   aggregateID,
		Sequence:      sequence,
		AggregateType: "account",
		EventType:     "MoneyDeposited",
		EventVersion:  "1.0",
		Payload:       json.RawMessage(`{"amount":100}`),
		Metadata:      json.RawMessage(`{}`),
	}
}

func TestPersistAndGetEvents(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository()

	require.NoError(t, repo.Persist(ctx, []persist.SerializedEvent{
		serializedEvent("acct-1", 1),
		serializedEvent("acct-1", 2),
	}, nil))

	events, err := repo.GetEvents(ctx, "account", "acct-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(1), events[0].Sequence)
	assert.Equal(t, uint64(2), events[1].Sequence)

	tail, err := repo.GetLastEvents(ctx, "account", "acct-1", 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(2), tail[0].Sequence)
}

func TestPersistRejectsDuplicateSequence(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository()

	require.NoError(t, repo.Persist(ctx, []persist.SerializedEvent{serializedEvent("acct-1", 1)}, nil))
	err := repo.Persist(ctx, []persist.SerializedEvent{serializedEvent("acct-1", 1)}, nil)
	assert.ErrorIs(t, err, persist.ErrOptimisticLock)

	// The rejected batch left nothing behind.
	events, getErr := repo.GetEvents(ctx, "account", "acct-1")
	require.NoError(t, getErr)
	assert.Len(t, events, 1)
}

func TestPersistRejectsBatchAtomically(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository()

	require.NoError(t, repo.Persist(ctx, []persist.SerializedEvent{serializedEvent("acct-1", 1)}, nil))
	err := repo.Persist(ctx, []persist.SerializedEvent{
		serializedEvent("acct-1", 2),
		serializedEvent("acct-1", 1),
	}, nil)
	require.ErrorIs(t, err, persist.ErrOptimisticLock)

	events, getErr := repo.GetEvents(ctx, "account", "acct-1")
	require.NoError(t, getErr)
	assert.Len(t, events, 1)
}

func TestPersistSnapshotVersioning(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository()

	first := &persist.SerializedSnapshot{
		AggregateType:   "account",
		AggregateID:     "acct-1",
		Aggregate:       json.RawMessage(`{"balance":100}`),
		CurrentSequence: 1,
		CurrentSnapshot: 1,
	}
	require.NoError(t, repo.Persist(ctx, nil, first))

	// A repeated snapshot number is a lost update.
	err := repo.Persist(ctx, nil, first)
	assert.ErrorIs(t, err, persist.ErrOptimisticLock)

	second := &persist.SerializedSnapshot{
		AggregateType:   "account",
		AggregateID:     "acct-1",
		Aggregate:       json.RawMessage(`{"balance":200}`),
		CurrentSequence: 2,
		CurrentSnapshot: 2,
	}
	require.NoError(t, repo.Persist(ctx, nil, second))

	snapshot, err := repo.GetSnapshot(ctx, "account", "acct-1")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, uint64(2), snapshot.CurrentSnapshot)
	assert.Equal(t, uint64(2), snapshot.CurrentSequence)
}

func TestGetSnapshotMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository()

	snapshot, err := repo.GetSnapshot(ctx, "account", "acct-unknown")
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestConcurrentPersistExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository()

	const writers = 8
	results := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.Persist(ctx, []persist.SerializedEvent{serializedEvent("acct-1", 1)}, nil)
		}()
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, persist.ErrOptimisticLock)
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)
}

func TestStreamAllEventsOrdersByAggregate(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository()

	require.NoError(t, repo.Persist(ctx, []persist.SerializedEvent{
		serializedEvent("acct-2", 1),
		serializedEvent("acct-1", 1),
		serializedEvent("acct-1", 2),
	}, nil))

	stream, err := repo.StreamAllEvents(ctx, "account")
	require.NoError(t, err)
	defer stream.Close()

	var got []string
	for {
		event, err := stream.Next(ctx)
		if err != nil {
			require.ErrorIs(t, err, persist.ErrEndOfStream)
			break
		}
		got = append(got, fmt.Sprintf("%s/%d", event.AggregateID, event.Sequence))
	}
	assert.Equal(t, []string{"acct-1/1", "acct-1/2", "acct-2/1"}, got)
}

func TestStreamEventsSingleAggregate(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository().WithStreamChannelSize(1)

	require.NoError(t, repo.Persist(ctx, []persist.SerializedEvent{
		serializedEvent("acct-1", 1),
		serializedEvent("acct-1", 2),
		serializedEvent("acct-2", 1),
	}, nil))

	stream, err := repo.StreamEvents(ctx, "account", "acct-1")
	require.NoError(t, err)
	defer stream.Close()

	var sequences []uint64
	for {
		event, err := stream.Next(ctx)
		if err != nil {
			require.ErrorIs(t, err, persist.ErrEndOfStream)
			break
		}
		assert.Equal(t, "acct-1", event.AggregateID)
		sequences = append(sequences, event.Sequence)
	}
	assert.Equal(t, []uint64{1, 2}, sequences)
}
