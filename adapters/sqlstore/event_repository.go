package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/cqrs-es/persist"
)

const (
	// DefaultEventTable and DefaultSnapshotTable are used unless the
	// repository is configured with UseTables.
	DefaultEventTable    = "events"
	DefaultSnapshotTable = "snapshots"

	// defaultStreamPageSize is the number of rows fetched per page while
	// feeding a replay stream.
	defaultStreamPageSize = 200
)

// EventRepository is the shared SQL implementation of
// persist.EventRepository. It works against any database/sql backend
// whose Dialect is supplied by the adapter packages.
type EventRepository struct {
	db                *sql.DB
	queries           queryFactory
	dialect           Dialect
	streamChannelSize int
	streamPageSize    int
}

var _ persist.EventRepository = (*EventRepository)(nil)

// NewEventRepository creates a repository over db using the default
// "events" and "snapshots" tables.
func NewEventRepository(db *sql.DB, dialect Dialect) *EventRepository {
	return UseTables(db, dialect, DefaultEventTable, DefaultSnapshotTable)
}

// UseTables creates a repository with custom event and snapshot table
// names.
func UseTables(db *sql.DB, dialect Dialect, eventTable, snapshotTable string) *EventRepository {
	return &EventRepository{
		db:                db,
		queries:           newQueryFactory(dialect, eventTable, snapshotTable),
		dialect:           dialect,
		streamChannelSize: persist.DefaultStreamChannelSize,
		streamPageSize:    defaultStreamPageSize,
	}
}

// WithStreamChannelSize overrides the replay stream buffer capacity.
func (r *EventRepository) WithStreamChannelSize(size int) *EventRepository {
	r.streamChannelSize = size
	return r
}

func (r *EventRepository) GetEvents(ctx context.Context, aggregateType, aggregateID string) ([]persist.SerializedEvent, error) {
	return r.selectEvents(ctx, r.queries.selectEvents(), aggregateType, aggregateID)
}

func (r *EventRepository) GetLastEvents(ctx context.Context, aggregateType, aggregateID string, lastSequence uint64) ([]persist.SerializedEvent, error) {
	return r.selectEvents(ctx, r.queries.selectLastEvents(), aggregateType, aggregateID, lastSequence)
}

func (r *EventRepository) selectEvents(ctx context.Context, query string, args ...any) ([]persist.SerializedEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(r.dialect, err)
	}
	defer rows.Close()

	var events []persist.SerializedEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(r.dialect, err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (persist.SerializedEvent, error) {
	var event persist.SerializedEvent
	var payload, metadata []byte
	if err := rows.Scan(
		&event.AggregateType,
		&event.AggregateID,
		&event.Sequence,
		&event.EventType,
		&event.EventVersion,
		&payload,
		&metadata,
	); err != nil {
		return event, &persist.DeserializationError{Err: err}
	}
	event.Payload = payload
	event.Metadata = metadata
	return event, nil
}

func (r *EventRepository) GetSnapshot(ctx context.Context, aggregateType, aggregateID string) (*persist.SerializedSnapshot, error) {
	row := r.db.QueryRowContext(ctx, r.queries.selectSnapshot(), aggregateType, aggregateID)
	var snapshot persist.SerializedSnapshot
	var payload []byte
	err := row.Scan(
		&snapshot.AggregateType,
		&snapshot.AggregateID,
		&snapshot.CurrentSequence,
		&snapshot.CurrentSnapshot,
		&payload,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(r.dialect, err)
	}
	snapshot.Aggregate = payload
	return &snapshot, nil
}

// Persist writes the events and optional snapshot update in a single
// transaction so both become visible atomically.
func (r *EventRepository) Persist(ctx context.Context, events []persist.SerializedEvent, snapshot *persist.SerializedSnapshot) error {
	if len(events) == 0 && snapshot == nil {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(r.dialect, err)
	}
	defer tx.Rollback()

	for _, event := range events {
		if _, err := tx.ExecContext(ctx, r.queries.insertEvent(),
			event.AggregateType,
			event.AggregateID,
			event.Sequence,
			event.EventType,
			event.EventVersion,
			[]byte(event.Payload),
			[]byte(event.Metadata),
		); err != nil {
			return classify(r.dialect, err)
		}
	}

	if snapshot != nil {
		if err := r.writeSnapshot(ctx, tx, snapshot); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(r.dialect, err)
	}
	return nil
}

func (r *EventRepository) writeSnapshot(ctx context.Context, tx *sql.Tx, snapshot *persist.SerializedSnapshot) error {
	if snapshot.CurrentSnapshot == 1 {
		_, err := tx.ExecContext(ctx, r.queries.insertSnapshot(),
			snapshot.AggregateType,
			snapshot.AggregateID,
			snapshot.CurrentSequence,
			snapshot.CurrentSnapshot,
			[]byte(snapshot.Aggregate),
		)
		if err != nil {
			return classify(r.dialect, err)
		}
		return nil
	}

	// The update is conditioned on the previous snapshot version so a
	// stale writer cannot overwrite a newer snapshot.
	result, err := tx.ExecContext(ctx, r.queries.updateSnapshot(),
		snapshot.CurrentSequence,
		snapshot.CurrentSnapshot,
		[]byte(snapshot.Aggregate),
		snapshot.AggregateType,
		snapshot.AggregateID,
		snapshot.CurrentSnapshot-1,
	)
	if err != nil {
		return classify(r.dialect, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return classify(r.dialect, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: snapshot %d of %s/%s not applied",
			persist.ErrOptimisticLock, snapshot.CurrentSnapshot, snapshot.AggregateType, snapshot.AggregateID)
	}
	return nil
}

// StreamEvents pages through one aggregate instance's history in the
// background, feeding a bounded replay stream.
func (r *EventRepository) StreamEvents(ctx context.Context, aggregateType, aggregateID string) (*persist.ReplayStream, error) {
	feed, stream := persist.NewReplayStream(r.streamChannelSize)
	go func() {
		defer feed.Close()
		var cursor uint64
		for {
			events, err := r.selectEvents(ctx, r.queries.selectEventsPage(),
				aggregateType, aggregateID, cursor, r.streamPageSize)
			if err != nil {
				_ = feed.PushErr(ctx, err)
				return
			}
			for _, event := range events {
				if err := feed.Push(ctx, event); err != nil {
					return
				}
				cursor = event.Sequence
			}
			if len(events) < r.streamPageSize {
				return
			}
		}
	}()
	return stream, nil
}

// StreamAllEvents pages through every instance of the aggregate type.
func (r *EventRepository) StreamAllEvents(ctx context.Context, aggregateType string) (*persist.ReplayStream, error) {
	feed, stream := persist.NewReplayStream(r.streamChannelSize)
	go func() {
		defer feed.Close()
		offset := 0
		for {
			events, err := r.selectEvents(ctx, r.queries.selectAllEventsPage(),
				aggregateType, r.streamPageSize, offset)
			if err != nil {
				_ = feed.PushErr(ctx, err)
				return
			}
			for _, event := range events {
				if err := feed.Push(ctx, event); err != nil {
					return
				}
			}
			if len(events) < r.streamPageSize {
				return
			}
			offset += len(events)
		}
	}()
	return stream, nil
}
