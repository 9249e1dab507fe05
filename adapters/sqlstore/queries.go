package sqlstore

import (
	"fmt"
	"strings"
)

// queryFactory renders the SQL statements for configurable event and
// snapshot table names in the adapter's dialect.
type queryFactory struct {
	dialect       Dialect
	eventTable    string
	snapshotTable string
}

func newQueryFactory(dialect Dialect, eventTable, snapshotTable string) queryFactory {
	return queryFactory{dialect: dialect, eventTable: eventTable, snapshotTable: snapshotTable}
}

func (f queryFactory) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = f.dialect.Placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}

func (f queryFactory) selectEvents() string {
	return fmt.Sprintf(
		`SELECT aggregate_type, aggregate_id, sequence, event_type, event_version, payload, metadata
 FROM %s WHERE aggregate_type = %s AND aggregate_id = %s ORDER BY sequence`,
		f.eventTable, f.dialect.Placeholder(1), f.dialect.Placeholder(2))
}

func (f queryFactory) selectLastEvents() string {
	return fmt.Sprintf(
		`SELECT aggregate_type, aggregate_id, sequence, event_type, event_version, payload, metadata
 FROM %s WHERE aggregate_type = %s AND aggregate_id = %s AND sequence > %s ORDER BY sequence`,
		f.eventTable, f.dialect.Placeholder(1), f.dialect.Placeholder(2), f.dialect.Placeholder(3))
}

func (f queryFactory) selectEventsPage() string {
	return fmt.Sprintf(
		`SELECT aggregate_type, aggregate_id, sequence, event_type, event_version, payload, metadata
 FROM %s WHERE aggregate_type = %s AND aggregate_id = %s AND sequence > %s ORDER BY sequence LIMIT %s`,
		f.eventTable, f.dialect.Placeholder(1), f.dialect.Placeholder(2), f.dialect.Placeholder(3), f.dialect.Placeholder(4))
}

func (f queryFactory) selectAllEventsPage() string {
	return fmt.Sprintf(
		`SELECT aggregate_type, aggregate_id, sequence, event_type, event_version, payload, metadata
 FROM %s WHERE aggregate_type = %s ORDER BY aggregate_id, sequence LIMIT %s OFFSET %s`,
		f.eventTable, f.dialect.Placeholder(1), f.dialect.Placeholder(2), f.dialect.Placeholder(3))
}

func (f queryFactory) insertEvent() string {
	return fmt.Sprintf(
		`INSERT INTO %s (aggregate_type, aggregate_id, sequence, event_type, event_version, payload, metadata)
 VALUES (%s)`,
		f.eventTable, f.placeholders(7))
}

func (f queryFactory) selectSnapshot() string {
	return fmt.Sprintf(
		`SELECT aggregate_type, aggregate_id, last_sequence, current_snapshot, payload
 FROM %s WHERE aggregate_type = %s AND aggregate_id = %s`,
		f.snapshotTable, f.dialect.Placeholder(1), f.dialect.Placeholder(2))
}

func (f queryFactory) insertSnapshot() string {
	return fmt.Sprintf(
		`INSERT INTO %s (aggregate_type, aggregate_id, last_sequence, current_snapshot, payload)
 VALUES (%s)`,
		f.snapshotTable, f.placeholders(5))
}

func (f queryFactory) updateSnapshot() string {
	return fmt.Sprintf(
		`UPDATE %s SET last_sequence = %s, current_snapshot = %s, payload = %s
 WHERE aggregate_type = %s AND aggregate_id = %s AND current_snapshot = %s`,
		f.snapshotTable,
		f.dialect.Placeholder(1), f.dialect.Placeholder(2), f.dialect.Placeholder(3),
		f.dialect.Placeholder(4), f.dialect.Placeholder(5), f.dialect.Placeholder(6))
}
