package sqlstore

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/cqrs-es/persist"
)

// numberedDialect renders Postgres-style placeholders; uniqueErr marks
// the error it treats as a unique-constraint violation.
type numberedDialect struct {
	uniqueErr error
}

func (numberedDialect) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (d numberedDialect) IsUniqueViolation(err error) bool {
	return errors.Is(err, d.uniqueErr)
}

func TestQueryFactoryRendersPlaceholders(t *testing.T) {
	queries := newQueryFactory(numberedDialect{}, "account_events", "account_snapshots")

	assert.Equal(t,
		`INSERT INTO account_events (aggregate_type, aggregate_id, sequence, event_type, event_version, payload, metadata)
 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		queries.insertEvent())
	assert.Contains(t, queries.selectEvents(), "FROM account_events WHERE aggregate_type = $1 AND aggregate_id = $2 ORDER BY sequence")
	assert.Contains(t, queries.selectLastEvents(), "sequence > $3")
	assert.Contains(t, queries.selectEventsPage(), "LIMIT $4")
	assert.Contains(t, queries.selectAllEventsPage(), "LIMIT $2 OFFSET $3")
	assert.Contains(t, queries.selectSnapshot(), "FROM account_snapshots")
	assert.Contains(t, queries.updateSnapshot(), "current_snapshot = $6")
}

func TestClassifyMapsDriverErrors(t *testing.T) {
	unique := errors.New("duplicate key")
	dialect := numberedDialect{uniqueErr: unique}

	assert.NoError(t, classify(dialect, nil))

	err := classify(dialect, unique)
	assert.ErrorIs(t, err, persist.ErrOptimisticLock)
	assert.ErrorIs(t, err, unique)

	err = classify(dialect, driver.ErrBadConn)
	var connection *persist.ConnectionError
	assert.ErrorAs(t, err, &connection)

	err = classify(dialect, errors.New("syntax error"))
	var unknown *persist.UnknownError
	assert.ErrorAs(t, err, &unknown)
}
