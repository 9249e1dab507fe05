// Package sqlstore implements the persist repository contracts once over
// database/sql. Backend packages (postgres, sqlite) only contribute a
// Dialect and a connection helper; none of the event-store logic is
// re-derived per backend.
package sqlstore

import (
	"database/sql/driver"
	"errors"

	"github.com/example/cqrs-es/persist"
)

// Dialect abstracts the differences between SQL backends: parameter
// placeholder style and how a unique-constraint violation surfaces.
type Dialect interface {
	// Placeholder returns the parameter placeholder for the 1-based
	// position n, e.g. "$1" for Postgres or "?" for SQLite.
	Placeholder(n int) string

	// IsUniqueViolation reports whether err is a unique-constraint
	// violation from this backend's driver.
	IsUniqueViolation(err error) bool
}

// classify maps a driver error into the persistence taxonomy.
func classify(d Dialect, err error) error {
	switch {
	case err == nil:
		return nil
	case d.IsUniqueViolation(err):
		return &optimisticLockError{cause: err}
	case errors.Is(err, driver.ErrBadConn):
		return &persist.ConnectionError{Err: err}
	default:
		return &persist.UnknownError{Err: err}
	}
}

// optimisticLockError keeps the driver error reachable while matching
// persist.ErrOptimisticLock through errors.Is.
type optimisticLockError struct {
	cause error
}

func (e *optimisticLockError) Error() string {
	return persist.ErrOptimisticLock.Error() + ": " + e.cause.Error()
}

func (e *optimisticLockError) Is(target error) bool {
	return target == persist.ErrOptimisticLock
}

func (e *optimisticLockError) Unwrap() error {
	return e.cause
}
