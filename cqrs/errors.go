package cqrs

import "errors"

// ErrAggregateConflict indicates that another writer committed events for
// the same aggregate instance between load and commit. The command was not
// applied; callers should retry by re-invoking Execute from scratch so the
// decision is made against fresh state.
var ErrAggregateConflict = errors.New("aggregate conflict: concurrent modification detected")

// UserError wraps a business-rule rejection returned by Aggregate.Handle.
// Unlike ErrAggregateConflict, retrying the identical command will fail
// again: the command itself is invalid given the current aggregate state.
type UserError struct {
	Err error
}

func (e *UserError) Error() string {
	return e.Err.Error()
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// IsUserError reports whether err is a business-rule rejection.
func IsUserError(err error) bool {
	var userErr *UserError
	return errors.As(err, &userErr)
}
