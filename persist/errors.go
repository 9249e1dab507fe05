package persist

import (
	"errors"
	"fmt"
)

// ErrOptimisticLock is the conflict signal raised by repositories when a
// write lost the race against a concurrent writer: an event sequence that
// already exists, or a snapshot update against a stale snapshot version.
var ErrOptimisticLock = errors.New("optimistic lock error")

// ConnectionError wraps a transport or I/O failure reaching storage.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// DeserializationError wraps a stored payload that does not match the
// expected shape, including an event version no upcaster could resolve.
type DeserializationError struct {
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialization error: %v", e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// UnknownError wraps backend failures not otherwise classified.
type UnknownError struct {
	Err error
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unknown error: %v", e.Err)
}

func (e *UnknownError) Unwrap() error {
	return e.Err
}
