package cqrs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserErrorWrapsCause(t *testing.T) {
	cause := errors.New("funds not available")
	err := &UserError{Err: cause}

	assert.Equal(t, "funds not available", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsUserError(err))
	assert.True(t, IsUserError(fmt.Errorf("execute: %w", err)))
}

func TestIsUserErrorDistinguishesConflicts(t *testing.T) {
	assert.False(t, IsUserError(ErrAggregateConflict))
	assert.False(t, IsUserError(errors.New("boom")))
	assert.False(t, IsUserError(nil))
}
