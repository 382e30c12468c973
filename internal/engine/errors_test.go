package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := invalidOption("capacity %d below %d", 1, 2)
	assert.EqualError(t, err, "INVALID_OPTION: capacity 1 below 2")

	cause := errors.New("disk full")
	rec := &Error{Code: ErrCodeRecordFailed, Message: "write execution", Err: cause}
	assert.EqualError(t, rec, "RECORD_FAILED: write execution: disk full")
	assert.ErrorIs(t, rec, cause)
}

func TestErrorPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("new engine: %w", invalidOption("bad"))
	assert.True(t, IsInvalidOption(wrapped))
	assert.False(t, IsRecordFailed(wrapped))
	assert.False(t, IsInvalidOption(errors.New("plain")))
}
