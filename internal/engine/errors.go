package engine

import (
	"errors"
	"fmt"
)

// Error is a Go-level engine failure. Failures of evaluated blocks never take
// this form; they are reported inside ExecutionResult.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidOption indicates an option value the engine cannot run with.
	ErrCodeInvalidOption ErrorCode = "INVALID_OPTION"

	// ErrCodeRecordFailed indicates the execution recorder rejected a record.
	ErrCodeRecordFailed ErrorCode = "RECORD_FAILED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsInvalidOption reports whether err is an option validation error.
func IsInvalidOption(err error) bool {
	var ee *Error
	return errors.As(err, &ee) && ee.Code == ErrCodeInvalidOption
}

// IsRecordFailed reports whether err came from the execution recorder.
func IsRecordFailed(err error) bool {
	var ee *Error
	return errors.As(err, &ee) && ee.Code == ErrCodeRecordFailed
}

func invalidOption(format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalidOption, Message: fmt.Sprintf(format, args...)}
}
