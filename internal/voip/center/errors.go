package center

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrInvalidArguments indicates a request with missing or mistyped fields.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrNotImplemented indicates an unknown request name.
	ErrNotImplemented = errors.New("not implemented")

	// ErrStopped indicates the center is no longer processing commands.
	ErrStopped = errors.New("center stopped")

	// ErrNoListener indicates nobody is attached to receive an acknowledgment request.
	ErrNoListener = errors.New("no listener attached")
)

// InvalidArgumentsError names the request and the offending field.
type InvalidArgumentsError struct {
	Method string
	Field  string
}

func (e *InvalidArgumentsError) Error() string {
	return "InvalidArguments:" + e.Method
}

// Detail describes which field was rejected
func (e *InvalidArgumentsError) Detail() string {
	return fmt.Sprintf("field %q missing or mistyped", e.Field)
}

func (e *InvalidArgumentsError) Unwrap() error {
	return ErrInvalidArguments
}

func invalidArgs(method, field string) error {
	return &InvalidArgumentsError{Method: method, Field: field}
}
