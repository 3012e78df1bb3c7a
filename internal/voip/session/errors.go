package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrAlreadyInCall indicates a new call was requested while one is in progress.
	ErrAlreadyInCall = errors.New("already in call")

	// ErrInvalidTransition indicates the operation is not legal in the current state.
	ErrInvalidTransition = errors.New("invalid transition")
)

// TransitionError describes a rejected state transition.
type TransitionError struct {
	Op    string
	From  CallState
	Cause error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: not allowed in state %s: %v", e.Op, e.From, e.Cause)
}

func (e *TransitionError) Unwrap() error {
	return e.Cause
}

func invalid(op string, from CallState) error {
	return &TransitionError{Op: op, From: from, Cause: ErrInvalidTransition}
}

func busy(op string, from CallState) error {
	return &TransitionError{Op: op, From: from, Cause: ErrAlreadyInCall}
}
