package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrUnmappedIdentifier is matched by *UnmappedError.
	ErrUnmappedIdentifier = errors.New("unmapped identifier")
	// ErrDeclined is matched by *DeclinedError.
	ErrDeclined = errors.New("provider declined")
	// ErrIndeterminate is matched by *IndeterminateError.
	ErrIndeterminate = errors.New("provider outcome indeterminate")
	// ErrInvalidRequest reports a request missing fields its kind needs.
	ErrInvalidRequest = errors.New("invalid provider request")
)

// UnmappedError names the identifier the catalog has no provider code for.
type UnmappedError struct {
	Field string
	Value string
}

func (e *UnmappedError) Error() string {
	return fmt.Sprintf("unmapped %s %q", e.Field, e.Value)
}

func (e *UnmappedError) Is(target error) bool { return target == ErrUnmappedIdentifier }

// DeclinedError means the provider definitely did not fulfil the request.
type DeclinedError struct {
	Reason string
}

func (e *DeclinedError) Error() string { return "provider declined: " + e.Reason }

func (e *DeclinedError) Is(target error) bool { return target == ErrDeclined }

// IndeterminateError means the request may or may not have been fulfilled.
type IndeterminateError struct {
	Cause error
}

func (e *IndeterminateError) Error() string {
	if e.Cause == nil {
		return ErrIndeterminate.Error()
	}
	return ErrIndeterminate.Error() + ": " + e.Cause.Error()
}

func (e *IndeterminateError) Is(target error) bool { return target == ErrIndeterminate }

func (e *IndeterminateError) Unwrap() error { return e.Cause }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
