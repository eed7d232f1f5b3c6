package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPayload is returned for malformed operation data
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrUnsupportedOperation is returned when no handler exists for an operation type
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrPersistence wraps store I/O failures
	ErrPersistence = errors.New("persistence error")
	// ErrNetworkUnavailable is returned when dispatch is attempted while offline
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrInvalidTransition is returned for a status change the state machine forbids
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDuplicateOperation is returned when an operation ID is already queued
	ErrDuplicateOperation = errors.New("duplicate operation")
	// ErrNotFound is returned when an operation ID is unknown
	ErrNotFound = errors.New("operation not found")
)

// StatusError is a remote call failure carrying a response status code.
type StatusError struct {
	Code    int
	Message string
}

// NewStatusError creates a StatusError
func NewStatusError(code int, message string) *StatusError {
	return &StatusError{Code: code, Message: message}
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote call failed with status %d", e.Code)
	}
	return fmt.Sprintf("remote call failed with status %d: %s", e.Code, e.Message)
}

// HTTPStatusCode returns the status code, matching the accessor exposed by
// aws-sdk-go-v2 response errors.
func (e *StatusError) HTTPStatusCode() int {
	return e.Code
}

// TransportError is a failure to reach the backend at all (DNS, dial, reset).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport failure: " + errorText(e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
