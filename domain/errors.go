package domain

import "fmt"

// Specific errors that may occur during booking and payment operations.
// Handlers map them to HTTP statuses; only TransientError is retryable.

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return e.Entity + " not found"
}

type ConflictError struct {
	Reason string
	Date   string
}

func (e *ConflictError) Error() string {
	if e.Date != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Date)
	}
	return e.Reason
}

type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// TransientError wraps storage or gateway unavailability. Callers may
// retry with backoff; it must not be confused with a business conflict.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}
