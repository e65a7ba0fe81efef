package errs

import (
	"errors"
	"fmt"
)

// Sentinel kinds used with errors.Is. Concrete errors below wrap one of
// these so callers can branch on the kind without knowing the type.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrProvider    = errors.New("provider error")
	ErrPersistence = errors.New("persistence error")
)

// ValidationError reports malformed configuration or input. Returned
// synchronously; never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing mailbox, lease or tracked email.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError reports a local state conflict, e.g. a duplicate active
// lease for a mailbox. Detected before any provider call is made.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func Conflictf(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// ProviderError wraps a non-success response from the notification
// provider with enough context to log and classify.
type ProviderError struct {
	Op     string
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider: %s: status=%d body=%q", e.Op, e.Status, e.Body)
}

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// PersistenceError reports a store write that failed after an external
// side effect already succeeded. The caller is expected to run its
// compensating action before propagating.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func Persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
