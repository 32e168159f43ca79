package shared

import (
	"errors"
	"fmt"
)

// Error taxonomy surfaced by the services. Callers test with errors.Is.
var (
	// ErrValidation marks malformed or inconsistent input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing referenced entity.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks duplicates, stale versions and blocked deletes.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState marks an operation the current status forbids.
	ErrInvalidState = errors.New("invalid state")
	// ErrPersistence marks a storage or transaction failure.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError reports the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     any
}

// NewNotFoundError builds a NotFoundError.
func NewNotFoundError(entity string, id any) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError names the conflicting entity and the reason.
type ConflictError struct {
	Entity string
	ID     any
	Reason string
}

// NewConflictError builds a ConflictError.
func NewConflictError(entity string, id any, reason string) *ConflictError {
	return &ConflictError{Entity: entity, ID: id, Reason: reason}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s %v: %s", e.Entity, e.ID, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// InvalidStateError carries the attempted operation and the current status.
type InvalidStateError struct {
	Op     string
	Status string
}

// NewInvalidStateError builds an InvalidStateError.
func NewInvalidStateError(op, status string) *InvalidStateError {
	return &InvalidStateError{Op: op, Status: status}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: cannot %s when status is %s", e.Op, e.Status)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// PersistenceError wraps the storage failure behind an operation name.
type PersistenceError struct {
	Op  string
	Err error
}

// NewPersistenceError builds a PersistenceError.
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// IsTaxonomy reports whether err already belongs to the error taxonomy.
func IsTaxonomy(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrPersistence)
}

// AsPersistence leaves taxonomy errors untouched and wraps anything else.
func AsPersistence(op string, err error) error {
	if err == nil || IsTaxonomy(err) {
		return err
	}
	return NewPersistenceError(op, err)
}
