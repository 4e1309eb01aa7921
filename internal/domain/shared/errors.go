// Package shared contains common domain types, errors, and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// Integrity errors: the module-level and course-level views disagree.
	// A sync that hits one of these aborts without touching the stored aggregate.
	ErrDataIntegrity = errors.New("data integrity violation")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOptimisticLock         = errors.New("optimistic lock failure")

	// Store errors. Transient failures are safe to retry: syncOne is idempotent.
	ErrTransientStore     = errors.New("transient store error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "course", "sync"
	Op      string // Operation that failed, e.g., "Aggregate", "SyncOne"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Progress domain errors
var (
	ErrRecordNotFound    = NewDomainError("progress", "Find", ErrNotFound, "module progress record not found")
	ErrAggregateNotFound = NewDomainError("progress", "Find", ErrNotFound, "course progress aggregate not found")
	ErrAggregateExists   = NewDomainError("progress", "Create", ErrAlreadyExists, "course progress aggregate already exists")
	ErrInvalidPercentage = NewDomainError("progress", "Validate", ErrValueOutOfRange, "percentage must be between 0 and 100")
	ErrInvalidTimeSpent  = NewDomainError("progress", "Validate", ErrNegativeValue, "time spent cannot be negative")
	ErrCompletionState   = NewDomainError("progress", "Validate", ErrInvalidState, "completion status, percentage and completedAt disagree")
)

// Course domain errors
var (
	ErrCourseNotFound     = NewDomainError("course", "Find", ErrNotFound, "course definition not found")
	ErrModuleNotFound     = NewDomainError("course", "Find", ErrNotFound, "module definition not found")
	ErrEnrollmentNotFound = NewDomainError("course", "FindEnrollment", ErrNotFound, "enrollment not found")
	ErrInvalidModuleCount = NewDomainError("course", "Validate", ErrDataIntegrity, "declared module count is negative")
)

// Sync domain errors
var (
	ErrOrphanedRecord = NewDomainError("sync", "Aggregate", ErrDataIntegrity, "progress record references a module outside the course")
	ErrSyncConflict   = NewDomainError("sync", "Persist", ErrOptimisticLock, "aggregate was modified concurrently")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDataIntegrity checks if the error is a data integrity violation.
// Integrity violations are fatal for the sync call and are not retried.
func IsDataIntegrity(err error) bool {
	return errors.Is(err, ErrDataIntegrity)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrOptimisticLock)
}
