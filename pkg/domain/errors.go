package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for classifying domain failures.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
	ErrProvider     = errors.New("payment provider error")
)

// DomainError wraps a sentinel error with human-readable context.
type DomainError struct {
	Err     error
	Message string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	return e.Message
}

// Unwrap exposes the sentinel for errors.Is checks.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a not-found error for an entity.
func NewNotFoundError(entity, id string) *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s with id %s not found", entity, id),
	}
}

// NewConflictError creates a conflict error (duplicate or concurrent modification).
func NewConflictError(message string) *DomainError {
	return &DomainError{Err: ErrConflict, Message: message}
}

// NewInvalidStateError creates an error for an illegal state transition.
func NewInvalidStateError(from, to string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidState,
		Message: fmt.Sprintf("invalid state transition from %s to %s", from, to),
	}
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *DomainError {
	return &DomainError{Err: ErrValidation, Message: message}
}

// NewProviderError wraps a payment provider failure with a message that is safe
// to show to callers. The raw upstream error stays in Err for logging.
func NewProviderError(message string, cause error) *DomainError {
	return &DomainError{
		Err:     fmt.Errorf("%w: %w", ErrProvider, cause),
		Message: message,
	}
}
