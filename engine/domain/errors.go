package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures.
var (
	ErrEmptyID        = errors.New("descriptor id is empty")
	ErrEmptyName      = errors.New("descriptor name is empty")
	ErrEmptyType      = errors.New("descriptor type is empty")
	ErrNoCapabilities = errors.New("descriptor declares no capabilities")
	ErrUnknownSource  = errors.New("unknown discovery source")
	ErrDuplicateID    = errors.New("duplicate descriptor id in batch")
)

// ValidationError wraps a sentinel with the descriptor it concerns.
type ValidationError struct {
	DescriptorID string
	Field        string
	Wrapped      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s: %s: %s", e.DescriptorID, e.Field, e.Wrapped)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(id, field string, wrapped error) *ValidationError {
	return &ValidationError{DescriptorID: id, Field: field, Wrapped: wrapped}
}
