package contracts

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is wrapped by every construction-time validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrUnhandledVariant is the panic value raised when a sealed variant
	// reaches the default branch of an exhaustive switch. It marks a
	// programming defect, never a runtime condition.
	ErrUnhandledVariant = errors.New("unhandled variant")
)

// ValidationError describes a structurally invalid input record.
type ValidationError struct {
	Entity string `json:"entity"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

// Invalid builds a ValidationError with a formatted reason.
func Invalid(entity, field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s: %s", e.Entity, e.Field, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Unhandled returns the panic value for an unknown sealed variant.
func Unhandled(where string, v any) error {
	return fmt.Errorf("%s: %w: %T", where, ErrUnhandledVariant, v)
}
