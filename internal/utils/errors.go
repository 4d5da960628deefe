package utils

import (
	"errors"
	"fmt"
)

// ValidationError represents an error occurring during data validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message string, prefixed with the field when set.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NewValidationError creates a new ValidationError with a specific message.
func NewValidationError(message string) error {
	return &ValidationError{
		Message: message,
	}
}

// NewFieldValidationErrorf creates a ValidationError for a named configuration
// or input field with a formatted message.
func NewFieldValidationErrorf(field string, format string, args ...interface{}) error {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
