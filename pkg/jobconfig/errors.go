package jobconfig

import "errors"

// ErrInvalidInput is the sentinel wrapped by every ValidationError.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError represents a field-level validation failure. Field is the
// user-facing key of the offending input (e.g. "repositoryUrl",
// "llm.max-tokens").
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Unwrap allows errors.Is(err, ErrInvalidInput).
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
