package tools

import (
	"errors"
	"fmt"

	"github.com/mfateev/temporal-agent-loop/internal/models"
)

// TransientError indicates a temporary failure that may succeed if the model
// issues the same call again. Examples: network timeout, busy resource.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error: %v", e.Cause)
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// NewTransientError wraps an error as transient.
func NewTransientError(cause error) *TransientError {
	return &TransientError{Cause: cause}
}

// ValidationError indicates arguments that cannot succeed as given, such as
// a missing required argument or a value of the wrong type.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// NewValidationErrorf creates a validation error with formatting.
func NewValidationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsTransientError checks if an error is transient.
func IsTransientError(err error) bool {
	var transientErr *TransientError
	return errors.As(err, &transientErr)
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// AsLoopError maps a handler error onto the loop's error taxonomy.
func AsLoopError(err error) *models.LoopError {
	if err == nil {
		return nil
	}
	var le *models.LoopError
	if errors.As(err, &le) {
		return le
	}
	if IsTransientError(err) {
		return models.NewTransientError(err.Error())
	}
	return models.NewToolFailureError(err.Error())
}
