package models

import "fmt"

// ErrorType categorizes errors for appropriate handling.
type ErrorType int

const (
	ErrorTypeTransient       ErrorType = iota // Network, timeout → retry
	ErrorTypeContextOverflow                  // Context window exceeded → manage context
	ErrorTypeAPILimit                         // Rate limit → surface to user
	ErrorTypeToolFailure                      // Individual tool failed → continue loop
	ErrorTypeFatal                            // Unrecoverable → stop loop
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeTransient:
		return "Transient"
	case ErrorTypeContextOverflow:
		return "ContextOverflow"
	case ErrorTypeAPILimit:
		return "APILimit"
	case ErrorTypeToolFailure:
		return "ToolFailure"
	case ErrorTypeFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// LoopError is a categorized error raised by a model provider or the loop.
type LoopError struct {
	Type      ErrorType              `json:"type"`
	Retryable bool                   `json:"retryable"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *LoopError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// NewTransientError creates a retryable transient error
func NewTransientError(message string) *LoopError {
	return &LoopError{Type: ErrorTypeTransient, Retryable: true, Message: message}
}

// NewContextOverflowError creates a context overflow error
func NewContextOverflowError(message string) *LoopError {
	return &LoopError{Type: ErrorTypeContextOverflow, Message: message}
}

// NewAPILimitError creates an API rate limit error
func NewAPILimitError(message string) *LoopError {
	return &LoopError{Type: ErrorTypeAPILimit, Retryable: true, Message: message}
}

// NewToolFailureError creates a tool failure error
func NewToolFailureError(message string) *LoopError {
	return &LoopError{Type: ErrorTypeToolFailure, Message: message}
}

// NewFatalError creates a fatal error
func NewFatalError(message string) *LoopError {
	return &LoopError{Type: ErrorTypeFatal, Message: message}
}
