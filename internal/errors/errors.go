// Package errors provides the structured error types used across the reconciler.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCategory classifies the type of error
type ErrorCategory string

const (
	// ConfigError indicates operator misconfiguration; never retried
	ConfigError ErrorCategory = "CONFIG_ERROR"
	// ExternalError indicates a failure of the monitoring backend
	ExternalError ErrorCategory = "EXTERNAL_ERROR"
	// InternalErrorCategory indicates a bug or an impossible input
	InternalErrorCategory ErrorCategory = "INTERNAL_ERROR"
)

// ErrorCode represents a structured error code
type ErrorCode string

const (
	CodeConfiguration    ErrorCode = "CONFIGURATION_ERROR"
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeBackend          ErrorCode = "BACKEND_ERROR"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// StructuredError represents a detailed error with category, code, and recovery suggestion
type StructuredError struct {
	Code       ErrorCode     `json:"code"`
	Category   ErrorCategory `json:"category"`
	Message    string        `json:"message"`
	Details    interface{}   `json:"details,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`

	// Err is the underlying cause, if any
	Err error `json:"-"`
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Category, e.Message)
}

// Unwrap returns the underlying cause
func (e *StructuredError) Unwrap() error {
	return e.Err
}

// ToJSON converts the error to JSON string
func (e *StructuredError) ToJSON() string {
	bytes, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"code":"%s","category":"%s","message":"%s"}`, e.Code, e.Category, e.Message)
	}
	return string(bytes)
}

// New creates a new structured error
func New(code ErrorCode, category ErrorCategory, message string) *StructuredError {
	return &StructuredError{
		Code:     code,
		Category: category,
		Message:  message,
	}
}

// WithDetails adds details to the error
func (e *StructuredError) WithDetails(details interface{}) *StructuredError {
	e.Details = details
	return e
}

// WithSuggestion adds a recovery suggestion to the error
func (e *StructuredError) WithSuggestion(suggestion string) *StructuredError {
	e.Suggestion = suggestion
	return e
}

// Wrap attaches an underlying cause to the error
func (e *StructuredError) Wrap(err error) *StructuredError {
	e.Err = err
	return e
}

// NewConfigurationError creates a fatal misconfiguration error
func NewConfigurationError(format string, args ...interface{}) *StructuredError {
	return New(CodeConfiguration, ConfigError, fmt.Sprintf(format, args...)).
		WithSuggestion("Fix the configuration and redeploy; this error is not transient")
}

// NewMissingParameter creates a missing parameter error
func NewMissingParameter(param string) *StructuredError {
	return New(CodeMissingParameter, ConfigError, fmt.Sprintf("Required parameter '%s' is missing", param)).
		WithSuggestion(fmt.Sprintf("Set the '%s' environment variable", param))
}

// NewBackendError wraps a failed monitoring backend call
func NewBackendError(operation string, err error) *StructuredError {
	return New(CodeBackend, ExternalError, fmt.Sprintf("%s failed", operation)).
		WithDetails(map[string]interface{}{
			"operation": operation,
		}).
		WithSuggestion("The next scheduled run recomputes from current backend state").
		Wrap(err)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *StructuredError {
	return New(CodeInternal, InternalErrorCategory, message)
}

// IsConfigurationError reports whether err is, or wraps, a configuration error
func IsConfigurationError(err error) bool {
	return hasCategory(err, ConfigError)
}

// IsBackendError reports whether err is, or wraps, a backend error
func IsBackendError(err error) bool {
	return hasCategory(err, ExternalError)
}

func hasCategory(err error, category ErrorCategory) bool {
	var se *StructuredError
	if !stderrors.As(err, &se) {
		return false
	}
	return se.Category == category
}
