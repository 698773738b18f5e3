package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeProcessing ErrorType = "processing"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeInternal   ErrorType = "internal"

	// ErrorTypeDecode is returned when the input bytes are not a valid image
	ErrorTypeDecode ErrorType = "decode"
	// ErrorTypeInput marks a decodable but degenerate image
	ErrorTypeInput ErrorType = "input"
	// ErrorTypeEmbeddingUnavailable is recovered locally as an empty embedding
	ErrorTypeEmbeddingUnavailable ErrorType = "embedding_unavailable"
	// ErrorTypeAssessorUnavailable is recovered locally with a degraded narrative
	ErrorTypeAssessorUnavailable ErrorType = "assessor_unavailable"
	// ErrorTypeTransport means the scoring endpoint could not be reached by the caller
	ErrorTypeTransport ErrorType = "transport"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Recoverable reports whether the pipeline absorbs this error instead of
// surfacing it to the caller.
func (e *AppError) Recoverable() bool {
	switch e.Type {
	case ErrorTypeInput, ErrorTypeEmbeddingUnavailable, ErrorTypeAssessorUnavailable:
		return true
	}
	return false
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewProcessingError creates a new processing error
func NewProcessingError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProcessing,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    message,
		StatusCode: http.StatusGatewayTimeout,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewDecodeError creates an error for bytes that are not a valid image
func NewDecodeError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeDecode,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewInputError creates an error for a decodable but degenerate image
func NewInputError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInput,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewEmbeddingUnavailableError wraps a model load or inference failure
func NewEmbeddingUnavailableError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeEmbeddingUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// NewAssessorUnavailableError wraps a qualitative assessor timeout or failure
func NewAssessorUnavailableError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeAssessorUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// NewTransportError creates an error for an unreachable scoring endpoint
func NewTransportError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTransport,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// IsType checks if the error chain contains an AppError of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
