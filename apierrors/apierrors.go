// Package apierrors provides the error type every HTTP surface of the
// account API and portal renders to clients.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is an error with a stable code and the HTTP status it maps to.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// WithMessage returns a copy of the error with a custom message.
func (e *APIError) WithMessage(message string) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    message,
		StatusCode: e.StatusCode,
		Details:    e.Details,
	}
}

var (
	ErrBadRequest = &APIError{
		Code:       "bad_request",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrUnauthorized = &APIError{
		Code:       "unauthorized",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrNotFound = &APIError{
		Code:       "not_found",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrConflict = &APIError{
		Code:       "conflict",
		Message:    "Resource already exists",
		StatusCode: http.StatusConflict,
	}

	// ErrUnprocessable marks server-side invariant violations, such as a
	// stored role that no claim set exists for.
	ErrUnprocessable = &APIError{
		Code:       "unprocessable",
		Message:    "The request could not be processed",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrInternal = &APIError{
		Code:       "internal_error",
		Message:    "An internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}
)

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:       "validation_error",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Details:    map[string]string{field: message},
	}
}

// NewValidationErrors creates a validation error with multiple field errors.
func NewValidationErrors(fields map[string]string) *APIError {
	return &APIError{
		Code:       "validation_error",
		Message:    "One or more fields failed validation",
		StatusCode: http.StatusBadRequest,
		Details:    fields,
	}
}

// NewNotFoundError creates a not found error for a specific resource type.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "not_found",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func NewConflictError(message string) *APIError {
	return ErrConflict.WithMessage(message)
}

func NewUnauthorizedError(message string) *APIError {
	return ErrUnauthorized.WithMessage(message)
}

// AsAPIError unwraps err to an APIError, falling back to ErrInternal.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrInternal
}

// StatusCode returns the HTTP status err maps to.
func StatusCode(err error) int {
	return AsAPIError(err).StatusCode
}
