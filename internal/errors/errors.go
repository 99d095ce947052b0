package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/br0z1/social-media-app/internal/feed"
	"github.com/br0z1/social-media-app/internal/geo"
	"github.com/br0z1/social-media-app/internal/repository"
)

// APIError represents a standardized API error response
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Details string    `json:"details,omitempty"`
	Status  int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NotFound creates a NOT_FOUND error
func NotFound(resource string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

// Conflict creates a CONFLICT error
func Conflict(message string) *APIError {
	return &APIError{
		Code:    ErrConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

// ValidationError creates a VALIDATION_ERROR
func ValidationError(field, message string) *APIError {
	return &APIError{
		Code:    ErrValidation,
		Message: message,
		Field:   field,
		Status:  http.StatusUnprocessableEntity,
	}
}

// BadRequest creates a BAD_REQUEST error
func BadRequest(message string) *APIError {
	return &APIError{
		Code:    ErrBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// InvalidSphere creates an INVALID_SPHERE error
func InvalidSphere(message string) *APIError {
	return &APIError{
		Code:    ErrInvalidSphere,
		Message: message,
		Field:   "coordinates",
		Status:  http.StatusBadRequest,
	}
}

// InternalError creates an INTERNAL_ERROR
func InternalError(message string) *APIError {
	return &APIError{
		Code:    ErrInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

// RateLimited creates a RATE_LIMITED error
func RateLimited(message string) *APIError {
	if message == "" {
		message = "rate limit exceeded"
	}
	return &APIError{
		Code:    ErrRateLimited,
		Message: message,
		Status:  http.StatusTooManyRequests,
	}
}

// ServiceUnavailable creates a SERVICE_UNAVAILABLE error
func ServiceUnavailable(service string) *APIError {
	return &APIError{
		Code:    ErrServiceUnavail,
		Message: fmt.Sprintf("%s is temporarily unavailable", service),
		Status:  http.StatusServiceUnavailable,
	}
}

// Timeout creates a TIMEOUT error
func Timeout(operation string) *APIError {
	return &APIError{
		Code:    ErrTimeout,
		Message: fmt.Sprintf("%s timed out", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

// WithDetails adds additional details to an error
func (e *APIError) WithDetails(details string) *APIError {
	e.Details = details
	return e
}

// FromError maps domain errors onto API errors. Anything unrecognised
// becomes an INTERNAL_ERROR without leaking its message.
func FromError(err error) *APIError {
	var apiErr *APIError
	switch {
	case stderrors.As(err, &apiErr):
		return apiErr
	case stderrors.Is(err, geo.ErrInvalidSphere):
		return InvalidSphere(err.Error())
	case stderrors.Is(err, geo.ErrInvalidPoint):
		return ValidationError("coordinates", err.Error())
	case stderrors.Is(err, feed.ErrInvalidRange):
		return ValidationError("range", err.Error())
	case stderrors.Is(err, feed.ErrSessionNotFound):
		return NotFound("feed session")
	case stderrors.Is(err, feed.ErrStaleSession):
		return Conflict("feed session sphere changed; retry the request")
	case stderrors.Is(err, repository.ErrPostNotFound):
		return NotFound("post")
	case stderrors.Is(err, repository.ErrStorageTimeout), stderrors.Is(err, context.DeadlineExceeded):
		return Timeout("storage query")
	case stderrors.Is(err, repository.ErrStorageUnavailable):
		return ServiceUnavailable("post storage")
	default:
		return InternalError("internal server error")
	}
}
