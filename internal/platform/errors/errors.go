// Package errors provides the structured error taxonomy returned by the vote service,
// with HTTP status mapping for the transport layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error for metrics and response formatting.
type ErrorType string

const (
	// TypeInvalidArgument indicates malformed input (HTTP 400). Never retried.
	TypeInvalidArgument ErrorType = "invalid_argument"
	// TypeNotFound indicates the referenced product does not exist (HTTP 404).
	TypeNotFound ErrorType = "not_found"
	// TypeRateLimited indicates the caller's window is exhausted (HTTP 429).
	TypeRateLimited ErrorType = "rate_limited"
	// TypeStorage indicates the durable write failed after retries (HTTP 503).
	TypeStorage ErrorType = "storage"
	// TypeBroadcast indicates a publish failure. Logged, never rendered to callers.
	TypeBroadcast ErrorType = "broadcast"
	// TypeInternal indicates an unexpected server-side error (HTTP 500).
	TypeInternal ErrorType = "internal"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeInvalidArgument:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    t,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

func InvalidArgumentError(message string) *Error {
	return newError(TypeInvalidArgument, message, nil)
}

func NotFoundError(message string) *Error {
	return newError(TypeNotFound, message, nil)
}

// RateLimitedError carries the window state so callers can back off.
func RateLimitedError(limit, remaining, resetInSeconds int) *Error {
	return newError(TypeRateLimited, "rate limit exceeded", nil).
		WithField("limit", limit).
		WithField("remaining", remaining).
		WithField("resetInSeconds", resetInSeconds)
}

func StorageError(message string, cause error) *Error {
	return newError(TypeStorage, message, cause)
}

func BroadcastError(message string, cause error) *Error {
	return newError(TypeBroadcast, message, cause)
}

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// WithField adds a context field to the error (chainable).
func (e *Error) WithField(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IntField returns an integer context field, or false if absent.
func (e *Error) IntField(key string) (int, bool) {
	v, ok := e.Context[key].(int)
	return v, ok
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error.
// An *Error anywhere in the chain is returned unchanged; anything else becomes internal.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal server error", err)
}

// IsType reports whether err carries a structured error of the given type.
func IsType(err error, t ErrorType) bool {
	var structuredErr *Error
	return errors.As(err, &structuredErr) && structuredErr.Type == t
}
