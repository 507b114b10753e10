// Package errors provides structured errors with an HTTP status mapping.
//
// Handlers return these; the HTTP error handler logs them by type and renders
// either the developer exception page or the generic error page.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorises an error for logging and status mapping.
type ErrorType string

const (
	// TypeValidation indicates invalid input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeNotFound indicates a missing resource (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeConflict indicates a concurrent modification or duplicate (HTTP 409)
	TypeConflict ErrorType = "conflict"
	// TypeForbidden indicates an authenticated caller lacking access (HTTP 403)
	TypeForbidden ErrorType = "forbidden"
	// TypeInternal indicates a server-side failure (HTTP 500)
	TypeInternal ErrorType = "internal"
	// TypeExternal indicates a failing dependency (HTTP 502)
	TypeExternal ErrorType = "external"
)

// Error is a structured error with type, message, cause and context.
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

// HTTPStatus returns the status code for the error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeForbidden:
		return http.StatusForbidden
	case TypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is what may be shown to an end user in production.
// Internal and external failures never leak their message.
func (e *Error) PublicMessage() string {
	switch e.Type {
	case TypeInternal, TypeExternal:
		return "An error occurred while processing your request."
	default:
		return e.Message
	}
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Context: make(map[string]any)}
}

func ValidationError(message string) *Error {
	return newError(TypeValidation, message, nil)
}

func NotFoundError(message string) *Error {
	return newError(TypeNotFound, message, nil)
}

func ConflictError(message string, cause error) *Error {
	return newError(TypeConflict, message, cause)
}

func ForbiddenError(message string) *Error {
	return newError(TypeForbidden, message, nil)
}

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

func ExternalError(message string, cause error) *Error {
	return newError(TypeExternal, message, cause)
}

// WithField adds a context field (chainable).
func (e *Error) WithField(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// AsStructuredError returns err as *Error, wrapping foreign errors as internal.
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

// Chain flattens the cause chain of err, outermost first.
func Chain(err error) []error {
	var chain []error
	for err != nil {
		chain = append(chain, err)
		err = errors.Unwrap(err)
	}
	return chain
}
