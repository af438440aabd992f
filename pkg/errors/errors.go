// Package errors provides the coded application errors returned by the
// playlist screen service. Each error carries a stable code and the HTTP
// status the API layer answers with.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error represents a structured application error.
type Error struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	HTTPStatus int         `json:"-"`
	Details    interface{} `json:"details,omitempty"`
	Err        error       `json:"-"` // Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code, so errors.Is works
// against the predefined values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy of e carrying details.
// The predefined errors are shared, so they are never mutated.
func (e *Error) WithDetails(details interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// WithError returns a copy of e wrapping err.
func (e *Error) WithError(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// New creates a new Error.
func New(code, message string, httpStatus int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with error code and message.
func Wrap(err error, code, message string, httpStatus int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Error codes
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeTooManyRequests = "TOO_MANY_REQUESTS"

	ErrCodeArtistNotFound = "ARTIST_NOT_FOUND"
	ErrCodeTrackNotFound  = "TRACK_NOT_FOUND"
	ErrCodeInvalidCatalog = "INVALID_CATALOG"

	ErrCodeCacheError = "CACHE_ERROR"
)

// Predefined errors
var (
	ErrInternal        = New(ErrCodeInternal, "Internal server error", http.StatusInternalServerError)
	ErrInvalidRequest  = New(ErrCodeInvalidRequest, "Invalid request", http.StatusBadRequest)
	ErrTooManyRequests = New(ErrCodeTooManyRequests, "Too many requests", http.StatusTooManyRequests)

	ErrArtistNotFound = New(ErrCodeArtistNotFound, "Artist not found", http.StatusNotFound)
	ErrTrackNotFound  = New(ErrCodeTrackNotFound, "Track not found", http.StatusNotFound)
	ErrInvalidCatalog = New(ErrCodeInvalidCatalog, "Invalid catalog", http.StatusInternalServerError)

	ErrCacheError = New(ErrCodeCacheError, "Cache error", http.StatusInternalServerError)
)

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsError checks if an error is a specific application error.
func IsError(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	appErr, ok := As(err)
	if !ok {
		return false
	}
	return appErr.Code == target.Code
}

// GetHTTPStatus returns the HTTP status code for an error.
// If the error is not an *Error, returns 500.
func GetHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	appErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	return appErr.HTTPStatus
}

// GetCode returns the error code for an error.
// If the error is not an *Error, returns INTERNAL_ERROR.
func GetCode(err error) string {
	if err == nil {
		return ""
	}
	appErr, ok := As(err)
	if !ok {
		return ErrCodeInternal
	}
	return appErr.Code
}

// GetMessage returns the client-facing message for an error.
// Errors that are not an *Error are reported as a generic internal error.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}
	appErr, ok := As(err)
	if !ok {
		return ErrInternal.Message
	}
	return appErr.Message
}
