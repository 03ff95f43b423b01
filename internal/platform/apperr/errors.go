// Package apperr defines the error taxonomy shared by the domain services and
// the HTTP layer. Services return these errors; handlers translate them into
// status codes with HTTPError.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindUpstream   Kind = "upstream"
	KindStore      Kind = "store"
)

// Error is the concrete error type carried through the service layer.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Validation reports a missing or malformed client field (400).
func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity (404).
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a uniqueness violation (409).
func Conflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a failure of an external collaborator such as the inference API.
func Upstream(msg string, cause error) error {
	return &Error{Kind: KindUpstream, Message: msg, Cause: cause}
}

// Store wraps a persistence failure.
func Store(op string, cause error) error {
	return &Error{Kind: KindStore, Message: op, Cause: cause}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Status maps an error to its HTTP status code.
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts err into an echo.HTTPError. Client errors keep their
// message; server errors are replaced with internalMsg so driver details
// never reach the caller.
func HTTPError(err error, internalMsg string) *echo.HTTPError {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		return echo.NewHTTPError(status, internalMsg).SetInternal(err)
	}
	var e *Error
	if errors.As(err, &e) {
		return echo.NewHTTPError(status, e.Message)
	}
	return echo.NewHTTPError(status, err.Error())
}
