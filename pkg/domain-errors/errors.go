// Package domainerrors provides coded errors for the registry domain.
//
// Services attach a Code to every error they return so transports can map
// failures deterministically and callers can branch on kind rather than on
// message text. Stores never use this package directly; they return
// pkg/platform/sentinel errors which services translate.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	// Registry precondition violations. Each maps to exactly one failure in
	// the registry operation contracts; check ordering inside the service
	// decides which one wins when several are violated at once.
	CodeAlreadyRegistered Code = "already_registered"
	CodeNotFound          Code = "not_found"
	CodeInactive          Code = "inactive"
	CodeUnauthorized      Code = "unauthorized"
	CodeInvalidDelegate   Code = "invalid_delegate"
	CodeAlreadyDelegate   Code = "already_delegate"
	CodeNotDelegate       Code = "not_delegate"

	// Ambient codes shared by transport and infrastructure layers.
	CodeBadRequest      Code = "bad_request"
	CodeInvalidInput    Code = "invalid_input"
	CodeUnauthenticated Code = "unauthenticated"
	CodeTimeout         Code = "timeout"
	CodeInternal        Code = "internal"
)

// Error is a domain error carrying a classification code. The wrapped cause,
// if any, is reachable through errors.Unwrap for logging; the code and message
// are what crosses the API boundary.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is a readability alias for HasCode used at call sites that branch on
// error kind.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in the domain.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to its HTTP response status. Deactivated
// identifiers answer 410 so indexers can distinguish "never existed" from
// "terminally gone".
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeAlreadyRegistered, CodeAlreadyDelegate:
		return http.StatusConflict
	case CodeNotFound, CodeNotDelegate:
		return http.StatusNotFound
	case CodeInactive:
		return http.StatusGone
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeInvalidDelegate, CodeInvalidInput:
		return http.StatusUnprocessableEntity
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
