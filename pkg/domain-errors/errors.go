// Package domainerrors carries typed error codes from services to transports.
//
// Services return *Error values (or wrap lower-level errors with Wrap) so that
// handlers can map them to HTTP status codes without string matching. Stores
// should not return these directly; they return pkg/platform/sentinel facts
// which services translate.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers deciding whether to retry.
type Code string

const (
	// CodeValidation marks an illegal transition edge or semantically invalid
	// input. Not retryable without changing the input.
	CodeValidation Code = "validation_error"
	// CodeBadRequest marks a malformed request (bad JSON, missing fields).
	CodeBadRequest Code = "bad_request"
	// CodeInvalidInput marks an identifier that fails parsing.
	CodeInvalidInput Code = "invalid_input"
	// CodeConflict marks an optimistic concurrency failure. Retry after re-read.
	CodeConflict Code = "conflict"
	// CodeUnauthorized marks a missing, invalid, expired or revoked token.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks an authenticated caller lacking permission.
	CodeForbidden Code = "forbidden"
	// CodeNotFound marks an unknown candidate or notification.
	CodeNotFound Code = "not_found"
	// CodeUnavailable marks a persistence layer failure. The operation was not applied.
	CodeUnavailable Code = "storage_unavailable"
	// CodeTimeout marks a caller deadline reached before commit.
	CodeTimeout Code = "timeout"
	// CodeTransport marks a failed send on a single realtime session.
	CodeTransport Code = "transport_error"
	// CodeInvariantViolation marks a model constructor rejecting its input.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal is the catch-all.
	CodeInternal Code = "internal_error"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any coded error in err's chain has the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost coded message, or a generic one.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// Retryable reports whether a caller may retry the same operation, possibly
// after re-reading state.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeConflict, CodeUnavailable, CodeTimeout:
		return true
	default:
		return false
	}
}
