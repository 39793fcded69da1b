// Package domainerrors provides typed domain errors with stable codes.
//
// Services return these so transport layers can translate them into HTTP
// statuses without string matching. Stores do not use this package; they
// return pkg/platform/sentinel errors which services translate here.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the category of a domain error.
type Code string

const (
	// CodeNotFound: the record does not exist.
	CodeNotFound Code = "not_found"
	// CodeInvalidState: the requested transition is not legal from the
	// record's current status.
	CodeInvalidState Code = "invalid_state"
	// CodeConflict: a concurrent write won the race; the caller may retry
	// after re-reading. This is the only code callers are expected to retry
	// automatically.
	CodeConflict Code = "conflict"
	// CodeAlreadyPaid: a payment with the same reference was already
	// captured for this record.
	CodeAlreadyPaid Code = "already_paid"
	// CodeAmountMismatch: the tendered amount does not equal the
	// outstanding total.
	CodeAmountMismatch Code = "amount_mismatch"
	// CodeInvalidFilter: a list query carried malformed or contradictory
	// filter parameters.
	CodeInvalidFilter Code = "invalid_filter"
	// CodeBadRequest: malformed request input outside the filter surface.
	CodeBadRequest Code = "bad_request"
	// CodeInvalidInput: input failed parsing at a trust boundary (ids).
	CodeInvalidInput Code = "invalid_input"
	// CodeInvariantViolation: a model invariant would be broken. Services
	// usually convert this to a caller-facing code before returning.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal: unexpected failure; detail is never sent to clients.
	CodeInternal Code = "internal_error"
)

// Error is a domain error with a stable code, a human-readable message, and
// an optional wrapped cause.
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

// New constructs a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is/As chains.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) is a domain error with
// the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal when err is not a
// domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
