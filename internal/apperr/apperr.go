// Package apperr defines the error taxonomy shared by every layer.
//
// Each error carries a stable Kind and a human-readable message. The HTTP
// layer maps kinds to status codes; the service layer uses them to decide
// what is retryable. Wrapped causes stay available for logging but are never
// exposed in API responses.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind int

const (
	// KindValidation is malformed or out-of-range input. Never retried.
	KindValidation Kind = iota + 1
	// KindUnauthorized is a missing or invalid caller identity.
	KindUnauthorized
	// KindForbidden is a membership, role, or ownership violation.
	KindForbidden
	// KindNotFound is an absent household, expense, obligation, or record.
	KindNotFound
	// KindConflict is a duplicate state transition, e.g. re-settling a
	// settled obligation.
	KindConflict
	// KindTransient is a retryable persistence failure (busy database).
	KindTransient
	// KindInternal is everything else.
	KindInternal
)

// String returns the kind's stable name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Error is a kinded application error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation creates a KindValidation error.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// Unauthorized creates a KindUnauthorized error.
func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, format, args...)
}

// Forbidden creates a KindForbidden error.
func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

// NotFound creates a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Conflict creates a KindConflict error.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// Transient wraps a retryable persistence failure.
func Transient(err error) *Error {
	return &Error{Kind: KindTransient, Message: "temporary storage failure", Err: err}
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf extracts the kind from err, or KindInternal if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-visible message for err. Internal causes stay out
// of the result.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
