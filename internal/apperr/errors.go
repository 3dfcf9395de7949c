// Package apperr defines the typed errors returned by the engine.  Every
// failure a caller can act on carries a Kind; handlers translate the kind
// into an HTTP status in one place.  None of these errors are retried by
// the engine itself.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindInvalidTransition Kind = "InvalidTransition"
	KindTableAlreadyBound Kind = "TableAlreadyBound"
	KindTableInUse        Kind = "TableInUse"
	KindNoTablesAvailable Kind = "NoTablesAvailable"
	KindNotFound          Kind = "NotFound"
	KindAlreadyClosed     Kind = "AlreadyClosed"
	KindCancelled         Kind = "Cancelled"
	KindDuplicateName     Kind = "DuplicateName"
)

// Error is the concrete error type.  Err is an optional cause (for example
// the context error behind a Cancelled).
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, &Error{Kind: k}) match on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err (or anything it wraps) is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func Validation(format string, args ...any) *Error { return New(KindValidation, format, args...) }

func NotFound(format string, args ...any) *Error { return New(KindNotFound, format, args...) }

func InvalidTransition(from, action string) *Error {
	return New(KindInvalidTransition, "cannot %s a reservation in status %s", action, from)
}
