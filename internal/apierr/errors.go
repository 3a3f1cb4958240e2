// Package apierr defines the typed error kinds returned across the
// component boundary to collaborators (transport, CLI, tests).
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way a transport adapter needs to map it
// onto a status code. A deny *decision* from the Decision Engine is never
// one of these — only a hard failure or a rule violation is.
type Kind string

const (
	NotFound Kind = "NOT_FOUND"
	Conflict Kind = "CONFLICT"
	Invalid  Kind = "INVALID"
	Forbidden Kind = "FORBIDDEN"
	Internal Kind = "INTERNAL"
)

// Error is the structured error returned by every exposed operation.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Reason: fmt.Sprintf(format, args...)}
}

func NewNotFound(format string, args ...any) *Error  { return newErr(NotFound, format, args...) }
func NewConflict(format string, args ...any) *Error   { return newErr(Conflict, format, args...) }
func NewInvalid(format string, args ...any) *Error    { return newErr(Invalid, format, args...) }
func NewForbidden(format string, args ...any) *Error  { return newErr(Forbidden, format, args...) }

// NewInternal wraps an underlying cause (typically a database error) as an
// INTERNAL error. Nothing is swallowed — Unwrap exposes the original.
func NewInternal(cause error, format string, args ...any) *Error {
	e := newErr(Internal, format, args...)
	e.Cause = cause
	return e
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
