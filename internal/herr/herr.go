// Package herr defines the typed error taxonomy the core exposes to
// callers. It does not map these onto any higher-level status surface —
// that mapping belongs to whatever wraps this engine.
package herr

import (
	"errors"
	"fmt"
)

// Kind is one of the engine's error categories.
type Kind string

const (
	ConfigInvalid     Kind = "config_invalid"
	DimensionMismatch Kind = "dimension_mismatch"
	DuplicateLabel    Kind = "duplicate_label"
	UnknownLabel      Kind = "unknown_label"
	CapacityExceeded  Kind = "capacity_exceeded"
	IntegrityFailure  Kind = "integrity_failure"
	Io                Kind = "io"
	Internal          Kind = "internal"
)

// Error is the engine's error type: a Kind plus a human-readable reason
// and an optional wrapped cause.
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

// Is allows errors.Is(err, herr.New(kind, "")) to match on Kind alone.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Newf builds an *Error with a formatted reason.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error with a wrapped cause.
func Wrap(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}

// Of reports the Kind of err, if it (or something it wraps) is an
// *Error. The second return is false for non-taxonomy errors.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err's Kind matches kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
