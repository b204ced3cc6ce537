package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine errors for transport mapping: not-found maps
// to 404, invalid-argument to 400, precondition-failed to 409. Dependency
// failures are recovered locally and never reach a caller directly.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindInvalidArgument
	KindPreconditionFailed
	KindDependencyUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindPreconditionFailed:
		return "precondition_failed"
	case KindDependencyUnavailable:
		return "dependency_unavailable"
	default:
		return "unknown"
	}
}

// Error is a classified engine error.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a not-found error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// InvalidArgument builds an invalid-argument error.
func InvalidArgument(format string, args ...any) error {
	return &Error{Kind: KindInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

// PreconditionFailed builds a precondition-failed error.
func PreconditionFailed(format string, args ...any) error {
	return &Error{Kind: KindPreconditionFailed, Msg: fmt.Sprintf(format, args...)}
}

// DependencyUnavailable wraps a failure of an optional external collaborator.
func DependencyUnavailable(msg string, err error) error {
	return &Error{Kind: KindDependencyUnavailable, Msg: msg, Err: err}
}

// KindOf returns the classification of err, or 0 for unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsInvalidArgument reports whether err is an invalid-argument error.
func IsInvalidArgument(err error) bool { return KindOf(err) == KindInvalidArgument }

// IsPreconditionFailed reports whether err is a precondition-failed error.
func IsPreconditionFailed(err error) bool { return KindOf(err) == KindPreconditionFailed }

// IsDependencyUnavailable reports whether err is a dependency failure.
func IsDependencyUnavailable(err error) bool { return KindOf(err) == KindDependencyUnavailable }
