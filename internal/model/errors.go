// Package model holds the request/patch/run data records shared by every
// component of the patch orchestration core, plus the error taxonomy used
// to propagate failures as values instead of exceptions (spec §7, §9).
package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind enumerates the error taxonomy of spec §7.
type Kind string

const (
	KindConfigurationError      Kind = "ConfigurationError"
	KindUnsupportedDistro       Kind = "UnsupportedDistro"
	KindPackageManagerTransient Kind = "PackageManagerTransient"
	KindPackageManagerFailed    Kind = "PackageManagerFailed"
	KindPackageManagerFatal     Kind = "PackageManagerFatal"
	KindDeadlineExceeded        Kind = "DeadlineExceeded"
	KindCancelled               Kind = "Cancelled"
	KindStatusWriteError        Kind = "StatusWriteError"
	KindRebootFailure           Kind = "RebootFailure"
)

// Error is the single structured error type that crosses component
// boundaries. Adapters and the orchestrator never panic or throw across a
// capability boundary; they return an *Error value instead.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.WithStack(cause)}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is(err, model.KindX) style matching via a sentinel
// wrapper — callers more commonly use AsKind below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// AsKind reports whether err is a *Error of the given kind.
func AsKind(err error, kind Kind) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind == kind
	}
	return false
}
