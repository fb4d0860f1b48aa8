// Package poiesiserr defines the error kinds used across the engine so
// that callers can branch on failure class with errors.Is/errors.As instead
// of matching on error strings.
package poiesiserr

import (
	"errors"
	"fmt"
)

// Kind classifies the failure so that HTTP handlers, Torc's retry loop, and
// Texam's per-executor accounting can each react without parsing messages.
type Kind string

const (
	BadRequest          Kind = "BadRequest"
	Unauthorized        Kind = "Unauthorized"
	NotFound            Kind = "NotFound"
	StorageError        Kind = "StorageError"
	PlatformError       Kind = "PlatformError"
	TransferError       Kind = "TransferError"
	ConfigError         Kind = "ConfigError"
	MonitorTimeout      Kind = "MonitorTimeout"
	FatalContainerStart Kind = "FatalContainerStart"
	// ExecutorFailure marks a clean per-executor non-zero exit (or a Job
	// Failed condition) as distinct from a platform/infrastructure error, so
	// Torc can route it straight to EXECUTOR_ERROR instead of burning
	// through the PVC/input-restaging retry loop.
	ExecutorFailure Kind = "ExecutorFailure"
)

// Error wraps an underlying cause with a Kind and a human message.
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

// New builds a bare Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and message to an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var pe *Error
	for errors.As(err, &pe) {
		if pe.Kind == kind {
			return true
		}
		err = pe.Err
	}
	return false
}

// KindOf extracts the Kind from err, returning ok=false if err does not
// carry one (treated as an unclassified internal error by callers).
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}
