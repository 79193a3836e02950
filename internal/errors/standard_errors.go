// Package errors provides the engine's error taxonomy: a small set of
// kinds shared by every component, instead of one error type per package.
package errors

import (
	"fmt"
	"time"
)

// Kind is a semantic error classification. Components never invent their
// own error types; they wrap one of these kinds.
type Kind string

const (
	KindInvalidArgument      Kind = "InvalidArgument"
	KindNotFound             Kind = "NotFound"
	KindConflict             Kind = "Conflict"
	KindTimeout              Kind = "Timeout"
	KindCircuitOpen          Kind = "CircuitOpen"
	KindStorageUnavailable   Kind = "StorageUnavailable"
	KindEmbeddingUnavailable Kind = "EmbeddingUnavailable"
	KindInternal             Kind = "Internal"
)

// StandardError is the unified error structure produced by every component.
type StandardError struct {
	ErrorInfo ErrorDetails `json:"error"`
}

// Error implements the error interface.
func (e *StandardError) Error() string {
	return e.ErrorInfo.Message
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/As.
func (e *StandardError) Unwrap() error {
	return e.ErrorInfo.cause
}

// ErrorDetails carries the classification and context of a StandardError.
type ErrorDetails struct {
	Kind      Kind                   `json:"kind"`
	Message   string                 `json:"message"`
	Operation string                 `json:"operation,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
	cause     error
}

// New creates a StandardError of the given kind.
func New(kind Kind, message string) *StandardError {
	return &StandardError{ErrorInfo: ErrorDetails{Kind: kind, Message: message}}
}

// Wrap creates a StandardError of the given kind around a cause.
func Wrap(kind Kind, operation string, cause error) *StandardError {
	if cause == nil {
		return nil
	}
	return &StandardError{ErrorInfo: ErrorDetails{
		Kind:      kind,
		Message:   fmt.Sprintf("%s: %v", operation, cause),
		Operation: operation,
		cause:     cause,
	}}
}

// WithDetail attaches a key/value pair to the error's Details map.
func (e *StandardError) WithDetail(key string, value interface{}) *StandardError {
	if e.ErrorInfo.Details == nil {
		e.ErrorInfo.Details = make(map[string]interface{})
	}
	e.ErrorInfo.Details[key] = value
	return e
}

// WithTraceID attaches a trace identifier for cross-component correlation.
func (e *StandardError) WithTraceID(traceID string) *StandardError {
	e.ErrorInfo.TraceID = traceID
	return e
}

// KindOf returns the error kind, "" for a nil err, or KindInternal if err is
// not a StandardError.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *StandardError
	if as(err, &se) {
		return se.ErrorInfo.Kind
	}
	return KindInternal
}

// Is reports whether err is a StandardError of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func as(err error, target **StandardError) bool {
	for err != nil {
		if se, ok := err.(*StandardError); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// NewTimeout builds the canonical Timeout error carrying operation, the
// configured timeout, and elapsed duration, per the kernel's contract.
func NewTimeout(operation string, timeout, elapsed time.Duration) *StandardError {
	return New(KindTimeout, fmt.Sprintf("%s timed out after %s", operation, elapsed)).
		WithDetail("operation", operation).
		WithDetail("timeout", timeout.String()).
		WithDetail("elapsed", elapsed.String())
}

// NewCircuitOpen builds the canonical CircuitOpen error for a named dependency.
func NewCircuitOpen(dependency string) *StandardError {
	return New(KindCircuitOpen, fmt.Sprintf("circuit open: %s", dependency)).
		WithDetail("dependency", dependency)
}

// Predefined common errors for convenience.
var (
	ErrEmptyQuery        = New(KindInvalidArgument, "query must not be empty")
	ErrDimensionMismatch = New(KindInvalidArgument, "vector dimension mismatch")
	ErrNotSoftDeleted    = New(KindInvalidArgument, "memory must be soft-deleted before permanent delete")
)

// IsRetryable reports whether the caller's policy may retry this error kind.
// Per the propagation policy, only Timeout, StorageUnavailable and
// CircuitOpen are candidates for caller-driven retry; all other kinds are
// terminal.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindStorageUnavailable, KindCircuitOpen:
		return true
	}
	return false
}
