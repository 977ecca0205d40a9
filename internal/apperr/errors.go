// Package apperr holds the error taxonomy shared by models, repositories,
// services and handlers. Every error carries a message that can be shown to
// the end user as-is.
package apperr

import (
	"errors"
	"sort"
	"strings"
)

// ValidationError reports one or more field constraints that were violated.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "Validation error"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "Validation error: " + strings.Join(parts, "; ")
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type AttemptLimitExceeded struct {
	Message     string
	MaxAttempts int
}

func (e *AttemptLimitExceeded) Error() string { return e.Message }

// NetworkUnavailable is returned before a remote call is attempted when the
// backing store cannot be reached.
type NetworkUnavailable struct{ Message string }

func (e *NetworkUnavailable) Error() string { return e.Message }

// PersistenceFailure wraps a remote read or write that was attempted and failed.
type PersistenceFailure struct {
	Message string
	Err     error
}

func (e *PersistenceFailure) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }

// StateConflict means the operation is not legal in the entity's current state.
type StateConflict struct{ Message string }

func (e *StateConflict) Error() string { return e.Message }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }

// Persistence wraps err as a PersistenceFailure unless it already belongs to
// the taxonomy.
func Persistence(message string, err error) error {
	if err == nil {
		return nil
	}
	if IsTyped(err) {
		return err
	}
	return &PersistenceFailure{Message: message, Err: err}
}

// IsTyped reports whether err (or something it wraps) is one of the errors
// declared in this package.
func IsTyped(err error) bool {
	var (
		v  *ValidationError
		nf *NotFoundError
		al *AttemptLimitExceeded
		nu *NetworkUnavailable
		pf *PersistenceFailure
		sc *StateConflict
		c  *ConflictError
		u  *UnauthorizedError
		f  *ForbiddenError
		rl *RateLimitError
	)
	return errors.As(err, &v) || errors.As(err, &nf) || errors.As(err, &al) ||
		errors.As(err, &nu) || errors.As(err, &pf) || errors.As(err, &sc) ||
		errors.As(err, &c) || errors.As(err, &u) || errors.As(err, &f) || errors.As(err, &rl)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
