// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking
// or a uniqueness violation on insert).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates the request payload failed validation.
var ErrValidation = errors.New("validation failed")

// ErrInvalidTransition indicates a state machine rejected the requested
// status change. Callers should inspect the wrapped message; retrying the
// same transition will never succeed.
var ErrInvalidTransition = errors.New("invalid transition")
