// Package common defines shared constants and sentinel errors used across
// the store, approval and lifecycle layers of PostKeeper. Callers should use
// errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound    = errors.New("not found")
	ErrDuplicateID = errors.New("duplicate id")

	// State machine errors.
	ErrInvalidTransition = errors.New("invalid status transition")

	// Boundary errors (webhook bodies, stored payloads).
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnknownAction    = errors.New("unknown action")

	// Gateway, publisher, generator and store I/O failures.
	ErrCollaborator = errors.New("collaborator failure")

	ErrUnauthorized = errors.New("unauthorized")
)

// CollaboratorError carries the failing collaborator name together with the
// underlying cause. It matches both ErrCollaborator and the cause.
type CollaboratorError struct {
	Name string
	Err  error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *CollaboratorError) Unwrap() []error {
	return []error{ErrCollaborator, e.Err}
}

// Collaborator wraps err as a CollaboratorError. A nil err stays nil.
func Collaborator(name string, err error) error {
	if err == nil {
		return nil
	}
	return &CollaboratorError{Name: name, Err: err}
}
