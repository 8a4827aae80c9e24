package engine

import "errors"

var (
	// ErrNotFound is returned when a revision, study item or user does
	// not exist or is not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyCompleted is returned when completing a revision that is
	// already completed. The first completion won; retrying is a no-op.
	ErrAlreadyCompleted = errors.New("revision already completed")

	// ErrItemInactive is returned when an operation needs an active
	// study item but the item has been deactivated. Completing a
	// revision of an inactive item succeeds but produces no successor.
	ErrItemInactive = errors.New("study item is inactive")
)
