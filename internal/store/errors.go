package store

import "errors"

// Sentinel errors returned by store implementations. Callers match these
// with errors.Is; implementations wrap them with context.
var (
	// ErrTaskNotFound is returned when a task does not exist or is not
	// visible to the requesting owner.
	ErrTaskNotFound = errors.New("task not found")

	// ErrVersionConflict is returned when a mutation presents a stale
	// version. The caller should re-read and retry.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicateID is returned when creating an entity whose ID already
	// exists.
	ErrDuplicateID = errors.New("duplicate ID")

	// ErrInvalidEntity is returned when an entity fails validation before a
	// write.
	ErrInvalidEntity = errors.New("invalid entity")
)
