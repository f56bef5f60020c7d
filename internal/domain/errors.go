package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrTitleEmpty is returned when a task title is empty.
	ErrTitleEmpty = errors.New("task title cannot be empty")

	// ErrTitleTooLong is returned when a task title exceeds MaxTitleLength.
	ErrTitleTooLong = errors.New("task title exceeds maximum length")

	// ErrDescriptionTooLong is returned when a task description exceeds
	// MaxDescriptionLength.
	ErrDescriptionTooLong = errors.New("task description exceeds maximum length")

	// ErrOwnerIDEmpty is returned when a task's owner ID is empty.
	ErrOwnerIDEmpty = errors.New("task owner ID cannot be empty")

	// ErrInvalidPriority is returned when a priority is not one of the
	// defined levels.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrInvalidStatus is returned when a status is not a valid task status.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidRecurrence is returned when a recurrence rule is malformed:
	// an unknown pattern, or a rule attached to a task without a due date.
	ErrInvalidRecurrence = errors.New("invalid recurrence rule")

	// ErrReminderAfterDue is returned when remind_at is later than due_at.
	ErrReminderAfterDue = errors.New("reminder cannot be after due date")

	// ErrTaskCompleted is returned when a terminal transition is attempted
	// on a task that is already completed.
	ErrTaskCompleted = errors.New("task is already completed")
)
