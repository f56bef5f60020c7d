package service

import "errors"

var (
	// ErrAlreadyCompleted indicates a completion request for a task that is
	// already in the completed state. Callers should treat this as an
	// idempotent success rather than a failure.
	ErrAlreadyCompleted = errors.New("task already completed")

	// ErrReminderUnavailable indicates the reminder scheduler could not be
	// reached. The underlying mutation has been committed; the caller may
	// retry the operation to re-establish the reminder.
	ErrReminderUnavailable = errors.New("reminder scheduler unavailable")
)
