package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/service"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict

	case errors.Is(err, store.ErrDuplicateID):
		return http.StatusConflict

	case errors.Is(err, domain.ErrTaskCompleted):
		return http.StatusConflict

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrReminderUnavailable):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-safe message for the error.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, store.ErrVersionConflict):
		return "Task was modified concurrently; re-read and retry"

	case errors.Is(err, store.ErrDuplicateID):
		return "Duplicate identifier"

	case errors.Is(err, domain.ErrTaskCompleted):
		return "Task is completed and can no longer be modified"

	case errors.Is(err, domain.ErrValidation):
		// Validation errors are already written for end users.
		return err.Error()

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity"

	case errors.Is(err, service.ErrReminderUnavailable):
		return "Reminder scheduling is temporarily unavailable; retry the request"

	default:
		return "An unexpected error occurred"
	}
}
