package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/phrazzld/taskflow-api/internal/api/shared"
	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/redact"
	"github.com/phrazzld/taskflow-api/internal/service"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// TaskHandler handles the task CRUD and query endpoints.
type TaskHandler struct {
	tasks     *service.TaskService
	validator *validator.Validate
	logger    *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks *service.TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:     tasks,
		validator: validator.New(),
		logger:    logger.With(slog.String("component", "task_handler")),
	}
}

// Create handles POST /api/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID := shared.GetOwnerID(r.Context())

	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.tasks.Create(r.Context(), ownerID, domain.TaskSpec{
		Title:       req.Title,
		Description: req.Description,
		Priority:    domain.Priority(req.Priority),
		Tags:        req.Tags,
		DueAt:       req.DueAt,
		RemindAt:    req.RemindAt,
		Recurrence:  recurrenceFromDTO(req.Recurrence),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(task))
}

// Get handles GET /api/tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.Get(r.Context(), shared.GetOwnerID(r.Context()), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// List handles GET /api/tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	query, err := parseTaskQuery(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	tasks, total, err := h.tasks.List(r.Context(), shared.GetOwnerID(r.Context()), query)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	query.Normalize()
	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{
		Tasks:    tasksToResponses(tasks),
		Total:    total,
		Page:     query.Page,
		PageSize: query.PageSize,
	})
}

// Search handles GET /api/tasks/search.
func (h *TaskHandler) Search(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing search term")
		return
	}
	page := intQueryParam(r, "page", 1)
	pageSize := intQueryParam(r, "page_size", 20)

	tasks, total, err := h.tasks.Search(r.Context(), shared.GetOwnerID(r.Context()), term, page, pageSize)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{
		Tasks:    tasksToResponses(tasks),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// Update handles PUT /api/tasks/{id}.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	patch := service.TaskPatch{
		Title:           req.Title,
		Description:     req.Description,
		Tags:            req.Tags,
		DueAt:           req.DueAt,
		ClearDueAt:      req.ClearDueAt,
		RemindAt:        req.RemindAt,
		ClearRemindAt:   req.ClearRemindAt,
		Recurrence:      recurrenceFromDTO(req.Recurrence),
		ClearRecurrence: req.ClearRecurrence,
	}
	if req.Priority != nil {
		p := domain.Priority(*req.Priority)
		patch.Priority = &p
	}

	task, err := h.tasks.Update(r.Context(), shared.GetOwnerID(r.Context()), id, req.Version, patch)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// Complete handles POST /api/tasks/{id}/complete. Completing an
// already-completed task is an idempotent success.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	var req CompleteTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.tasks.Complete(r.Context(), shared.GetOwnerID(r.Context()), id, req.Version)
	if errors.Is(err, service.ErrAlreadyCompleted) {
		resp := taskToResponse(task)
		resp.AlreadyCompleted = true
		shared.RespondWithJSON(w, r, http.StatusOK, resp)
		return
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// Delete handles DELETE /api/tasks/{id}. The expected version is passed as
// the "version" query parameter.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	version, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
	if err != nil || version < 1 {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing or invalid version parameter")
		return
	}

	if err := h.tasks.Delete(r.Context(), shared.GetOwnerID(r.Context()), id, version); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddTags handles POST /api/tasks/{id}/tags.
func (h *TaskHandler) AddTags(w http.ResponseWriter, r *http.Request) {
	h.mutateTags(w, r, h.tasks.AddTags)
}

// RemoveTags handles DELETE /api/tasks/{id}/tags.
func (h *TaskHandler) RemoveTags(w http.ResponseWriter, r *http.Request) {
	h.mutateTags(w, r, h.tasks.RemoveTags)
}

func (h *TaskHandler) mutateTags(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, ownerID string, id uuid.UUID, version int64, tags []string) (*domain.Task, error),
) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	var req TagsRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := op(r.Context(), shared.GetOwnerID(r.Context()), id, req.Version, req.Tags)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

func (h *TaskHandler) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *TaskHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := MapErrorToStatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("trace_id", shared.GetTraceID(r.Context())),
			slog.String("error", redact.Error(err)))
	}
	shared.RespondWithError(w, r, status, GetSafeErrorMessage(err))
}

func parseTaskQuery(r *http.Request) (store.TaskQuery, error) {
	q := r.URL.Query()
	query := store.TaskQuery{
		Status:    domain.Status(q.Get("status")),
		Priority:  domain.Priority(q.Get("priority")),
		Tags:      q["tag"],
		Search:    q.Get("search"),
		SortBy:    q.Get("sort_by"),
		SortOrder: store.SortOrder(q.Get("sort_order")),
		Page:      intQueryParam(r, "page", 0),
		PageSize:  intQueryParam(r, "page_size", 0),
	}

	for name, dst := range map[string]**time.Time{
		"due_before": &query.DueBefore,
		"due_after":  &query.DueAfter,
	} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return store.TaskQuery{}, errors.New("invalid " + name + " timestamp")
		}
		*dst = &t
	}
	return query, nil
}

func intQueryParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
