// Package api implements the HTTP surface: task CRUD and queries, the audit
// trail, the natural-language chat endpoint, the websocket attach point, and
// health. Handlers translate between the JSON contract and the service
// layer; they hold no business logic.
package api

import (
	"time"

	"github.com/phrazzld/taskflow-api/internal/domain"
)

// RecurrenceDTO is the wire form of a recurrence rule.
type RecurrenceDTO struct {
	Pattern string     `json:"pattern" validate:"required,oneof=daily weekly monthly"`
	Until   *time.Time `json:"until,omitempty"`
}

// CreateTaskRequest is the body for POST /api/tasks.
type CreateTaskRequest struct {
	Title       string         `json:"title" validate:"required,max=500"`
	Description string         `json:"description" validate:"max=2000"`
	Priority    string         `json:"priority" validate:"omitempty,oneof=high medium low"`
	Tags        []string       `json:"tags"`
	DueAt       *time.Time     `json:"due_at"`
	RemindAt    *time.Time     `json:"remind_at"`
	Recurrence  *RecurrenceDTO `json:"recurrence" validate:"omitempty"`
}

// UpdateTaskRequest is the body for PUT /api/tasks/{id}. Version is the
// version the client last read. Absent fields are left unchanged; the
// clear_* flags reset optional fields.
type UpdateTaskRequest struct {
	Version         int64          `json:"version" validate:"required,gt=0"`
	Title           *string        `json:"title" validate:"omitempty,max=500"`
	Description     *string        `json:"description" validate:"omitempty,max=2000"`
	Priority        *string        `json:"priority" validate:"omitempty,oneof=high medium low"`
	Tags            *[]string      `json:"tags"`
	DueAt           *time.Time     `json:"due_at"`
	ClearDueAt      bool           `json:"clear_due_at"`
	RemindAt        *time.Time     `json:"remind_at"`
	ClearRemindAt   bool           `json:"clear_remind_at"`
	Recurrence      *RecurrenceDTO `json:"recurrence" validate:"omitempty"`
	ClearRecurrence bool           `json:"clear_recurrence"`
}

// CompleteTaskRequest is the body for POST /api/tasks/{id}/complete.
type CompleteTaskRequest struct {
	Version int64 `json:"version" validate:"required,gt=0"`
}

// TagsRequest is the body for POST and DELETE /api/tasks/{id}/tags.
type TagsRequest struct {
	Version int64    `json:"version" validate:"required,gt=0"`
	Tags    []string `json:"tags" validate:"required,min=1"`
}

// TaskResponse is the wire form of a task.
type TaskResponse struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	Priority    string         `json:"priority"`
	Tags        []string       `json:"tags"`
	DueAt       *time.Time     `json:"due_at,omitempty"`
	RemindAt    *time.Time     `json:"remind_at,omitempty"`
	Recurrence  *RecurrenceDTO `json:"recurrence,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Version     int64          `json:"version"`

	// AlreadyCompleted marks the idempotent outcome of completing a task
	// that was already done.
	AlreadyCompleted bool `json:"already_completed,omitempty"`
}

// TaskListResponse is the paginated task listing.
type TaskListResponse struct {
	Tasks    []TaskResponse `json:"tasks"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// AuditEntryResponse is the wire form of an audit entry.
type AuditEntryResponse struct {
	ID        string        `json:"id"`
	TaskID    string        `json:"task_id"`
	Action    string        `json:"action"`
	Snapshot  *TaskResponse `json:"snapshot,omitempty"`
	Changed   []string      `json:"changed,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// AuditListResponse is the paginated audit trail.
type AuditListResponse struct {
	Entries  []AuditEntryResponse `json:"entries"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// ChatRequest is the body for POST /api/chat.
type ChatRequest struct {
	Text string `json:"text" validate:"required,min=1"`
}

// ChatResponse carries either the executed command's result or a
// clarification question.
type ChatResponse struct {
	Result        any    `json:"result,omitempty"`
	Clarification string `json:"clarification,omitempty"`
}

func taskToResponse(task *domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:          task.ID.String(),
		Title:       task.Title,
		Description: task.Description,
		Status:      string(task.Status),
		Priority:    string(task.Priority),
		Tags:        task.Tags,
		DueAt:       task.DueAt,
		RemindAt:    task.RemindAt,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
		CompletedAt: task.CompletedAt,
		Version:     task.Version,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if task.Recurrence != nil {
		resp.Recurrence = &RecurrenceDTO{
			Pattern: string(task.Recurrence.Pattern),
			Until:   task.Recurrence.Until,
		}
	}
	return resp
}

func tasksToResponses(tasks []*domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, taskToResponse(task))
	}
	return out
}

func recurrenceFromDTO(dto *RecurrenceDTO) *domain.Recurrence {
	if dto == nil {
		return nil
	}
	return &domain.Recurrence{
		Pattern: domain.RecurrencePattern(dto.Pattern),
		Until:   dto.Until,
	}
}

func entryToResponse(entry *domain.AuditEntry) AuditEntryResponse {
	resp := AuditEntryResponse{
		ID:        entry.ID.String(),
		TaskID:    entry.TaskID.String(),
		Action:    string(entry.Action),
		Changed:   entry.Changed,
		Timestamp: entry.Timestamp,
	}
	if entry.Snapshot != nil {
		snapshot := taskToResponse(entry.Snapshot)
		resp.Snapshot = &snapshot
	}
	return resp
}
