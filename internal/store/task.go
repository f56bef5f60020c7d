package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskflow-api/internal/domain"
)

// SortOrder controls result ordering in task queries.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// TaskQuery describes a filtered, sorted, paginated task listing. Zero-value
// fields are ignored. Search matches case-insensitively against title and
// description.
type TaskQuery struct {
	Status    domain.Status
	Priority  domain.Priority
	Tags      []string
	DueBefore *time.Time
	DueAfter  *time.Time
	Search    string

	// SortBy is one of created_at, due_at, priority. Defaults to created_at.
	SortBy    string
	SortOrder SortOrder

	// Page is 1-based. PageSize defaults to 20 and is capped at 100.
	Page     int
	PageSize int
}

// Normalize applies the query defaults in place.
func (q *TaskQuery) Normalize() {
	if q.SortBy == "" {
		q.SortBy = "created_at"
	}
	if q.SortOrder == "" {
		q.SortOrder = SortDesc
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
}

// TaskStore is the authoritative record of task state. All mutations are
// guarded by per-task optimistic versioning: Update and Delete take the
// version the caller read and fail with ErrVersionConflict when stale.
type TaskStore interface {
	// Create persists a new task. The task must already be at version 1.
	// Returns ErrDuplicateID if a task with the same ID exists.
	Create(ctx context.Context, task *domain.Task) error

	// Get retrieves a task by owner and ID. Returns ErrTaskNotFound if the
	// task does not exist or belongs to a different owner.
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Task, error)

	// Update replaces the stored task if its current version equals
	// expectedVersion. The supplied task carries the new (incremented)
	// version. Returns ErrVersionConflict on a stale expectedVersion and
	// ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task, expectedVersion int64) error

	// Delete removes the task if its current version equals expectedVersion.
	Delete(ctx context.Context, ownerID string, id uuid.UUID, expectedVersion int64) error

	// List returns the owner's tasks matching the query plus the total
	// match count before pagination.
	List(ctx context.Context, ownerID string, query TaskQuery) ([]*domain.Task, int, error)
}
