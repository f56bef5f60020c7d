package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskflow-api/internal/domain"
)

// AuditQuery filters an owner's audit trail. Results are always ordered by
// timestamp ascending and never cross owner boundaries.
type AuditQuery struct {
	TaskID *uuid.UUID
	From   *time.Time
	To     *time.Time

	// Page is 1-based. PageSize defaults to 50 and is capped at 200.
	Page     int
	PageSize int
}

// Normalize applies the query defaults in place.
func (q *AuditQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 50
	}
	if q.PageSize > 200 {
		q.PageSize = 200
	}
}

// AuditStore persists the append-only audit trail. Entries are immutable:
// there is no update or delete.
type AuditStore interface {
	// Append adds an entry. Returns ErrDuplicateID if an entry with the
	// same ID already exists.
	Append(ctx context.Context, entry *domain.AuditEntry) error

	// Query returns the owner's entries matching the query, ordered by
	// timestamp ascending, plus the total match count before pagination.
	Query(ctx context.Context, ownerID string, query AuditQuery) ([]*domain.AuditEntry, int, error)

	// LastSnapshot returns the most recent recorded snapshot for a task,
	// or nil if the task has no audit history yet.
	LastSnapshot(ctx context.Context, taskID uuid.UUID) (*domain.Task, error)
}
