package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction is the task action recorded by an audit entry. It mirrors the
// lifecycle event kinds.
type AuditAction string

const (
	AuditCreated   AuditAction = "created"
	AuditUpdated   AuditAction = "updated"
	AuditCompleted AuditAction = "completed"
	AuditDeleted   AuditAction = "deleted"
)

// AuditEntry is an immutable record of a single task state transition.
// Entries are append-only: they are never mutated or deleted once written.
type AuditEntry struct {
	ID      uuid.UUID   `json:"id"`
	TaskID  uuid.UUID   `json:"task_id"`
	OwnerID string      `json:"owner_id"`
	Action  AuditAction `json:"action"`

	// Snapshot is the task state at the time of the action. For deletions it
	// is the last state before removal.
	Snapshot *Task `json:"snapshot,omitempty"`

	// Changed lists the fields that differ from the previous known snapshot
	// of the same task. Empty for the created action.
	Changed []string `json:"changed,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// SourceEventID is the lifecycle event this entry was derived from, used
	// to detect and drop redelivered events.
	SourceEventID uuid.UUID `json:"source_event_id"`
}

// DiffTasks returns the names of task fields whose values differ between
// prev and next. A nil prev yields an empty diff: with no prior snapshot the
// full snapshot on the entry carries the state.
func DiffTasks(prev, next *Task) []string {
	if prev == nil || next == nil {
		return nil
	}

	var changed []string
	if prev.Title != next.Title {
		changed = append(changed, "title")
	}
	if prev.Description != next.Description {
		changed = append(changed, "description")
	}
	if prev.Status != next.Status {
		changed = append(changed, "status")
	}
	if prev.Priority != next.Priority {
		changed = append(changed, "priority")
	}
	if !equalTags(prev.Tags, next.Tags) {
		changed = append(changed, "tags")
	}
	if !equalTimePtr(prev.DueAt, next.DueAt) {
		changed = append(changed, "due_at")
	}
	if !equalTimePtr(prev.RemindAt, next.RemindAt) {
		changed = append(changed, "remind_at")
	}
	if !equalRecurrence(prev.Recurrence, next.Recurrence) {
		changed = append(changed, "recurrence")
	}
	if !equalTimePtr(prev.CompletedAt, next.CompletedAt) {
		changed = append(changed, "completed_at")
	}
	return changed
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalRecurrence(a, b *Recurrence) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Pattern == b.Pattern && equalTimePtr(a.Until, b.Until)
}
