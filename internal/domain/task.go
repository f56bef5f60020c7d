package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Field length limits for task attributes.
const (
	MaxTitleLength       = 500
	MaxDescriptionLength = 2000
)

// Status represents a task's completion state. Tasks are never un-completed:
// the only transition is pending -> completed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a defined status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

// Priority represents a task's priority level.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a defined priority.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Task represents a todo item owned by a single user. It is the unit of
// consistency for the whole system: every mutation goes through the task
// store, bumps Version, and produces exactly one lifecycle event.
type Task struct {
	ID          uuid.UUID   `json:"id"`
	OwnerID     string      `json:"owner_id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Status      Status      `json:"status"`
	Priority    Priority    `json:"priority"`
	Tags        []string    `json:"tags"`
	DueAt       *time.Time  `json:"due_at,omitempty"`
	RemindAt    *time.Time  `json:"remind_at,omitempty"`
	Recurrence  *Recurrence `json:"recurrence,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`

	// Version increments on every successful mutation and is the optimistic
	// concurrency token: a mutation must present the version it read and is
	// rejected on mismatch. It is also the per-task event ordering key.
	Version int64 `json:"version"`
}

// TaskSpec holds the caller-supplied attributes for creating a task.
type TaskSpec struct {
	Title       string
	Description string
	Priority    Priority
	Tags        []string
	DueAt       *time.Time
	RemindAt    *time.Time
	Recurrence  *Recurrence
}

// NewTask creates a pending task at version 1 from the given spec.
// Returns a validation error if the spec violates any task invariant.
func NewTask(ownerID string, spec TaskSpec) (*Task, error) {
	priority := spec.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	tags := spec.Tags
	if tags == nil {
		tags = []string{}
	}

	now := time.Now().UTC()
	task := &Task{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       spec.Title,
		Description: spec.Description,
		Status:      StatusPending,
		Priority:    priority,
		Tags:        dedupeTags(tags),
		DueAt:       spec.DueAt,
		RemindAt:    spec.RemindAt,
		Recurrence:  spec.Recurrence,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks all task invariants. Returns the first violated invariant's
// error, wrapped in ErrValidation via errors.Is semantics.
func (t *Task) Validate() error {
	if t.OwnerID == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrOwnerIDEmpty)
	}
	if t.Title == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrTitleEmpty)
	}
	if len(t.Title) > MaxTitleLength {
		return fmt.Errorf("%w: %w", ErrValidation, ErrTitleTooLong)
	}
	if len(t.Description) > MaxDescriptionLength {
		return fmt.Errorf("%w: %w", ErrValidation, ErrDescriptionTooLong)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidStatus)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidPriority)
	}
	if t.RemindAt != nil && t.DueAt != nil && t.RemindAt.After(*t.DueAt) {
		return fmt.Errorf("%w: %w", ErrValidation, ErrReminderAfterDue)
	}
	if t.Recurrence != nil {
		if err := t.Recurrence.Validate(); err != nil {
			return err
		}
		// A recurrence rule needs a due date to advance from. This is
		// enforced at creation so the recurrence engine never has to deal
		// with malformed rules at completion time.
		if t.DueAt == nil {
			return fmt.Errorf("%w: %w: recurring task requires a due date", ErrValidation, ErrInvalidRecurrence)
		}
	}
	return nil
}

// MarkCompleted transitions the task from pending to completed, setting
// CompletedAt exactly once. Returns ErrTaskCompleted if the task is already
// completed; completed tasks are terminal.
func (t *Task) MarkCompleted(at time.Time) error {
	if t.Status == StatusCompleted {
		return ErrTaskCompleted
	}
	t.Status = StatusCompleted
	completedAt := at.UTC()
	t.CompletedAt = &completedAt
	t.UpdatedAt = completedAt
	return nil
}

// IsRecurring reports whether the task carries a recurrence rule.
func (t *Task) IsRecurring() bool {
	return t.Recurrence != nil
}

// Clone returns a deep copy of the task, suitable for use as an immutable
// event snapshot.
func (t *Task) Clone() *Task {
	c := *t
	c.Tags = append([]string(nil), t.Tags...)
	if t.DueAt != nil {
		due := *t.DueAt
		c.DueAt = &due
	}
	if t.RemindAt != nil {
		remind := *t.RemindAt
		c.RemindAt = &remind
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	if t.Recurrence != nil {
		rec := *t.Recurrence
		if t.Recurrence.Until != nil {
			until := *t.Recurrence.Until
			rec.Until = &until
		}
		c.Recurrence = &rec
	}
	return &c
}

// AddTags adds the given tags to the task, ignoring duplicates.
func (t *Task) AddTags(tags ...string) {
	t.Tags = dedupeTags(append(t.Tags, tags...))
}

// RemoveTags removes the given tags from the task; unknown tags are ignored.
func (t *Task) RemoveTags(tags ...string) {
	drop := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		drop[tag] = struct{}{}
	}
	kept := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		if _, ok := drop[tag]; !ok {
			kept = append(kept, tag)
		}
	}
	t.Tags = kept
}

// dedupeTags removes duplicate tags preserving first-seen order.
func dedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
