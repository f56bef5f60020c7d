package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskflow-api/internal/domain"
)

// Bus topics. Lifecycle events fan out to the recurrence engine, audit
// recorder, and real-time broadcaster; reminder events feed the
// notification path.
const (
	TopicLifecycle = "task.lifecycle"
	TopicReminders = "task.reminders"
)

// Kind identifies the task state transition an event records.
type Kind string

const (
	KindCreated   Kind = "created"
	KindUpdated   Kind = "updated"
	KindCompleted Kind = "completed"
	KindDeleted   Kind = "deleted"
)

// LifecycleEvent is the immutable record of a single task state transition.
//
// Version is the task version the event corresponds to; for a given task ID
// the bus delivers events in non-decreasing version order to every consumer
// group. For deleted events the snapshot holds the last state before removal.
type LifecycleEvent struct {
	ID         uuid.UUID    `json:"id"`
	TaskID     uuid.UUID    `json:"task_id"`
	OwnerID    string       `json:"owner_id"`
	Kind       Kind         `json:"kind"`
	Task       *domain.Task `json:"task"`
	Version    int64        `json:"version"`
	ProducedAt time.Time    `json:"produced_at"`
}

// NewLifecycleEvent builds an event from a task snapshot. The snapshot is
// deep-copied so later task mutations cannot alter the event.
func NewLifecycleEvent(kind Kind, task *domain.Task) *LifecycleEvent {
	return &LifecycleEvent{
		ID:         uuid.New(),
		TaskID:     task.ID,
		OwnerID:    task.OwnerID,
		Kind:       kind,
		Task:       task.Clone(),
		Version:    task.Version,
		ProducedAt: time.Now().UTC(),
	}
}

// DecodeLifecycleEvent unmarshals a bus payload into a LifecycleEvent.
func DecodeLifecycleEvent(payload []byte) (*LifecycleEvent, error) {
	var ev LifecycleEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode lifecycle event: %w", err)
	}
	return &ev, nil
}

// ReminderEvent is emitted when a reminder fires for a task that is still
// pending with a matching remind_at.
type ReminderEvent struct {
	ID         uuid.UUID  `json:"id"`
	TaskID     uuid.UUID  `json:"task_id"`
	OwnerID    string     `json:"owner_id"`
	Title      string     `json:"title"`
	DueAt      *time.Time `json:"due_at,omitempty"`
	RemindAt   time.Time  `json:"remind_at"`
	ProducedAt time.Time  `json:"produced_at"`
}

// NewReminderEvent builds a reminder-due event from the task's current state.
func NewReminderEvent(task *domain.Task) *ReminderEvent {
	ev := &ReminderEvent{
		ID:         uuid.New(),
		TaskID:     task.ID,
		OwnerID:    task.OwnerID,
		Title:      task.Title,
		DueAt:      task.DueAt,
		ProducedAt: time.Now().UTC(),
	}
	if task.RemindAt != nil {
		ev.RemindAt = *task.RemindAt
	}
	return ev
}

// DecodeReminderEvent unmarshals a bus payload into a ReminderEvent.
func DecodeReminderEvent(payload []byte) (*ReminderEvent, error) {
	var ev ReminderEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode reminder event: %w", err)
	}
	return &ev, nil
}
