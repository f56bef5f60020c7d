// Package reminder keeps the external timer service in sync with task
// reminder fields and turns timer fires into reminder events.
//
// The timer is at-least-once and cancellation is best-effort, so the fire
// path never trusts the job payload alone: it re-fetches the task and only
// emits an event when the task is still pending with the same remind_at.
package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/events"
	"github.com/phrazzld/taskflow-api/internal/platform/timer"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// ReminderPublisher emits reminder-due events onto the bus.
type ReminderPublisher interface {
	PublishReminder(ctx context.Context, ev *events.ReminderEvent) uuid.UUID
}

// jobPayload is the opaque data attached to a timer job. remind_at is
// carried so a stale fire can be detected without relying on timer ordering.
type jobPayload struct {
	TaskID   uuid.UUID `json:"task_id"`
	OwnerID  string    `json:"owner_id"`
	RemindAt time.Time `json:"remind_at"`
}

// Scheduler syncs reminder jobs with the timer service and handles fires.
type Scheduler struct {
	timer     timer.Scheduler
	tasks     store.TaskStore
	publisher ReminderPublisher
	logger    *slog.Logger
}

// NewScheduler creates a reminder Scheduler.
func NewScheduler(t timer.Scheduler, tasks store.TaskStore, publisher ReminderPublisher, logger *slog.Logger) (*Scheduler, error) {
	if t == nil {
		return nil, errors.New("timer scheduler is required")
	}
	if tasks == nil {
		return nil, errors.New("task store is required")
	}
	if publisher == nil {
		return nil, errors.New("reminder publisher is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Scheduler{
		timer:     t,
		tasks:     tasks,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "reminder_scheduler")),
	}, nil
}

// jobID derives the timer job identifier for a task. One job per task:
// re-scheduling replaces the previous job.
func jobID(ownerID string, taskID uuid.UUID) string {
	return fmt.Sprintf("reminder:%s:%s", ownerID, taskID)
}

// Sync reconciles the timer with the task's reminder state: schedules a job
// when remind_at is set on a pending task, cancels any job otherwise.
func (s *Scheduler) Sync(ctx context.Context, task *domain.Task) error {
	id := jobID(task.OwnerID, task.ID)

	if task.RemindAt == nil || task.Status != domain.StatusPending {
		if err := s.timer.Cancel(ctx, id); err != nil {
			return fmt.Errorf("cancelling reminder job: %w", err)
		}
		return nil
	}

	payload, err := json.Marshal(jobPayload{
		TaskID:   task.ID,
		OwnerID:  task.OwnerID,
		RemindAt: task.RemindAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding reminder payload: %w", err)
	}
	if err := s.timer.Schedule(ctx, id, *task.RemindAt, payload); err != nil {
		return fmt.Errorf("scheduling reminder job: %w", err)
	}

	s.logger.DebugContext(ctx, "reminder scheduled",
		slog.String("task_id", task.ID.String()),
		slog.Time("remind_at", *task.RemindAt))
	return nil
}

// Cancel removes the task's reminder job. Cancelling a task without a job is
// a no-op.
func (s *Scheduler) Cancel(ctx context.Context, ownerID string, taskID uuid.UUID) error {
	return s.timer.Cancel(ctx, jobID(ownerID, taskID))
}

// HandleFire is the timer fire callback. It re-validates the task before
// emitting: a fire for a deleted, completed, or re-scheduled task is dropped
// silently.
func (s *Scheduler) HandleFire(ctx context.Context, id string, payload []byte) {
	var job jobPayload
	if err := json.Unmarshal(payload, &job); err != nil {
		s.logger.ErrorContext(ctx, "malformed reminder payload",
			slog.String("job_id", id),
			slog.String("error", err.Error()))
		return
	}

	task, err := s.tasks.Get(ctx, job.OwnerID, job.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			// Deleted since scheduling; stale fire.
			return
		}
		s.logger.ErrorContext(ctx, "reminder fire lookup failed",
			slog.String("task_id", job.TaskID.String()),
			slog.String("error", err.Error()))
		return
	}

	if task.Status != domain.StatusPending {
		return
	}
	if task.RemindAt == nil || !task.RemindAt.Equal(job.RemindAt) {
		// Reminder cleared or moved since this job was scheduled.
		return
	}

	evID := s.publisher.PublishReminder(ctx, events.NewReminderEvent(task))
	s.logger.InfoContext(ctx, "reminder fired",
		slog.String("task_id", task.ID.String()),
		slog.String("event_id", evID.String()))
}
