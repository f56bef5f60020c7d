// Package service implements the task lifecycle operations: create, read,
// update, complete, delete, and the query surface. Every mutation is committed
// to the task store first, then announced on the event bus; downstream
// consumers (audit, recurrence, fanout) observe the system exclusively through
// those events.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/events"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// LifecyclePublisher emits task lifecycle events. Publication never blocks a
// mutation: implementations queue and retry internally.
type LifecyclePublisher interface {
	PublishLifecycle(ctx context.Context, ev *events.LifecycleEvent) uuid.UUID
}

// ReminderScheduler keeps the external timer in sync with a task's reminder
// fields. Sync replaces any existing job for the task; Cancel is best-effort
// and idempotent.
type ReminderScheduler interface {
	Sync(ctx context.Context, task *domain.Task) error
	Cancel(ctx context.Context, ownerID string, taskID uuid.UUID) error
}

// TaskPatch describes a partial update. Nil pointer fields are left
// unchanged; the Clear flags reset optional fields to absent and take
// precedence over the corresponding pointer.
type TaskPatch struct {
	Title           *string
	Description     *string
	Priority        *domain.Priority
	Tags            *[]string
	DueAt           *time.Time
	ClearDueAt      bool
	RemindAt        *time.Time
	ClearRemindAt   bool
	Recurrence      *domain.Recurrence
	ClearRecurrence bool
}

// TaskService coordinates task mutations across the store, the event bus and
// the reminder scheduler.
type TaskService struct {
	tasks     store.TaskStore
	publisher LifecyclePublisher
	reminders ReminderScheduler
	logger    *slog.Logger
}

// NewTaskService creates a TaskService. All dependencies are required.
func NewTaskService(tasks store.TaskStore, publisher LifecyclePublisher, reminders ReminderScheduler, logger *slog.Logger) (*TaskService, error) {
	if tasks == nil {
		return nil, errors.New("task store is required")
	}
	if publisher == nil {
		return nil, errors.New("lifecycle publisher is required")
	}
	if reminders == nil {
		return nil, errors.New("reminder scheduler is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &TaskService{
		tasks:     tasks,
		publisher: publisher,
		reminders: reminders,
		logger:    logger.With(slog.String("component", "task_service")),
	}, nil
}

// Create validates the spec, persists a new task at version 1, emits a
// created event, and schedules a reminder when one is configured.
func (s *TaskService) Create(ctx context.Context, ownerID string, spec domain.TaskSpec) (*domain.Task, error) {
	task, err := domain.NewTask(ownerID, spec)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	s.publisher.PublishLifecycle(ctx, events.NewLifecycleEvent(events.KindCreated, task))
	s.logger.InfoContext(ctx, "task created",
		slog.String("task_id", task.ID.String()),
		slog.String("owner_id", task.OwnerID))

	if task.RemindAt != nil {
		if err := s.syncReminder(ctx, task); err != nil {
			return task, err
		}
	}
	return task, nil
}

// Get returns the owner's task by id.
func (s *TaskService) Get(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Task, error) {
	return s.tasks.Get(ctx, ownerID, id)
}

// List returns the owner's tasks matching the query plus the total count
// before pagination.
func (s *TaskService) List(ctx context.Context, ownerID string, q store.TaskQuery) ([]*domain.Task, int, error) {
	return s.tasks.List(ctx, ownerID, q)
}

// Search is List constrained to a free-text term over title and description.
func (s *TaskService) Search(ctx context.Context, ownerID, term string, page, pageSize int) ([]*domain.Task, int, error) {
	return s.tasks.List(ctx, ownerID, store.TaskQuery{
		Search:   term,
		Page:     page,
		PageSize: pageSize,
	})
}

// Update applies a partial update against the expected version. A stale
// version yields store.ErrVersionConflict and no state change.
func (s *TaskService) Update(ctx context.Context, ownerID string, id uuid.UUID, expectedVersion int64, patch TaskPatch) (*domain.Task, error) {
	current, err := s.tasks.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	// Completed tasks are terminal.
	if current.Status == domain.StatusCompleted {
		return nil, domain.ErrTaskCompleted
	}
	if current.Version != expectedVersion {
		return nil, store.ErrVersionConflict
	}

	next := current.Clone()
	applyPatch(next, patch)
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now().UTC()
	if err := next.Validate(); err != nil {
		return nil, err
	}

	if err := s.tasks.Update(ctx, next, expectedVersion); err != nil {
		return nil, fmt.Errorf("updating task: %w", err)
	}

	s.publisher.PublishLifecycle(ctx, events.NewLifecycleEvent(events.KindUpdated, next))
	s.logger.InfoContext(ctx, "task updated",
		slog.String("task_id", next.ID.String()),
		slog.Int64("version", next.Version))

	if reminderChanged(current, next) {
		if err := s.syncReminder(ctx, next); err != nil {
			return next, err
		}
	}
	return next, nil
}

// Complete marks the task completed. Completing an already-completed task
// returns the current task alongside ErrAlreadyCompleted and emits nothing.
func (s *TaskService) Complete(ctx context.Context, ownerID string, id uuid.UUID, expectedVersion int64) (*domain.Task, error) {
	current, err := s.tasks.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.StatusCompleted {
		return current, ErrAlreadyCompleted
	}
	if current.Version != expectedVersion {
		return nil, store.ErrVersionConflict
	}

	next := current.Clone()
	if err := next.MarkCompleted(time.Now().UTC()); err != nil {
		return nil, err
	}
	next.Version = expectedVersion + 1

	if err := s.tasks.Update(ctx, next, expectedVersion); err != nil {
		return nil, fmt.Errorf("completing task: %w", err)
	}

	s.publisher.PublishLifecycle(ctx, events.NewLifecycleEvent(events.KindCompleted, next))
	s.logger.InfoContext(ctx, "task completed",
		slog.String("task_id", next.ID.String()),
		slog.Int64("version", next.Version))

	s.cancelReminder(ctx, ownerID, id)
	return next, nil
}

// Delete removes the task against the expected version and emits a deleted
// event carrying the final snapshot.
func (s *TaskService) Delete(ctx context.Context, ownerID string, id uuid.UUID, expectedVersion int64) error {
	current, err := s.tasks.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return store.ErrVersionConflict
	}

	if err := s.tasks.Delete(ctx, ownerID, id, expectedVersion); err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}

	// The deleted event carries the pre-delete snapshot so consumers can
	// record what was removed.
	s.publisher.PublishLifecycle(ctx, events.NewLifecycleEvent(events.KindDeleted, current))
	s.logger.InfoContext(ctx, "task deleted",
		slog.String("task_id", id.String()),
		slog.String("owner_id", ownerID))

	s.cancelReminder(ctx, ownerID, id)
	return nil
}

// AddTags merges tags into the task's tag set.
func (s *TaskService) AddTags(ctx context.Context, ownerID string, id uuid.UUID, expectedVersion int64, tags []string) (*domain.Task, error) {
	return s.mutateTags(ctx, ownerID, id, expectedVersion, func(t *domain.Task) { t.AddTags(tags...) })
}

// RemoveTags removes tags from the task's tag set. Tags not present are
// ignored.
func (s *TaskService) RemoveTags(ctx context.Context, ownerID string, id uuid.UUID, expectedVersion int64, tags []string) (*domain.Task, error) {
	return s.mutateTags(ctx, ownerID, id, expectedVersion, func(t *domain.Task) { t.RemoveTags(tags...) })
}

func (s *TaskService) mutateTags(ctx context.Context, ownerID string, id uuid.UUID, expectedVersion int64, apply func(*domain.Task)) (*domain.Task, error) {
	current, err := s.tasks.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.StatusCompleted {
		return nil, domain.ErrTaskCompleted
	}
	if current.Version != expectedVersion {
		return nil, store.ErrVersionConflict
	}

	next := current.Clone()
	apply(next)
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now().UTC()

	if err := s.tasks.Update(ctx, next, expectedVersion); err != nil {
		return nil, fmt.Errorf("updating task tags: %w", err)
	}

	s.publisher.PublishLifecycle(ctx, events.NewLifecycleEvent(events.KindUpdated, next))
	return next, nil
}

// syncReminder pushes the task's reminder state to the external timer after
// the mutation has been committed. Failures are surfaced to the caller as
// retryable so a reminder is never silently dropped.
func (s *TaskService) syncReminder(ctx context.Context, task *domain.Task) error {
	if err := s.reminders.Sync(ctx, task); err != nil {
		s.logger.ErrorContext(ctx, "reminder sync failed",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", ErrReminderUnavailable, err)
	}
	return nil
}

func (s *TaskService) cancelReminder(ctx context.Context, ownerID string, taskID uuid.UUID) {
	if err := s.reminders.Cancel(ctx, ownerID, taskID); err != nil {
		// A stale fire is harmless: HandleFire re-validates against the
		// current task state before emitting anything.
		s.logger.WarnContext(ctx, "reminder cancel failed",
			slog.String("task_id", taskID.String()),
			slog.String("error", err.Error()))
	}
}

func applyPatch(task *domain.Task, patch TaskPatch) {
	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.Tags != nil {
		task.Tags = nil
		task.AddTags(*patch.Tags...)
	}
	switch {
	case patch.ClearDueAt:
		task.DueAt = nil
	case patch.DueAt != nil:
		t := patch.DueAt.UTC()
		task.DueAt = &t
	}
	switch {
	case patch.ClearRemindAt:
		task.RemindAt = nil
	case patch.RemindAt != nil:
		t := patch.RemindAt.UTC()
		task.RemindAt = &t
	}
	switch {
	case patch.ClearRecurrence:
		task.Recurrence = nil
	case patch.Recurrence != nil:
		r := *patch.Recurrence
		task.Recurrence = &r
	}
}

func reminderChanged(prev, next *domain.Task) bool {
	return !timePtrEqual(prev.RemindAt, next.RemindAt) || !timePtrEqual(prev.DueAt, next.DueAt)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
