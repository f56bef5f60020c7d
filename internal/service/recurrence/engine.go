// Package recurrence regenerates the next occurrence of a recurring task
// when its current occurrence is completed.
//
// The engine is a lifecycle-event consumer. Delivery is at-least-once, so
// every completion is deduplicated by (task ID, version) before a successor
// task is created; the dedup key is recorded only after the successor exists,
// trading a rare duplicate for never losing an occurrence.
package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/events"
	"github.com/phrazzld/taskflow-api/internal/platform/bus"
	"github.com/phrazzld/taskflow-api/internal/service"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// TaskCreator creates the successor task. Satisfied by service.TaskService.
type TaskCreator interface {
	Create(ctx context.Context, ownerID string, spec domain.TaskSpec) (*domain.Task, error)
}

// Engine consumes completed-task events and creates follow-up occurrences.
type Engine struct {
	creator TaskCreator
	dedup   store.DedupStore
	logger  *slog.Logger
}

// NewEngine creates a recurrence Engine.
func NewEngine(creator TaskCreator, dedup store.DedupStore, logger *slog.Logger) (*Engine, error) {
	if creator == nil {
		return nil, errors.New("task creator is required")
	}
	if dedup == nil {
		return nil, errors.New("dedup store is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Engine{
		creator: creator,
		dedup:   dedup,
		logger:  logger.With(slog.String("component", "recurrence_engine")),
	}, nil
}

// HandleEvent processes one lifecycle delivery. Returning an error requests
// redelivery.
func (e *Engine) HandleEvent(ctx context.Context, d bus.Delivery) error {
	ev, err := events.DecodeLifecycleEvent(d.Payload)
	if err != nil {
		// Malformed payloads never become valid; drop rather than redeliver.
		e.logger.ErrorContext(ctx, "dropping malformed lifecycle event",
			slog.String("error", err.Error()))
		return nil
	}

	if ev.Kind != events.KindCompleted {
		return nil
	}
	task := ev.Task
	if task == nil || task.Recurrence == nil || task.DueAt == nil {
		return nil
	}

	dedupKey := fmt.Sprintf("%s:%d", task.ID, ev.Version)
	seen, err := e.dedup.Seen(ctx, store.DedupRecurrence, dedupKey)
	if err != nil {
		return fmt.Errorf("checking recurrence dedup: %w", err)
	}
	if seen {
		return nil
	}

	nextDue := domain.Advance(*task.DueAt, task.Recurrence.Pattern)
	if task.Recurrence.Until != nil && nextDue.After(*task.Recurrence.Until) {
		e.logger.InfoContext(ctx, "recurrence series ended",
			slog.String("task_id", task.ID.String()))
		e.markHandled(ctx, dedupKey)
		return nil
	}

	spec := domain.TaskSpec{
		Title:       task.Title,
		Description: task.Description,
		Priority:    task.Priority,
		Tags:        task.Tags,
		DueAt:       &nextDue,
		Recurrence:  cloneRecurrence(task.Recurrence),
	}
	if task.RemindAt != nil {
		// Preserve the remind-before-due offset of the completed occurrence.
		offset := task.DueAt.Sub(*task.RemindAt)
		nextRemind := nextDue.Add(-offset)
		spec.RemindAt = &nextRemind
	}

	next, err := e.creator.Create(ctx, task.OwnerID, spec)
	if err != nil {
		if errors.Is(err, service.ErrReminderUnavailable) && next != nil {
			// The successor exists; only its reminder job is missing. Don't
			// redeliver, or we'd create a duplicate occurrence.
			e.logger.WarnContext(ctx, "successor created without reminder job",
				slog.String("task_id", next.ID.String()))
			e.markHandled(ctx, dedupKey)
			return nil
		}
		return fmt.Errorf("creating next occurrence: %w", err)
	}

	e.logger.InfoContext(ctx, "next occurrence created",
		slog.String("completed_task_id", task.ID.String()),
		slog.String("next_task_id", next.ID.String()),
		slog.Time("next_due_at", nextDue))
	e.markHandled(ctx, dedupKey)
	return nil
}

func (e *Engine) markHandled(ctx context.Context, key string) {
	if err := e.dedup.Mark(ctx, store.DedupRecurrence, key); err != nil {
		// Redelivery will re-check and find the successor already created
		// only via this key, so losing the mark risks a duplicate; surface
		// loudly.
		e.logger.ErrorContext(ctx, "recording recurrence dedup key failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

func cloneRecurrence(r *domain.Recurrence) *domain.Recurrence {
	if r == nil {
		return nil
	}
	c := *r
	if r.Until != nil {
		u := *r.Until
		c.Until = &u
	}
	return &c
}
