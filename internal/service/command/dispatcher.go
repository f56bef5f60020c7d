package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/service"
)

// Result is the outcome of dispatching one command. Exactly one of Task or
// Tasks is populated for operations that return task state; Deleted marks a
// successful deletion.
type Result struct {
	Task    *domain.Task   `json:"task,omitempty"`
	Tasks   []*domain.Task `json:"tasks,omitempty"`
	Total   int            `json:"total,omitempty"`
	Deleted bool           `json:"deleted,omitempty"`

	// Message carries human-readable context, e.g. the idempotent
	// already-completed outcome.
	Message string `json:"message,omitempty"`
}

// Dispatcher executes commands against the task service. It is exhaustive
// over the Command variants: an unknown variant is a programming error.
type Dispatcher struct {
	tasks  *service.TaskService
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(tasks *service.TaskService, logger *slog.Logger) (*Dispatcher, error) {
	if tasks == nil {
		return nil, errors.New("task service is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Dispatcher{
		tasks:  tasks,
		logger: logger.With(slog.String("component", "command_dispatcher")),
	}, nil
}

// Dispatch executes cmd on behalf of the owner.
func (d *Dispatcher) Dispatch(ctx context.Context, ownerID string, cmd Command) (*Result, error) {
	switch c := cmd.(type) {
	case CreateCommand:
		task, err := d.tasks.Create(ctx, ownerID, domain.TaskSpec{
			Title:       c.Title,
			Description: c.Description,
			Priority:    c.Priority,
			Tags:        c.Tags,
			DueAt:       c.DueAt,
			RemindAt:    c.RemindAt,
			Recurrence:  c.Recurrence,
		})
		if err != nil {
			return nil, err
		}
		return &Result{Task: task}, nil

	case UpdateCommand:
		task, err := d.tasks.Update(ctx, ownerID, c.TaskID, c.Version, c.Patch)
		if err != nil {
			return nil, err
		}
		return &Result{Task: task}, nil

	case CompleteCommand:
		task, err := d.tasks.Complete(ctx, ownerID, c.TaskID, c.Version)
		if errors.Is(err, service.ErrAlreadyCompleted) {
			return &Result{Task: task, Message: "task was already completed"}, nil
		}
		if err != nil {
			return nil, err
		}
		return &Result{Task: task}, nil

	case DeleteCommand:
		if err := d.tasks.Delete(ctx, ownerID, c.TaskID, c.Version); err != nil {
			return nil, err
		}
		return &Result{Deleted: true}, nil

	case ListCommand:
		tasks, total, err := d.tasks.List(ctx, ownerID, c.Query)
		if err != nil {
			return nil, err
		}
		return &Result{Tasks: tasks, Total: total}, nil

	case SearchCommand:
		tasks, total, err := d.tasks.Search(ctx, ownerID, c.Term, c.Page, c.PageSize)
		if err != nil {
			return nil, err
		}
		return &Result{Tasks: tasks, Total: total}, nil

	case AddTagsCommand:
		task, err := d.tasks.AddTags(ctx, ownerID, c.TaskID, c.Version, c.Tags)
		if err != nil {
			return nil, err
		}
		return &Result{Task: task}, nil

	case RemoveTagsCommand:
		task, err := d.tasks.RemoveTags(ctx, ownerID, c.TaskID, c.Version, c.Tags)
		if err != nil {
			return nil, err
		}
		return &Result{Task: task}, nil

	default:
		// The Command interface is sealed; reaching here means a variant
		// was added without a dispatch arm.
		return nil, fmt.Errorf("unhandled command type %T", cmd)
	}
}
