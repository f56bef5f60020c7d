// Package command defines the structured commands produced by the
// natural-language interpreter and the dispatcher that executes them.
//
// Command is a closed tagged-variant type: one variant per supported task
// operation, dispatched exhaustively. The core never sees raw user text;
// interpretation happens at the boundary.
package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/service"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// Command is the closed set of operations the interpreter may produce.
// isCommand is unexported so no variant can be added outside this package.
type Command interface {
	isCommand()
}

// Clarification is returned instead of a Command when the interpreter needs
// more information from the user.
type Clarification struct {
	Question string `json:"question"`
}

// CreateCommand creates a new task.
type CreateCommand struct {
	Title       string
	Description string
	Priority    domain.Priority
	Tags        []string
	DueAt       *time.Time
	RemindAt    *time.Time
	Recurrence  *domain.Recurrence
}

// UpdateCommand partially updates an existing task.
type UpdateCommand struct {
	TaskID  uuid.UUID
	Version int64
	Patch   service.TaskPatch
}

// CompleteCommand marks a task completed.
type CompleteCommand struct {
	TaskID  uuid.UUID
	Version int64
}

// DeleteCommand removes a task.
type DeleteCommand struct {
	TaskID  uuid.UUID
	Version int64
}

// ListCommand lists tasks with optional filters.
type ListCommand struct {
	Query store.TaskQuery
}

// SearchCommand free-text searches tasks.
type SearchCommand struct {
	Term     string
	Page     int
	PageSize int
}

// AddTagsCommand adds tags to a task.
type AddTagsCommand struct {
	TaskID  uuid.UUID
	Version int64
	Tags    []string
}

// RemoveTagsCommand removes tags from a task.
type RemoveTagsCommand struct {
	TaskID  uuid.UUID
	Version int64
	Tags    []string
}

func (CreateCommand) isCommand()     {}
func (UpdateCommand) isCommand()     {}
func (CompleteCommand) isCommand()   {}
func (DeleteCommand) isCommand()     {}
func (ListCommand) isCommand()       {}
func (SearchCommand) isCommand()     {}
func (AddTagsCommand) isCommand()    {}
func (RemoveTagsCommand) isCommand() {}

// Interpreter turns free text into a Command or a Clarification. Exactly one
// of the two return values is non-nil on success.
type Interpreter interface {
	Interpret(ctx context.Context, ownerID, text string) (Command, *Clarification, error)
}
