package gemini

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/service"
	"github.com/phrazzld/taskflow-api/internal/service/command"
	"github.com/phrazzld/taskflow-api/internal/store"
)

const promptTemplate = `You are the command parser for a task manager. Convert the user's request
into exactly one JSON object and nothing else, using this schema:

{
  "action": "create" | "update" | "complete" | "delete" | "list" | "search" |
            "add_tags" | "remove_tags" | "clarify",
  "question": "...",            // clarify only: what to ask the user
  "title": "...",               // create/update
  "description": "...",         // create/update
  "priority": "high" | "medium" | "low",
  "tags": ["..."],              // create/update/add_tags/remove_tags
  "due_at": "RFC3339",          // create/update
  "remind_at": "RFC3339",       // create/update
  "clear_due_at": true,         // update only
  "clear_remind_at": true,      // update only
  "clear_recurrence": true,     // update only
  "recurrence": {"pattern": "daily"|"weekly"|"monthly", "until": "RFC3339"},
  "task_id": "uuid",            // update/complete/delete/add_tags/remove_tags
  "version": 1,                 // update/complete/delete/add_tags/remove_tags
  "query": "...",               // search term
  "status": "pending"|"completed"  // list filter
}

Omit fields that do not apply. If the request is ambiguous or references a
task you cannot identify, respond with action "clarify" and a question.

User request: %s`

func buildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, text)
}

// wireCommand is the JSON shape the model is instructed to produce.
type wireCommand struct {
	Action   string `json:"action"`
	Question string `json:"question"`

	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    string          `json:"priority"`
	Tags        []string        `json:"tags"`
	DueAt       *time.Time      `json:"due_at"`
	RemindAt    *time.Time      `json:"remind_at"`
	Recurrence  *wireRecurrence `json:"recurrence"`

	ClearDueAt      bool `json:"clear_due_at"`
	ClearRemindAt   bool `json:"clear_remind_at"`
	ClearRecurrence bool `json:"clear_recurrence"`

	TaskID  string `json:"task_id"`
	Version int64  `json:"version"`

	Query  string `json:"query"`
	Status string `json:"status"`
}

type wireRecurrence struct {
	Pattern string     `json:"pattern"`
	Until   *time.Time `json:"until"`
}

// parseCommand converts model output into a command or clarification.
func parseCommand(raw string) (command.Command, *command.Clarification, error) {
	var wire wireCommand
	if err := json.Unmarshal([]byte(extractJSON(raw)), &wire); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	switch wire.Action {
	case "clarify":
		if wire.Question == "" {
			return nil, nil, fmt.Errorf("%w: clarify without question", ErrInvalidResponse)
		}
		return nil, &command.Clarification{Question: wire.Question}, nil

	case "create":
		return command.CreateCommand{
			Title:       wire.Title,
			Description: wire.Description,
			Priority:    domain.Priority(wire.Priority),
			Tags:        wire.Tags,
			DueAt:       wire.DueAt,
			RemindAt:    wire.RemindAt,
			Recurrence:  wire.Recurrence.toDomain(),
		}, nil, nil

	case "update":
		id, err := parseTaskID(wire.TaskID)
		if err != nil {
			return nil, nil, err
		}
		patch := service.TaskPatch{
			DueAt:           wire.DueAt,
			ClearDueAt:      wire.ClearDueAt,
			RemindAt:        wire.RemindAt,
			ClearRemindAt:   wire.ClearRemindAt,
			Recurrence:      wire.Recurrence.toDomain(),
			ClearRecurrence: wire.ClearRecurrence,
		}
		if wire.Title != "" {
			patch.Title = &wire.Title
		}
		if wire.Description != "" {
			patch.Description = &wire.Description
		}
		if wire.Priority != "" {
			p := domain.Priority(wire.Priority)
			patch.Priority = &p
		}
		if wire.Tags != nil {
			patch.Tags = &wire.Tags
		}
		return command.UpdateCommand{TaskID: id, Version: wire.Version, Patch: patch}, nil, nil

	case "complete":
		id, err := parseTaskID(wire.TaskID)
		if err != nil {
			return nil, nil, err
		}
		return command.CompleteCommand{TaskID: id, Version: wire.Version}, nil, nil

	case "delete":
		id, err := parseTaskID(wire.TaskID)
		if err != nil {
			return nil, nil, err
		}
		return command.DeleteCommand{TaskID: id, Version: wire.Version}, nil, nil

	case "list":
		q := store.TaskQuery{Tags: wire.Tags}
		if wire.Status != "" {
			q.Status = domain.Status(wire.Status)
		}
		if wire.Priority != "" {
			q.Priority = domain.Priority(wire.Priority)
		}
		return command.ListCommand{Query: q}, nil, nil

	case "search":
		if wire.Query == "" {
			return nil, nil, fmt.Errorf("%w: search without query", ErrInvalidResponse)
		}
		return command.SearchCommand{Term: wire.Query}, nil, nil

	case "add_tags":
		id, err := parseTaskID(wire.TaskID)
		if err != nil {
			return nil, nil, err
		}
		return command.AddTagsCommand{TaskID: id, Version: wire.Version, Tags: wire.Tags}, nil, nil

	case "remove_tags":
		id, err := parseTaskID(wire.TaskID)
		if err != nil {
			return nil, nil, err
		}
		return command.RemoveTagsCommand{TaskID: id, Version: wire.Version, Tags: wire.Tags}, nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown action %q", ErrInvalidResponse, wire.Action)
	}
}

func parseTaskID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad task_id %q", ErrInvalidResponse, s)
	}
	return id, nil
}

func (r *wireRecurrence) toDomain() *domain.Recurrence {
	if r == nil {
		return nil
	}
	return &domain.Recurrence{
		Pattern: domain.RecurrencePattern(r.Pattern),
		Until:   r.Until,
	}
}

// extractJSON strips markdown code fences the model sometimes wraps its
// output in.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
