// Package postgres implements the task, audit, and dedup stores on
// PostgreSQL. Connections use the pgx stdlib driver through database/sql;
// schema management is handled by goose migrations embedded in the binary.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// TaskStore implements store.TaskStore on PostgreSQL.
type TaskStore struct {
	db store.DBTX
}

// NewTaskStore creates a TaskStore. The caller owns the connection.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{db: db}
}

var _ store.TaskStore = (*TaskStore)(nil)

const taskColumns = `id, owner_id, title, description, status, priority, tags,
	due_at, remind_at, recurrence, created_at, updated_at, completed_at, version`

// Create implements store.TaskStore.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	tags, recurrence, err := encodeTaskJSON(task)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.ID, task.OwnerID, task.Title, task.Description,
		task.Status, task.Priority, tags,
		task.DueAt, task.RemindAt, recurrence,
		task.CreatedAt, task.UpdatedAt, task.CompletedAt, task.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: task %s", store.ErrDuplicateID, task.ID)
		}
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

// Get implements store.TaskStore.
func (s *TaskStore) Get(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND owner_id = $2`
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: task %s", store.ErrTaskNotFound, id)
		}
		return nil, fmt.Errorf("loading task: %w", err)
	}
	return task, nil
}

// Update implements store.TaskStore. The version predicate in the WHERE
// clause is the optimistic concurrency check: zero rows affected with an
// existing row means a stale version.
func (s *TaskStore) Update(ctx context.Context, task *domain.Task, expectedVersion int64) error {
	tags, recurrence, err := encodeTaskJSON(task)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET title = $1, description = $2, status = $3, priority = $4,
			tags = $5, due_at = $6, remind_at = $7, recurrence = $8,
			updated_at = $9, completed_at = $10, version = $11
		WHERE id = $12 AND owner_id = $13 AND version = $14
	`
	result, err := s.db.ExecContext(ctx, query,
		task.Title, task.Description, task.Status, task.Priority,
		tags, task.DueAt, task.RemindAt, recurrence,
		task.UpdatedAt, task.CompletedAt, task.Version,
		task.ID, task.OwnerID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	return s.checkAffected(ctx, result, task.OwnerID, task.ID)
}

// Delete implements store.TaskStore.
func (s *TaskStore) Delete(ctx context.Context, ownerID string, id uuid.UUID, expectedVersion int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1 AND owner_id = $2 AND version = $3`,
		id, ownerID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	return s.checkAffected(ctx, result, ownerID, id)
}

// checkAffected distinguishes a missing row from a stale version after a
// guarded write.
func (s *TaskStore) checkAffected(ctx context.Context, result sql.Result, ownerID string, id uuid.UUID) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1 AND owner_id = $2)`,
		id, ownerID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking task existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: task %s", store.ErrTaskNotFound, id)
	}
	return fmt.Errorf("%w: task %s", store.ErrVersionConflict, id)
}

// List implements store.TaskStore.
func (s *TaskStore) List(ctx context.Context, ownerID string, query store.TaskQuery) ([]*domain.Task, int, error) {
	query.Normalize()

	var (
		conds = []string{"owner_id = $1"}
		args  = []any{ownerID}
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if query.Status != "" {
		conds = append(conds, "status = "+arg(query.Status))
	}
	if query.Priority != "" {
		conds = append(conds, "priority = "+arg(query.Priority))
	}
	if query.DueBefore != nil {
		conds = append(conds, "due_at IS NOT NULL AND due_at <= "+arg(*query.DueBefore))
	}
	if query.DueAfter != nil {
		conds = append(conds, "due_at IS NOT NULL AND due_at >= "+arg(*query.DueAfter))
	}
	if len(query.Tags) > 0 {
		// Any-match over the jsonb tag array.
		var tagConds []string
		for _, tag := range query.Tags {
			tagConds = append(tagConds, "tags ? "+arg(tag))
		}
		conds = append(conds, "("+strings.Join(tagConds, " OR ")+")")
	}
	if query.Search != "" {
		p := arg("%" + query.Search + "%")
		conds = append(conds, "(title ILIKE "+p+" OR description ILIKE "+p+")")
	}

	where := strings.Join(conds, " AND ")

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tasks WHERE "+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting tasks: %w", err)
	}

	offset := (query.Page - 1) * query.PageSize
	listQuery := fmt.Sprintf(
		"SELECT %s FROM tasks WHERE %s ORDER BY %s LIMIT %d OFFSET %d",
		taskColumns, where, orderClause(query), query.PageSize, offset,
	)

	rows, err := s.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating tasks: %w", err)
	}
	return tasks, total, nil
}

// orderClause maps the validated sort fields to SQL. Sort inputs never reach
// the query string unmapped.
func orderClause(q store.TaskQuery) string {
	dir := "DESC"
	if q.SortOrder == store.SortAsc {
		dir = "ASC"
	}
	switch q.SortBy {
	case "due_at":
		return "due_at " + dir + " NULLS LAST, created_at DESC"
	case "priority":
		// high < medium < low in rank terms.
		return `CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END ` + dir + ", created_at DESC"
	default:
		return "created_at " + dir
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task       domain.Task
		tags       []byte
		recurrence []byte
	)
	err := row.Scan(
		&task.ID, &task.OwnerID, &task.Title, &task.Description,
		&task.Status, &task.Priority, &tags,
		&task.DueAt, &task.RemindAt, &recurrence,
		&task.CreatedAt, &task.UpdatedAt, &task.CompletedAt, &task.Version,
	)
	if err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &task.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags: %w", err)
		}
	}
	if len(recurrence) > 0 {
		task.Recurrence = &domain.Recurrence{}
		if err := json.Unmarshal(recurrence, task.Recurrence); err != nil {
			return nil, fmt.Errorf("decoding recurrence: %w", err)
		}
	}
	normalizeTaskTimes(&task)
	return &task, nil
}

// encodeTaskJSON marshals the jsonb columns. Recurrence is NULL when unset.
func encodeTaskJSON(task *domain.Task) (tags []byte, recurrence any, err error) {
	tags, err = json.Marshal(task.Tags)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding tags: %w", err)
	}
	if task.Recurrence == nil {
		return tags, nil, nil
	}
	raw, err := json.Marshal(task.Recurrence)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding recurrence: %w", err)
	}
	return tags, raw, nil
}

// normalizeTaskTimes converts scanned timestamps to UTC so values round-trip
// identically regardless of the session time zone.
func normalizeTaskTimes(task *domain.Task) {
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	for _, t := range []**time.Time{&task.DueAt, &task.RemindAt, &task.CompletedAt} {
		if *t != nil {
			utc := (**t).UTC()
			*t = &utc
		}
	}
	if task.Recurrence != nil && task.Recurrence.Until != nil {
		utc := task.Recurrence.Until.UTC()
		task.Recurrence.Until = &utc
	}
}
