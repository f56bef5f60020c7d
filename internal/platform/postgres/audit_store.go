package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// AuditStore implements store.AuditStore on PostgreSQL. The table is
// append-only; no update or delete statements exist.
type AuditStore struct {
	db store.DBTX
}

// NewAuditStore creates an AuditStore.
func NewAuditStore(db store.DBTX) *AuditStore {
	return &AuditStore{db: db}
}

var _ store.AuditStore = (*AuditStore)(nil)

// Append implements store.AuditStore.
func (s *AuditStore) Append(ctx context.Context, entry *domain.AuditEntry) error {
	snapshot, changed, err := encodeEntryJSON(entry)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_entries
			(id, task_id, owner_id, action, snapshot, changed, recorded_at, source_event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.ID, entry.TaskID, entry.OwnerID, entry.Action,
		snapshot, changed, entry.Timestamp, entry.SourceEventID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: audit entry %s", store.ErrDuplicateID, entry.ID)
		}
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// Query implements store.AuditStore.
func (s *AuditStore) Query(ctx context.Context, ownerID string, query store.AuditQuery) ([]*domain.AuditEntry, int, error) {
	query.Normalize()

	var (
		conds = []string{"owner_id = $1"}
		args  = []any{ownerID}
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if query.TaskID != nil {
		conds = append(conds, "task_id = "+arg(*query.TaskID))
	}
	if query.From != nil {
		conds = append(conds, "recorded_at >= "+arg(*query.From))
	}
	if query.To != nil {
		conds = append(conds, "recorded_at <= "+arg(*query.To))
	}
	where := strings.Join(conds, " AND ")

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_entries WHERE "+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}

	offset := (query.Page - 1) * query.PageSize
	listQuery := fmt.Sprintf(`
		SELECT id, task_id, owner_id, action, snapshot, changed, recorded_at, source_event_id
		FROM audit_entries
		WHERE %s
		ORDER BY recorded_at ASC, id ASC
		LIMIT %d OFFSET %d
	`, where, query.PageSize, offset)

	rows, err := s.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var (
			entry    domain.AuditEntry
			snapshot []byte
			changed  []byte
		)
		err := rows.Scan(
			&entry.ID, &entry.TaskID, &entry.OwnerID, &entry.Action,
			&snapshot, &changed, &entry.Timestamp, &entry.SourceEventID,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning audit entry: %w", err)
		}
		if len(snapshot) > 0 {
			entry.Snapshot = &domain.Task{}
			if err := json.Unmarshal(snapshot, entry.Snapshot); err != nil {
				return nil, 0, fmt.Errorf("decoding snapshot: %w", err)
			}
		}
		if len(changed) > 0 {
			if err := json.Unmarshal(changed, &entry.Changed); err != nil {
				return nil, 0, fmt.Errorf("decoding changed fields: %w", err)
			}
		}
		entry.Timestamp = entry.Timestamp.UTC()
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, total, nil
}

// LastSnapshot implements store.AuditStore.
func (s *AuditStore) LastSnapshot(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	query := `
		SELECT snapshot FROM audit_entries
		WHERE task_id = $1 AND snapshot IS NOT NULL
		ORDER BY (snapshot->>'version')::bigint DESC
		LIMIT 1
	`
	var raw []byte
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading last snapshot: %w", err)
	}

	task := &domain.Task{}
	if err := json.Unmarshal(raw, task); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return task, nil
}

func encodeEntryJSON(entry *domain.AuditEntry) (snapshot, changed any, err error) {
	if entry.Snapshot != nil {
		raw, err := json.Marshal(entry.Snapshot)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding snapshot: %w", err)
		}
		snapshot = raw
	}
	if len(entry.Changed) > 0 {
		raw, err := json.Marshal(entry.Changed)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding changed fields: %w", err)
		}
		changed = raw
	}
	return snapshot, changed, nil
}
