// Package audit records an immutable trail of task lifecycle transitions.
//
// The recorder is a lifecycle-event consumer deduplicated by event ID, so
// redelivered events never produce duplicate trail entries.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/events"
	"github.com/phrazzld/taskflow-api/internal/platform/bus"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// Recorder consumes lifecycle events and appends audit entries.
type Recorder struct {
	entries store.AuditStore
	dedup   store.DedupStore
	logger  *slog.Logger
}

// NewRecorder creates an audit Recorder.
func NewRecorder(entries store.AuditStore, dedup store.DedupStore, logger *slog.Logger) (*Recorder, error) {
	if entries == nil {
		return nil, errors.New("audit store is required")
	}
	if dedup == nil {
		return nil, errors.New("dedup store is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Recorder{
		entries: entries,
		dedup:   dedup,
		logger:  logger.With(slog.String("component", "audit_recorder")),
	}, nil
}

// HandleEvent processes one lifecycle delivery. Returning an error requests
// redelivery.
func (r *Recorder) HandleEvent(ctx context.Context, d bus.Delivery) error {
	ev, err := events.DecodeLifecycleEvent(d.Payload)
	if err != nil {
		r.logger.ErrorContext(ctx, "dropping malformed lifecycle event",
			slog.String("error", err.Error()))
		return nil
	}

	seen, err := r.dedup.Seen(ctx, store.DedupAudit, ev.ID.String())
	if err != nil {
		return fmt.Errorf("checking audit dedup: %w", err)
	}
	if seen {
		return nil
	}

	entry, err := r.buildEntry(ctx, ev)
	if err != nil {
		return err
	}
	if err := r.entries.Append(ctx, entry); err != nil {
		// Entry IDs are derived from the event ID, so a duplicate means a
		// prior delivery already recorded this transition.
		if !errors.Is(err, store.ErrDuplicateID) {
			return fmt.Errorf("appending audit entry: %w", err)
		}
	}
	if err := r.dedup.Mark(ctx, store.DedupAudit, ev.ID.String()); err != nil {
		// Append is idempotent on entry ID, so a redelivery after a lost
		// mark is absorbed by the store.
		r.logger.WarnContext(ctx, "recording audit dedup key failed",
			slog.String("event_id", ev.ID.String()),
			slog.String("error", err.Error()))
	}

	r.logger.DebugContext(ctx, "audit entry recorded",
		slog.String("task_id", ev.TaskID.String()),
		slog.String("action", string(entry.Action)))
	return nil
}

func (r *Recorder) buildEntry(ctx context.Context, ev *events.LifecycleEvent) (*domain.AuditEntry, error) {
	entry := &domain.AuditEntry{
		ID:            auditEntryID(ev.ID),
		TaskID:        ev.TaskID,
		OwnerID:       ev.OwnerID,
		Action:        actionForKind(ev.Kind),
		Snapshot:      ev.Task,
		Timestamp:     ev.ProducedAt,
		SourceEventID: ev.ID,
	}

	// Updates carry the list of fields that changed against the previous
	// recorded snapshot.
	if ev.Kind == events.KindUpdated || ev.Kind == events.KindCompleted {
		prev, err := r.entries.LastSnapshot(ctx, ev.TaskID)
		if err != nil {
			return nil, fmt.Errorf("loading previous snapshot: %w", err)
		}
		entry.Changed = domain.DiffTasks(prev, ev.Task)
	}
	return entry, nil
}

// Query returns the owner's audit trail plus the total match count.
func (r *Recorder) Query(ctx context.Context, ownerID string, q store.AuditQuery) ([]*domain.AuditEntry, int, error) {
	return r.entries.Query(ctx, ownerID, q)
}

// auditEntryID derives a stable entry ID from the source event ID, so a
// redelivered event maps to the same entry.
func auditEntryID(eventID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("audit:"+eventID.String()))
}

func actionForKind(kind events.Kind) domain.AuditAction {
	switch kind {
	case events.KindCreated:
		return domain.AuditCreated
	case events.KindUpdated:
		return domain.AuditUpdated
	case events.KindCompleted:
		return domain.AuditCompleted
	case events.KindDeleted:
		return domain.AuditDeleted
	default:
		return domain.AuditAction(kind)
	}
}
