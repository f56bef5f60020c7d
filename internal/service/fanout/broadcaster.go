package fanout

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/events"
	"github.com/phrazzld/taskflow-api/internal/platform/bus"
)

// recentWindow bounds the in-process redelivery filter. Fanout is
// best-effort, so a tiny in-memory window is enough; a duplicate that slips
// past it only repeats a UI refresh.
const recentWindow = 512

// Update is the message pushed to websocket clients. Task is null for
// deleted events.
type Update struct {
	Type      string       `json:"type"`
	TaskID    uuid.UUID    `json:"task_id"`
	Task      *domain.Task `json:"task"`
	Version   int64        `json:"version"`
	Timestamp time.Time    `json:"timestamp"`
}

// Broadcaster consumes lifecycle events and fans them out to the owner's
// live connections.
type Broadcaster struct {
	registry *Registry
	logger   *slog.Logger

	mu     sync.Mutex
	recent map[uuid.UUID]struct{}
	order  []uuid.UUID
}

// NewBroadcaster creates a Broadcaster writing through the registry.
func NewBroadcaster(registry *Registry, logger *slog.Logger) (*Broadcaster, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Broadcaster{
		registry: registry,
		logger:   logger.With(slog.String("component", "fanout_broadcaster")),
		recent:   make(map[uuid.UUID]struct{}),
	}, nil
}

// HandleEvent processes one lifecycle delivery. Fanout never requests
// redelivery: a missed push is recovered by the client's next read.
func (b *Broadcaster) HandleEvent(ctx context.Context, d bus.Delivery) error {
	ev, err := events.DecodeLifecycleEvent(d.Payload)
	if err != nil {
		b.logger.ErrorContext(ctx, "dropping malformed lifecycle event",
			slog.String("error", err.Error()))
		return nil
	}
	if b.seen(ev.ID) {
		return nil
	}

	update := Update{
		Type:      "task." + string(ev.Kind),
		TaskID:    ev.TaskID,
		Version:   ev.Version,
		Timestamp: ev.ProducedAt,
	}
	// Deleted events announce the removal only; the final snapshot stays in
	// the audit trail, not on the wire.
	if ev.Kind != events.KindDeleted {
		update.Task = ev.Task
	}

	b.registry.Broadcast(ev.OwnerID, update)
	return nil
}

// seen records the event ID, reporting whether it was already present.
func (b *Broadcaster) seen(id uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.recent[id]; ok {
		return true
	}
	b.recent[id] = struct{}{}
	b.order = append(b.order, id)
	if len(b.order) > recentWindow {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.recent, oldest)
	}
	return false
}
