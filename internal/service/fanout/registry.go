// Package fanout pushes task lifecycle updates to connected websocket
// clients. Delivery is best-effort: a client that cannot be written to is
// dropped and reconnects with a fresh read of its task list.
package fanout

import (
	"log/slog"
	"sync"
)

// Conn is the write side of a client connection. Satisfied by
// *websocket.Conn from gorilla/websocket.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Registry tracks live connections grouped by owner. All methods are safe
// for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]map[Conn]struct{}
	logger *slog.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]map[Conn]struct{}),
		logger: logger.With(slog.String("component", "fanout_registry")),
	}
}

// Register adds a connection for the owner. A single owner may hold any
// number of concurrent connections; each receives every update.
func (r *Registry) Register(ownerID string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[ownerID]
	if !ok {
		set = make(map[Conn]struct{})
		r.conns[ownerID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a connection. Unregistering an unknown connection is a
// no-op.
func (r *Registry) Unregister(ownerID string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[ownerID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, ownerID)
	}
}

// Count returns the number of live connections for the owner.
func (r *Registry) Count(ownerID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[ownerID])
}

// Broadcast writes msg to every connection of the owner. Connections that
// fail the write are closed and removed; other owners' connections never see
// the message.
func (r *Registry) Broadcast(ownerID string, msg any) {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.conns[ownerID]))
	for c := range r.conns[ownerID] {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	var failed []Conn
	for _, c := range targets {
		if err := c.WriteJSON(msg); err != nil {
			r.logger.Debug("dropping unwritable connection",
				slog.String("owner_id", ownerID),
				slog.String("error", err.Error()))
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Close()
		r.Unregister(ownerID, c)
	}
}
