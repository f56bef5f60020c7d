package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phrazzld/taskflow-api/internal/api/shared"
	"github.com/phrazzld/taskflow-api/internal/service/fanout"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WSHandler upgrades GET /ws connections and attaches them to the fanout
// registry for the authenticated owner.
type WSHandler struct {
	registry *fanout.Registry
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(registry *fanout.Registry, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With(slog.String("component", "ws_handler")),
	}
}

// Attach handles GET /ws.
func (h *WSHandler) Attach(w http.ResponseWriter, r *http.Request) {
	ownerID := shared.GetOwnerID(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.DebugContext(r.Context(), "websocket upgrade failed",
			slog.String("error", err.Error()))
		return
	}

	wrapped := &wsConn{conn: conn}
	h.registry.Register(ownerID, wrapped)
	h.logger.InfoContext(r.Context(), "websocket attached",
		slog.String("owner_id", ownerID))

	go h.pingLoop(wrapped)
	go h.readLoop(ownerID, wrapped)
}

// readLoop drains inbound frames to process control messages and detect
// disconnects. Clients do not send application data over this channel.
func (h *WSHandler) readLoop(ownerID string, c *wsConn) {
	defer func() {
		h.registry.Unregister(ownerID, c)
		_ = c.Close()
		h.logger.Info("websocket detached", slog.String("owner_id", ownerID))
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHandler) pingLoop(c *wsConn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		if err := c.writeControl(websocket.PingMessage); err != nil {
			return
		}
	}
}

// wsConn adapts *websocket.Conn to the fanout.Conn port, serializing writes:
// gorilla connections allow only one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) writeControl(messageType int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(messageType, nil, time.Now().Add(wsWriteWait))
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
