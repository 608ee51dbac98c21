// Package ws implements the WebSocket adapter for the live tenant event feed.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/atriumlabs/atrium/internal/middleware"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection and the identity it
// authenticated with.
type conn struct {
	ws       *websocket.Conn
	cancel   context.CancelFunc
	tenantID uuid.UUID
	admin    bool
}

// Hub manages active WebSocket connections and routes events to the tenants
// allowed to see them.
type Hub struct {
	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the request and serves the connection until the client
// disconnects. The auth middleware has already established the tenant
// context; requests without one are rejected.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"error":"authorization required"}`))
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin is checked by the CORS middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: ws, cancel: cancel, tenantID: tc.TenantID, admin: tc.IsSystemAdmin}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "tenant_id", tc.TenantID, "user_id", tc.UserID)

	defer func() {
		h.remove(c)
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}()

	// Block in the read loop: returning from the handler cancels the request
	// context and with it every pending read. Reads only consume pings and
	// detect disconnects; clients never send data frames.
	for {
		if _, _, err := ws.Read(ctx); err != nil {
			return
		}
	}
}

// Broadcast sends a message to every connected client regardless of tenant.
// Reserved for platform announcements.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		h.send(ctx, c, data)
	}
}

// BroadcastToTenant sends a message to the given tenant's connections and to
// system admin connections. Other tenants never see it.
func (h *Hub) BroadcastToTenant(ctx context.Context, tenantID uuid.UUID, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if c.admin || c.tenantID == tenantID {
			h.send(ctx, c, data)
		}
	}
}

// send writes to one connection. Callers hold the read lock, so a failed
// connection is removed on a separate goroutine.
func (h *Hub) send(ctx context.Context, c *conn, data []byte) {
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("websocket write failed", "error", err)
		go h.remove(c)
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected", "tenant_id", c.tenantID)
	}
}
