package notifications

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/linesmerrill/chama-disputes-api/api"
	"github.com/linesmerrill/chama-disputes-api/disputes"
	"github.com/linesmerrill/chama-disputes-api/models"
	templates "github.com/linesmerrill/chama-disputes-api/templates/html"
)

const writeWait = 10 * time.Second

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Hub keeps one live websocket per user and pushes dispute notifications to
// the connected recipients. Recipients that are offline are skipped.
type Hub struct {
	clients map[string]*client
	mutex   sync.Mutex
}

// NewHub returns an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// ServeHTTP upgrades the request of an authenticated user and keeps the
// connection registered until it closes
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade failed", "userId", actor.UserID, "error", err)
		return
	}

	c := h.register(actor.UserID, conn)
	zap.S().Debugw("user connected to /ws/notifications", "userId", actor.UserID)

	// reads only detect the close; clients never send anything we act on
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	h.unregister(actor.UserID, c)
	zap.S().Debugw("user disconnected from /ws/notifications", "userId", actor.UserID)
}

func (h *Hub) register(userID string, conn *websocket.Conn) *client {
	c := &client{conn: conn}
	h.mutex.Lock()
	old := h.clients[userID]
	h.clients[userID] = c
	h.mutex.Unlock()
	if old != nil {
		old.conn.Close()
	}
	return c
}

// unregister drops c only if it is still the user's current connection
func (h *Hub) unregister(userID string, c *client) {
	h.mutex.Lock()
	if h.clients[userID] == c {
		delete(h.clients, userID)
	}
	h.mutex.Unlock()
	c.conn.Close()
}

// Connected reports whether the user has a live connection
func (h *Hub) Connected(userID string) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	_, ok := h.clients[userID]
	return ok
}

// SendToUser writes one event to the user's connection. It reports false when
// the user is not connected. A failed write drops the connection.
func (h *Hub) SendToUser(userID, event string, data interface{}) (bool, error) {
	h.mutex.Lock()
	c, exists := h.clients[userID]
	h.mutex.Unlock()
	if !exists {
		return false, nil
	}

	err := c.writeJSON(map[string]interface{}{
		"event": event,
		"data":  data,
	})
	if err != nil {
		h.unregister(userID, c)
		return false, err
	}
	return true, nil
}

// Name implements Channel
func (h *Hub) Name() string { return "websocket" }

// Send implements Channel. Only write failures are reported.
func (h *Hub) Send(ctx context.Context, n disputes.Notification, _ []models.UserContact) error {
	title, body := templates.DisputeMessage(n.Template, n.Payload)
	data := map[string]interface{}{
		"type":    n.Template,
		"title":   title,
		"body":    body,
		"payload": n.Payload,
	}

	var failed int
	var lastErr error
	for _, userID := range n.Recipients {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := h.SendToUser(userID, "dispute_notification", data); err != nil {
			failed++
			lastErr = err
		}
	}
	if failed > 0 {
		zap.S().Warnw("websocket notification writes failed", "failed", failed, "template", n.Template)
		return lastErr
	}
	return nil
}
