package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mlundqvist/matechat-go/internal/chat"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	clientSendSize = 32
)

// wsEvent is the wire shape of one hub notification.
type wsEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	Level          string `json:"level,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Hub fans conversation notifications out to connected websocket
// clients. It implements the orchestrator's listener callbacks, so
// every view-layer event the TUI would see is also broadcast. Clients
// that cannot keep up are dropped.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local-profile server: same-origin policy adds nothing.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: map[*hubClient]struct{}{},
	}
}

// ServeWS upgrades the request and keeps the connection registered
// until it drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &hubClient{conn: conn, send: make(chan []byte, clientSendSize)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards inbound frames; the feed is one-way. Its real job
// is detecting the close.
func (h *Hub) readPump(c *hubClient) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.drop(c)
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(c *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// Close disconnects every client.
func (h *Hub) Close(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.drop(c)
	}
}

func (h *Hub) broadcast(ev wsEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode hub event", "error", err)
		return
	}

	h.mu.Lock()
	var slow []*hubClient
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client")
		h.drop(c)
	}
}

// ConversationCreated implements chat.Listener.
func (h *Hub) ConversationCreated(id string) {
	h.broadcast(wsEvent{Type: "conversation-created", ConversationID: id})
}

// ConversationUpdated implements chat.Listener.
func (h *Hub) ConversationUpdated() {
	h.broadcast(wsEvent{Type: "conversation-updated"})
}

// Notify implements chat.Listener.
func (h *Hub) Notify(level chat.NotifyLevel, message string) {
	name := "info"
	if level == chat.NotifyError {
		name = "error"
	}
	h.broadcast(wsEvent{Type: "notice", Level: name, Message: message})
}
