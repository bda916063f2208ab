// Package notify pushes per-user change messages to browsers over WebSocket.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/gorilla/websocket"

	"rentmap.hu/internal/metrics"
)

const (
	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub tracks open connections grouped by user id.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub builds a hub accepting upgrades from the given origins; "*" allows any.
func NewHub(logger *slog.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger.With(slog.String("component", "notify_hub")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

func (h *Hub) String() string { return "notify-hub" }

// ServeWS upgrades the request and attaches the connection to userID. On failure the
// upgrader has already answered the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := newClient(h, conn, userID)
	h.register(c)
	c.start()
	return nil
}

// PublishToUser queues a message on every connection of userID. A connection whose
// buffer is full misses the message.
func (h *Hub) PublishToUser(userID, msgType string, data any) {
	msg := Message{Type: msgType, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		if c.enqueue(msg) {
			metrics.WSMessagesSent.WithLabelValues(msgType).Inc()
		} else {
			metrics.WSMessagesDropped.Inc()
			h.logger.Warn("dropping message for slow client",
				slog.String("user_id", userID),
				slog.String("type", msgType))
		}
	}
}

// ClientCount returns the number of open connections of userID.
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Serve blocks until ctx ends, then closes every connection.
func (h *Hub) Serve(ctx context.Context) error {
	<-ctx.Done()

	h.mu.Lock()
	closed := 0
	for userID, set := range h.clients {
		for c := range set {
			c.closeSend()
			closed++
		}
		delete(h.clients, userID)
	}
	h.mu.Unlock()

	metrics.WSConnections.Set(0)
	h.logger.Info("notify hub stopped", slog.Int("closed_clients", closed))
	return ctx.Err()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	h.logger.Debug("websocket client connected", slog.String("user_id", c.userID))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	set := h.clients[c.userID]
	_, ok := set[c]
	if ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
		c.closeSend()
	}
	h.mu.Unlock()

	if ok {
		metrics.WSConnections.Dec()
		h.logger.Debug("websocket client disconnected", slog.String("user_id", c.userID))
	}
}
