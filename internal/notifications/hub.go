package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"chatapp/internal/middleware"
	"chatapp/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
	// Max posts a single connection may watch
	maxWatchesPerClient = 20
)

var (
	ErrServerFull      = errors.New("server connection limit reached")
	ErrUserFull        = errors.New("user connection limit reached")
	ErrTooManyWatches  = errors.New("watched post limit reached")
	errUnknownCommand  = errors.New("unknown command")
	errMalformedPostID = errors.New("post_id is required")
)

// Hub maps users to their live websocket clients and posts to the clients
// watching their comment threads.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	watchers   map[uint]map[*Client]struct{}
	totalConns int
}

// NewHub creates a new Hub instance for managing notifications.
func NewHub() *Hub {
	return &Hub{
		conns:    make(map[uint]map[*Client]struct{}),
		watchers: make(map[uint]map[*Client]struct{}),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "notification hub" }

// Register a connection for a given userID. Returns the Client or error if limits exceeded.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.totalConns >= maxTotalConns {
		return nil, ErrServerFull
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		return nil, ErrUserFull
	}

	client := NewClient(h, conn, userID)
	client.IncomingHandler = h.handleIncoming

	m[client] = struct{}{}
	h.totalConns++
	observability.WebSocketConnectionsTotal.Inc()

	return client, nil
}

// UnregisterClient removes client and all of its watches. Calling it twice
// is harmless.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[client.UserID]
	if !ok {
		return
	}
	if _, exists := m[client]; !exists {
		return
	}
	delete(m, client)
	if len(m) == 0 {
		delete(h.conns, client.UserID)
	}
	h.totalConns--
	observability.WebSocketConnectionsTotal.Dec()

	for postID := range client.watching {
		h.dropWatchLocked(client, postID)
	}
}

// Watch subscribes client to comment events of postID.
func (h *Hub) Watch(client *Client, postID uint) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := client.watching[postID]; ok {
		return nil
	}
	if len(client.watching) >= maxWatchesPerClient {
		return ErrTooManyWatches
	}
	w, ok := h.watchers[postID]
	if !ok {
		w = make(map[*Client]struct{})
		h.watchers[postID] = w
	}
	w[client] = struct{}{}
	client.watching[postID] = struct{}{}
	return nil
}

// Unwatch reverses Watch.
func (h *Hub) Unwatch(client *Client, postID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropWatchLocked(client, postID)
}

func (h *Hub) dropWatchLocked(client *Client, postID uint) {
	delete(client.watching, postID)
	if w, ok := h.watchers[postID]; ok {
		delete(w, client)
		if len(w) == 0 {
			delete(h.watchers, postID)
		}
	}
}

// Broadcast sends message to all connections for userID
func (h *Hub) Broadcast(userID uint, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.conns[userID]; ok {
		data := []byte(message)
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// BroadcastPost sends message to every connection watching postID.
func (h *Hub) BroadcastPost(postID uint, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.watchers[postID]; ok {
		data := []byte(message)
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// IsOnline reports whether a user currently has at least one active websocket connection.
func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.conns[userID]
	return ok && len(clients) > 0
}

// command is a client-to-server websocket message.
type command struct {
	Type   string `json:"type"`
	PostID uint   `json:"post_id"`
}

func (h *Hub) handleIncoming(c *Client, raw []byte) {
	if err := h.apply(c, raw); err != nil {
		reply, _ := json.Marshal(Event{Type: "error", Payload: map[string]string{"message": err.Error()}})
		c.TrySend(reply)
	}
}

func (h *Hub) apply(c *Client, raw []byte) error {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return fmt.Errorf("malformed command: %w", err)
	}
	switch cmd.Type {
	case "watch_post":
		if cmd.PostID == 0 {
			return errMalformedPostID
		}
		return h.Watch(c, cmd.PostID)
	case "unwatch_post":
		if cmd.PostID == 0 {
			return errMalformedPostID
		}
		h.Unwatch(c, cmd.PostID)
		return nil
	case "ping":
		c.TrySend([]byte(`{"type":"pong"}`))
		return nil
	default:
		return fmt.Errorf("%w %q", errUnknownCommand, cmd.Type)
	}
}

// StartWiring connects the Notifier to this hub: it subscribes to the Redis
// patterns and forwards messages to the matching connections.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, h.route)
}

func (h *Hub) route(channel, payload string) {
	var id uint
	switch {
	case strings.HasPrefix(channel, userChannelPrefix):
		if _, err := fmt.Sscanf(channel, userChannelPrefix+"%d", &id); err == nil {
			h.Broadcast(id, payload)
			return
		}
	case strings.HasPrefix(channel, postChannelPrefix):
		if _, err := fmt.Sscanf(channel, postChannelPrefix+"%d", &id); err == nil {
			h.BroadcastPost(id, payload)
			return
		}
	}
	middleware.Logger.Warn("invalid notification channel", slog.String("channel", channel))
}

// Shutdown gracefully closes all websocket connections
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, userConns := range h.conns {
		for client := range userConns {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				middleware.Logger.Debug("failed to write close message",
					slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
			}
			_ = client.Conn.Close()
		}
	}
	observability.WebSocketConnectionsTotal.Sub(float64(h.totalConns))
	h.conns = make(map[uint]map[*Client]struct{})
	h.watchers = make(map[uint]map[*Client]struct{})
	h.totalConns = 0

	return nil
}
