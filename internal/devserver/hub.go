package devserver

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/tutorlink/tutorlink-client/internal/realtime"
)

const clientBuffer = 64

// Client is one connected realtime consumer.
type Client struct {
	ID     string
	UserID string
	// Events is drained by the websocket write loop.
	Events chan realtime.Envelope

	rooms map[string]struct{}
}

// Hub fans push events out to connected clients, either per user or per
// chat room. A user may hold several connections at once.
type Hub struct {
	log *zerolog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewHub builds an empty hub.
func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		log:     logger,
		clients: make(map[string]*Client),
	}
}

// Register adds a connection for a user and returns its client handle.
func (h *Hub) Register(id, userID string) *Client {
	c := &Client{
		ID:     id,
		UserID: userID,
		Events: make(chan realtime.Envelope, clientBuffer),
		rooms:  make(map[string]struct{}),
	}
	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	h.log.Debug().Str("client_id", id).Str("user_id", userID).Msg("client registered")
	return c
}

// Unregister removes a connection and closes its event stream.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	h.mu.Unlock()
	close(c.Events)
	h.log.Debug().Str("client_id", c.ID).Msg("client unregistered")
}

// JoinRoom subscribes a connection to a chat room's events.
func (h *Hub) JoinRoom(c *Client, chatID string) {
	h.mu.Lock()
	c.rooms[chatID] = struct{}{}
	h.mu.Unlock()
}

// LeaveRoom unsubscribes a connection from a chat room.
func (h *Hub) LeaveRoom(c *Client, chatID string) {
	h.mu.Lock()
	delete(c.rooms, chatID)
	h.mu.Unlock()
}

// EmitToUsers pushes an event to every connection of the listed users.
func (h *Hub) EmitToUsers(event string, data any, userIDs ...string) {
	env, err := realtime.NewEnvelope(event, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encode event")
		return
	}
	targets := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		targets[id] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		if targets[c.UserID] {
			h.sendLocked(c, env)
		}
	}
}

// EmitToRoom pushes an event to every connection joined to a chat room.
func (h *Hub) EmitToRoom(chatID, event string, data any) {
	env, err := realtime.NewEnvelope(event, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		if _, ok := c.rooms[chatID]; ok {
			h.sendLocked(c, env)
		}
	}
}

// EmitToAll pushes an event to every connected client.
func (h *Hub) EmitToAll(event string, data any) {
	env, err := realtime.NewEnvelope(event, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.sendLocked(c, env)
	}
}

// sendLocked delivers without blocking; a slow consumer loses the event and
// recovers through its reconnect resync.
func (h *Hub) sendLocked(c *Client, env realtime.Envelope) {
	select {
	case c.Events <- env:
	default:
		h.log.Warn().Str("client_id", c.ID).Str("event", env.Event).Msg("client buffer full, dropping event")
	}
}
