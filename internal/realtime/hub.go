// Package realtime fans chat events out to WebSocket connections grouped in rooms.
// The hub is a broadcast cache only: it holds no state that the store does not.
package realtime

import (
	"context"
	"sort"
	"sync"

	"greendrake/chat/internal/logging"
	"greendrake/chat/internal/metrics"
)

const broadcastBuffer = 256

type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Emitter publishes an event to every connection in any of rooms, once per connection.
// except, when non-empty, is a connection id that must not receive it.
type Emitter interface {
	Emit(rooms []string, event string, data interface{}, except string)
}

type emission struct {
	rooms  []string
	event  string
	frame  []byte
	except string
}

// Hub tracks connections and room membership. Delivery runs on a single goroutine
// started by RunWithContext.
type Hub struct {
	clients   map[*Client]bool
	rooms     map[string]map[*Client]bool
	broadcast chan emission
	mu        sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*Client]bool),
		rooms:     make(map[string]map[*Client]bool),
		broadcast: make(chan emission, broadcastBuffer),
	}
}

// Register adds a connection. It must happen before Join.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	logging.Debug().Str("conn_id", c.id).Str("user_id", c.userID.String()).Int("total_clients", total).Msg("websocket client connected")
}

// Unregister removes a connection from the hub and all its rooms. Idempotent.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	total := len(h.clients)
	h.mu.Unlock()

	if removed {
		logging.Debug().Str("conn_id", c.id).Int("total_clients", total).Msg("websocket client disconnected")
	}
}

// removeLocked must be called with mu held.
func (h *Hub) removeLocked(c *Client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	for room := range c.rooms {
		if members := h.rooms[room]; members != nil {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	c.rooms = nil
	delete(h.clients, c)
	close(c.send)
	metrics.WSConnections.Dec()
	return true
}

// Join adds c to room. It reports false if c is no longer registered.
func (h *Hub) Join(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[c] = true
	if c.rooms == nil {
		c.rooms = make(map[string]bool)
	}
	c.rooms[room] = true
	return true
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members := h.rooms[room]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// InRoom reports whether c has joined room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[room][c]
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Emit queues an event for delivery. It never blocks: when the queue is full the
// event is dropped, and clients recover state over REST.
func (h *Hub) Emit(rooms []string, event string, data interface{}, except string) {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		logging.Error().Err(err).Str("event", event).Msg("failed to encode realtime frame")
		return
	}

	select {
	case h.broadcast <- emission{rooms: rooms, event: event, frame: frame, except: except}:
	default:
		metrics.WSBroadcastDropped.Inc()
		logging.Warn().Str("event", event).Msg("broadcast channel full, dropping event")
	}
}

// RunWithContext delivers queued events until ctx is done, then closes every client.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Shutdown wins over pending deliveries.
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case e := <-h.broadcast:
			h.deliver(e)
		}
	}
}

func (h *Hub) deliver(e emission) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A connection in several target rooms still gets the event once.
	seen := make(map[*Client]bool)
	var targets []*Client
	for _, room := range e.rooms {
		for c := range h.rooms[room] {
			if seen[c] || (e.except != "" && c.id == e.except) {
				continue
			}
			seen[c] = true
			targets = append(targets, c)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })

	for _, c := range targets {
		select {
		case c.send <- e.frame:
		default:
			// Slow consumer: drop the connection rather than stall everyone else.
			metrics.WSBroadcastDropped.Inc()
			logging.Warn().Str("conn_id", c.id).Str("event", e.event).Msg("client send buffer full, disconnecting")
			h.removeLocked(c)
		}
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	for _, c := range clients {
		h.removeLocked(c)
	}
	h.mu.Unlock()

	logging.Info().
		Str("component", "realtime-hub").
		Str("reason", string(shutdownReason(ctx))).
		Int("clients_closed", len(clients)).
		Msg("realtime hub stopped")
}

func shutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}
