package realtime

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"greendrake/chat/internal/logging"
	"greendrake/chat/internal/metrics"
	"greendrake/chat/internal/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// EventHandler processes one inbound client event. Errors are the handler's to log;
// they never reach the client.
type EventHandler interface {
	HandleEvent(ctx context.Context, c *Client, event string, data json.RawMessage)
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	id     string
	userID utils.SixID
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	rooms  map[string]bool // guarded by hub.mu
}

// NewClient creates a Client for an authenticated connection.
func NewClient(hub *Hub, conn *websocket.Conn, userID utils.SixID) *Client {
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
}

// ID is the connection id, unique per process.
func (c *Client) ID() string { return c.id }

// UserID is the authenticated user behind the connection.
func (c *Client) UserID() utils.SixID { return c.userID }

// Serve registers the client, joins its personal room and pumps until the
// connection closes. It blocks.
func (c *Client) Serve(ctx context.Context, handler EventHandler) {
	c.hub.Register(c)
	c.hub.Join(c, UserRoom(c.userID))

	go c.writePump()
	c.readPump(ctx, handler)
}

// readPump pumps frames from the websocket connection to the handler.
func (c *Client) readPump(ctx context.Context, handler EventHandler) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug().Err(err).Str("conn_id", c.id).Msg("unexpected websocket close")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			metrics.WSHandlerErrors.WithLabelValues("malformed").Inc()
			logging.Warn().Str("conn_id", c.id).Msg("dropping malformed realtime frame")
			continue
		}
		metrics.WSEventsReceived.WithLabelValues(frame.Event).Inc()

		if frame.Event == EventPing {
			c.SendEvent(EventPong, nil)
			continue
		}
		handler.HandleEvent(ctx, c, frame.Event, frame.Data)
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logging.Debug().Err(err).Str("conn_id", c.id).Msg("failed to write realtime frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendEvent writes directly to this connection, bypassing rooms. Best-effort.
func (c *Client) SendEvent(event string, data interface{}) {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}
