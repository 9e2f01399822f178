package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"greendrake/chat/internal/api/middleware"
	"greendrake/chat/internal/apperr"
	"greendrake/chat/internal/auth"
	"greendrake/chat/internal/config"
	"greendrake/chat/internal/logging"
	"greendrake/chat/internal/metrics"
	"greendrake/chat/internal/realtime"
	"greendrake/chat/internal/services"
	"greendrake/chat/internal/utils"
)

// SocketHandler upgrades /v1/ws and dispatches inbound realtime events to the
// same ChatService the REST routes use.
type SocketHandler struct {
	hub      *realtime.Hub
	emitter  realtime.Emitter
	chat     services.IChatService
	gateway  *auth.Gateway
	limiter  *middleware.SendLimiter
	upgrader websocket.Upgrader
}

// NewSocketHandler wires the socket adapter. emitter is the hub itself, or the
// Redis relay when several instances share rooms.
func NewSocketHandler(cfg *config.Config, hub *realtime.Hub, emitter realtime.Emitter, chat services.IChatService, gw *auth.Gateway, limiter *middleware.SendLimiter) *SocketHandler {
	return &SocketHandler{
		hub:     hub,
		emitter: emitter,
		chat:    chat,
		gateway: gw,
		limiter: limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return middleware.OriginAllowed(cfg.CorsAllowedOrigin, r)
			},
		},
	}
}

// ServeWS handles GET /v1/ws. Unauthenticated handshakes get a 401 and are never upgraded.
func (h *SocketHandler) ServeWS(c *gin.Context) {
	userID, err := h.gateway.Resolve(c.Request, auth.WithQueryToken())
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		logging.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := realtime.NewClient(h.hub, conn, userID)
	logging.Debug().Str("conn_id", client.ID()).Str("user_id", userID.String()).Msg("websocket connected")
	client.Serve(c.Request.Context(), h)
	logging.Debug().Str("conn_id", client.ID()).Msg("websocket disconnected")
}

// HandleEvent implements realtime.EventHandler. Failures are logged and counted;
// the connection stays open and the client gets no error frame.
func (h *SocketHandler) HandleEvent(ctx context.Context, c *realtime.Client, event string, data json.RawMessage) {
	var err error
	switch event {
	case realtime.EventThreadJoin:
		err = h.joinThread(ctx, c, data)
	case realtime.EventThreadLeave:
		err = h.leaveThread(c, data)
	case realtime.EventTypingStart, realtime.EventTypingStop:
		err = h.typing(c, event, data)
	case realtime.EventMessageSend:
		err = h.sendMessage(ctx, c, data)
	case realtime.EventMessageDelivered:
		err = h.markDelivered(ctx, c, data)
	default:
		err = apperr.InvalidArg("unknown event")
	}

	if err != nil {
		metrics.WSHandlerErrors.WithLabelValues(eventLabel(event)).Inc()
		logging.Warn().Err(err).
			Str("event", event).
			Str("conn_id", c.ID()).
			Str("user_id", c.UserID().String()).
			Msg("realtime event failed")
	}
}

// eventLabel keeps unknown event names out of metric labels.
func eventLabel(event string) string {
	switch event {
	case realtime.EventThreadJoin, realtime.EventThreadLeave, realtime.EventTypingStart,
		realtime.EventTypingStop, realtime.EventMessageSend, realtime.EventMessageDelivered:
		return event
	}
	return "unknown"
}

func parseThreadRef(data json.RawMessage) (utils.SixID, error) {
	var ref realtime.ThreadRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return utils.SixID{}, apperr.InvalidArg("invalid payload")
	}
	id, err := utils.ParseSixID(ref.ThreadID)
	if err != nil {
		return utils.SixID{}, apperr.InvalidArg("invalid threadId")
	}
	return id, nil
}

func (h *SocketHandler) joinThread(ctx context.Context, c *realtime.Client, data json.RawMessage) error {
	threadID, err := parseThreadRef(data)
	if err != nil {
		return err
	}
	if _, err := h.chat.GetThread(ctx, threadID, c.UserID()); err != nil {
		return err
	}
	h.hub.Join(c, realtime.ThreadRoom(threadID))
	return nil
}

func (h *SocketHandler) leaveThread(c *realtime.Client, data json.RawMessage) error {
	threadID, err := parseThreadRef(data)
	if err != nil {
		return err
	}
	h.hub.Leave(c, realtime.ThreadRoom(threadID))
	return nil
}

// typing is relayed only from connections that joined the thread room, and never
// echoed back to the typing connection.
func (h *SocketHandler) typing(c *realtime.Client, event string, data json.RawMessage) error {
	threadID, err := parseThreadRef(data)
	if err != nil {
		return err
	}
	room := realtime.ThreadRoom(threadID)
	if !h.hub.InRoom(c, room) {
		return apperr.Forbidden("join the thread before sending typing events")
	}
	h.emitter.Emit([]string{room}, event, realtime.TypingPayload{ThreadID: threadID, UserID: c.UserID()}, c.ID())
	return nil
}

func (h *SocketHandler) sendMessage(ctx context.Context, c *realtime.Client, data json.RawMessage) error {
	var payload realtime.SendPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return apperr.InvalidArg("invalid payload")
	}
	threadID, err := utils.ParseSixID(payload.ThreadID)
	if err != nil {
		return apperr.InvalidArg("invalid threadId")
	}
	if h.limiter != nil && !h.limiter.Allow(c.UserID()) {
		return apperr.RateLimited("rate limit exceeded")
	}

	if _, err := h.chat.SendMessage(ctx, threadID, c.UserID(), services.SendMessageInput{
		Text:        payload.Text,
		Attachments: payload.Attachments,
	}); err != nil {
		return err
	}
	metrics.MessagesSent.WithLabelValues(metrics.TransportSocket).Inc()
	return nil
}

func (h *SocketHandler) markDelivered(ctx context.Context, c *realtime.Client, data json.RawMessage) error {
	threadID, err := parseThreadRef(data)
	if err != nil {
		return err
	}
	return h.chat.MarkDelivered(ctx, threadID, c.UserID())
}
