package realtime

import (
	"github.com/goccy/go-json"

	"greendrake/chat/internal/models"
	"greendrake/chat/internal/utils"
)

// Event names, both directions.
const (
	EventThreadJoin       = "thread:join"
	EventThreadLeave      = "thread:leave"
	EventTypingStart      = "typing:start"
	EventTypingStop       = "typing:stop"
	EventMessageSend      = "message:send"
	EventMessageNew       = "message:new"
	EventMessageRead      = "message:read"
	EventMessageDelivered = "message:delivered"
	EventPing             = "ping"
	EventPong             = "pong"
)

// Frame is the wire envelope: {"event": name, "data": payload}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// EncodeFrame renders an outbound frame once so it can be shared by every recipient.
func EncodeFrame(event string, data interface{}) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: event, Data: data})
}

// UserRoom is the personal room every connection of a user joins.
func UserRoom(userID utils.SixID) string {
	return "user:" + userID.String()
}

// ThreadRoom is joined explicitly by participants viewing a thread.
func ThreadRoom(threadID utils.SixID) string {
	return "thread:" + threadID.String()
}

type MessageNewPayload struct {
	Message  *models.Message `json:"message"`
	ThreadID utils.SixID     `json:"threadId"`
}

// ReceiptPayload is sent with message:read and message:delivered.
type ReceiptPayload struct {
	ThreadID utils.SixID `json:"threadId"`
	By       utils.SixID `json:"by"`
}

type TypingPayload struct {
	ThreadID utils.SixID `json:"threadId"`
	UserID   utils.SixID `json:"userId"`
}

// ThreadRef is the inbound payload of thread and typing events. A bare id string is
// also accepted.
type ThreadRef struct {
	ThreadID string `json:"threadId"`
}

// UnmarshalJSON accepts {"threadId": "..."} or "...".
func (r *ThreadRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.ThreadID = s
		return nil
	}
	type plain ThreadRef
	return json.Unmarshal(data, (*plain)(r))
}

// SendPayload is the inbound message:send payload.
type SendPayload struct {
	ThreadID    string   `json:"threadId"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments"`
}
