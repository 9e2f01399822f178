package models

import (
	"time"

	"greendrake/chat/internal/utils"
)

// MessageStatus only moves forward: sent, delivered, read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses; an update may only raise it.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Below lists the statuses that may transition to s.
func (s MessageStatus) Below() []MessageStatus {
	var out []MessageStatus
	for _, st := range []MessageStatus{StatusSent, StatusDelivered, StatusRead} {
		if st.Rank() < s.Rank() {
			out = append(out, st)
		}
	}
	return out
}

// AttachmentSnippet stands in for the snippet of a message with no text.
const AttachmentSnippet = "[attachment]"

// Message is a single chat message. It is never hard-deleted.
type Message struct {
	Base        `bson:",inline"`
	ThreadID    utils.SixID   `bson:"thread_id" json:"threadId"`
	SenderID    utils.SixID   `bson:"sender_id" json:"senderId"`
	Text        string        `bson:"text" json:"text"`
	Attachments []string      `bson:"attachments" json:"attachments"`
	Status      MessageStatus `bson:"status" json:"status"`
	DeletedFor  []utils.SixID `bson:"deleted_for,omitempty" json:"-"`
	CreatedAt   time.Time     `bson:"created_at" json:"createdAt"`
}

// IsDeletedFor reports whether userID soft-deleted their copy.
func (m *Message) IsDeletedFor(userID utils.SixID) bool {
	for _, id := range m.DeletedFor {
		if id == userID {
			return true
		}
	}
	return false
}
