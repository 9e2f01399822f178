// Package store persists threads and messages. It owns the uniqueness, ordering and
// monotonic-status rules; callers never read-modify-write a counter or a status.
package store

import (
	"context"
	"errors"
	"time"

	"greendrake/chat/internal/models"
	"greendrake/chat/internal/utils"
)

// ErrNotFound is returned when a thread or message does not exist.
var ErrNotFound = errors.New("store: not found")

const (
	threadsCollection  = "threads"
	messagesCollection = "messages"
)

// ThreadStore persists threads and their per-participant counters.
type ThreadStore interface {
	// FindOrCreateThread returns the thread for the triple, creating it if needed.
	// created is true only for the call that inserted it.
	FindOrCreateThread(ctx context.Context, listingID, buyerID, sellerID utils.SixID) (thread *models.Thread, created bool, err error)
	FindThreadByID(ctx context.Context, threadID utils.SixID) (*models.Thread, error)
	// FindThreadsForUser returns threads where userID has role, newest activity first, plus the total.
	FindThreadsForUser(ctx context.Context, userID utils.SixID, role models.ThreadRole, skip, limit int) ([]models.Thread, int64, error)
	// RecordMessage increments the recipient's counter and advances the last-message fields.
	// lastMessageAt never moves backwards.
	RecordMessage(ctx context.Context, threadID utils.SixID, recipient models.ThreadRole, at time.Time, snippet string) error
	ResetUnread(ctx context.Context, threadID utils.SixID, role models.ThreadRole) error
	SumUnread(ctx context.Context, userID utils.SixID) (int64, error)
}

// MessageStore persists messages.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
	FindMessageByID(ctx context.Context, messageID utils.SixID) (*models.Message, error)
	// FindMessagesBefore pages a thread newest first, skipping messages viewerID deleted.
	FindMessagesBefore(ctx context.Context, threadID, viewerID utils.SixID, before *Cursor, limit int) ([]models.Message, error)
	// MarkMessages raises every message from senderID in the thread to status.
	// Messages already at or above status are untouched.
	MarkMessages(ctx context.Context, threadID, senderID utils.SixID, status models.MessageStatus) (int64, error)
	AddDeletedFor(ctx context.Context, messageID, userID utils.SixID) error
}

// Store is the full persistence surface used by the chat service.
type Store interface {
	ThreadStore
	MessageStore
}

func unreadField(role models.ThreadRole) string {
	if role == models.RoleSeller {
		return "seller_unread"
	}
	return "buyer_unread"
}
