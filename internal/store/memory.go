package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"greendrake/chat/internal/models"
	"greendrake/chat/internal/utils"
)

type tripleKey struct {
	listing, buyer, seller utils.SixID
}

// MemoryStore is an in-process Store for development and tests.
// Every operation runs under one mutex, which gives it the same atomicity as the
// single-document MongoDB updates.
type MemoryStore struct {
	mu       sync.Mutex
	threads  map[utils.SixID]*models.Thread
	byTriple map[tripleKey]utils.SixID
	messages map[utils.SixID]*models.Message
	byThread map[utils.SixID][]utils.SixID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads:  make(map[utils.SixID]*models.Thread),
		byTriple: make(map[tripleKey]utils.SixID),
		messages: make(map[utils.SixID]*models.Message),
		byThread: make(map[utils.SixID][]utils.SixID),
	}
}

func (s *MemoryStore) FindOrCreateThread(ctx context.Context, listingID, buyerID, sellerID utils.SixID) (*models.Thread, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tripleKey{listingID, buyerID, sellerID}
	if id, ok := s.byTriple[key]; ok {
		return copyThread(s.threads[id]), false, nil
	}

	now := models.Now()
	thread := &models.Thread{
		Base:          models.NewBase(),
		ListingID:     listingID,
		BuyerID:       buyerID,
		SellerID:      sellerID,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	for s.threads[thread.ID] != nil {
		thread.GenID()
	}
	s.threads[thread.ID] = thread
	s.byTriple[key] = thread.ID
	return copyThread(thread), true, nil
}

func (s *MemoryStore) FindThreadByID(ctx context.Context, threadID utils.SixID) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, ok := s.threads[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyThread(thread), nil
}

func (s *MemoryStore) FindThreadsForUser(ctx context.Context, userID utils.SixID, role models.ThreadRole, skip, limit int) ([]models.Thread, int64, error) {
	s.mu.Lock()
	var matched []models.Thread
	for _, t := range s.threads {
		r, ok := t.RoleOf(userID)
		if !ok || (role != models.RoleBoth && role != r) {
			continue
		}
		matched = append(matched, *copyThread(t))
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) > 0
	})

	total := int64(len(matched))
	if skip >= len(matched) {
		return []models.Thread{}, total, nil
	}
	end := skip + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[skip:end], total, nil
}

func (s *MemoryStore) RecordMessage(ctx context.Context, threadID utils.SixID, recipient models.ThreadRole, at time.Time, snippet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, ok := s.threads[threadID]
	if !ok {
		return ErrNotFound
	}
	if recipient == models.RoleSeller {
		thread.SellerUnread++
	} else {
		thread.BuyerUnread++
	}
	if !at.Before(thread.LastMessageAt) {
		thread.LastMessageAt = at
		thread.LastMessageSnippet = snippet
	}
	return nil
}

func (s *MemoryStore) ResetUnread(ctx context.Context, threadID utils.SixID, role models.ThreadRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, ok := s.threads[threadID]
	if !ok {
		return ErrNotFound
	}
	if role == models.RoleSeller {
		thread.SellerUnread = 0
	} else {
		thread.BuyerUnread = 0
	}
	return nil
}

func (s *MemoryStore) SumUnread(ctx context.Context, userID utils.SixID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, t := range s.threads {
		total += int64(t.UnreadFor(userID))
	}
	return total, nil
}

func (s *MemoryStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.GenIDIfEmpty()
	for s.messages[msg.ID] != nil {
		msg.GenID()
	}
	s.messages[msg.ID] = copyMessage(msg)
	s.byThread[msg.ThreadID] = append(s.byThread[msg.ThreadID], msg.ID)
	return nil
}

func (s *MemoryStore) FindMessageByID(ctx context.Context, messageID utils.SixID) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMessage(msg), nil
}

func (s *MemoryStore) FindMessagesBefore(ctx context.Context, threadID, viewerID utils.SixID, before *Cursor, limit int) ([]models.Message, error) {
	s.mu.Lock()
	var matched []models.Message
	for _, id := range s.byThread[threadID] {
		msg := s.messages[id]
		if msg.IsDeletedFor(viewerID) {
			continue
		}
		if before != nil && !before.Before(msg) {
			continue
		}
		matched = append(matched, *copyMessage(msg))
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) > 0
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}
	if matched == nil {
		matched = []models.Message{}
	}
	return matched, nil
}

func (s *MemoryStore) MarkMessages(ctx context.Context, threadID, senderID utils.SixID, status models.MessageStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var modified int64
	for _, id := range s.byThread[threadID] {
		msg := s.messages[id]
		if msg.SenderID != senderID || msg.Status.Rank() >= status.Rank() {
			continue
		}
		msg.Status = status
		modified++
	}
	return modified, nil
}

func (s *MemoryStore) AddDeletedFor(ctx context.Context, messageID, userID utils.SixID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return ErrNotFound
	}
	if !msg.IsDeletedFor(userID) {
		msg.DeletedFor = append(msg.DeletedFor, userID)
	}
	return nil
}

func copyThread(t *models.Thread) *models.Thread {
	c := *t
	return &c
}

func copyMessage(m *models.Message) *models.Message {
	c := *m
	c.Attachments = append([]string{}, m.Attachments...)
	c.DeletedFor = append([]utils.SixID(nil), m.DeletedFor...)
	return &c
}
