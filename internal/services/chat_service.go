package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"greendrake/chat/internal/apperr"
	"greendrake/chat/internal/config"
	"greendrake/chat/internal/logging"
	"greendrake/chat/internal/metrics"
	"greendrake/chat/internal/models"
	"greendrake/chat/internal/realtime"
	"greendrake/chat/internal/store"
	"greendrake/chat/internal/utils"
)

const snippetLength = 120

// IChatService is the messaging core. REST and realtime adapters call it identically.
type IChatService interface {
	OpenThread(ctx context.Context, listingID, callerID utils.SixID) (*models.Thread, error)
	GetThread(ctx context.Context, threadID, callerID utils.SixID) (*models.Thread, error)
	ListThreads(ctx context.Context, callerID utils.SixID, role models.ThreadRole, page, limit int) (*ThreadPage, error)
	ListMessages(ctx context.Context, threadID, callerID utils.SixID, cursor string, limit int) (*MessagePage, error)
	SendMessage(ctx context.Context, threadID, callerID utils.SixID, input SendMessageInput) (*models.Message, error)
	MarkRead(ctx context.Context, threadID, callerID utils.SixID) error
	MarkDelivered(ctx context.Context, threadID, callerID utils.SixID) error
	UnreadCount(ctx context.Context, callerID utils.SixID) (int64, error)
	DeleteMessage(ctx context.Context, threadID, messageID, callerID utils.SixID) error
}

// ReminderScheduler queues the "you have unread messages" email.
type ReminderScheduler interface {
	ScheduleUnreadReminder(ctx context.Context, threadID, recipientID utils.SixID) error
}

type SendMessageInput struct {
	Text        string   `json:"text"`
	Attachments []string `json:"attachments"`
}

type ThreadPage struct {
	Data  []models.ThreadSummary `json:"data"`
	Page  int                    `json:"page"`
	Limit int                    `json:"limit"`
	Total int64                  `json:"total"`
}

// MessagePage is one page of a thread, newest first. NextCursor is nil on the last page.
type MessagePage struct {
	Data       []models.Message `json:"data"`
	NextCursor *string          `json:"nextCursor"`
}

type chatService struct {
	store     store.Store
	listings  IListingService
	emitter   realtime.Emitter
	reminders ReminderScheduler
	validate  *validator.Validate
	cfg       *config.Config
}

// NewChatService wires the chat core. reminders may be nil.
func NewChatService(st store.Store, listings IListingService, emitter realtime.Emitter, reminders ReminderScheduler, cfg *config.Config) IChatService {
	return &chatService{
		store:     st,
		listings:  listings,
		emitter:   emitter,
		reminders: reminders,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		cfg:       cfg,
	}
}

// OpenThread finds or creates the caller's thread about a listing. The seller is the
// listing owner as of now and is never re-derived.
func (s *chatService) OpenThread(ctx context.Context, listingID, callerID utils.SixID) (*models.Thread, error) {
	listing, err := s.listings.LoadListingRef(ctx, listingID)
	if errors.Is(err, ErrListingNotFound) {
		return nil, apperr.NotFound("listing not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if listing.OwnerID == callerID {
		return nil, apperr.InvalidOp("cannot start a conversation on your own listing")
	}

	thread, created, err := s.store.FindOrCreateThread(ctx, listingID, callerID, listing.OwnerID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if created {
		metrics.ThreadsOpened.Inc()
		logging.Info().Str("thread_id", thread.ID.String()).Str("listing_id", listingID.String()).Msg("thread opened")
	}
	return thread, nil
}

// GetThread returns a thread the caller participates in.
func (s *chatService) GetThread(ctx context.Context, threadID, callerID utils.SixID) (*models.Thread, error) {
	thread, _, err := s.participantThread(ctx, threadID, callerID)
	return thread, err
}

func (s *chatService) participantThread(ctx context.Context, threadID, callerID utils.SixID) (*models.Thread, models.ThreadRole, error) {
	thread, err := s.store.FindThreadByID(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", apperr.NotFound("thread not found")
	}
	if err != nil {
		return nil, "", apperr.Internal(err)
	}
	role, ok := thread.RoleOf(callerID)
	if !ok {
		return nil, "", apperr.Forbidden("not a participant of this thread")
	}
	return thread, role, nil
}

func (s *chatService) pageSize(limit int) int {
	if limit <= 0 {
		return s.cfg.ChatDefaultPageSize
	}
	if limit > s.cfg.ChatMaxPageSize {
		return s.cfg.ChatMaxPageSize
	}
	return limit
}

// ListThreads pages the caller's threads by most recent activity, enriched with
// listing details where the listing still resolves.
func (s *chatService) ListThreads(ctx context.Context, callerID utils.SixID, role models.ThreadRole, page, limit int) (*ThreadPage, error) {
	if role == "" {
		role = models.RoleBoth
	}
	if _, ok := models.ParseThreadRole(string(role)); !ok {
		return nil, apperr.InvalidArg("role must be buyer, seller or both")
	}
	if page < 1 {
		page = 1
	}
	limit = s.pageSize(limit)

	threads, total, err := s.store.FindThreadsForUser(ctx, callerID, role, (page-1)*limit, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	listings := make(map[utils.SixID]*models.ListingRef)
	summaries := make([]models.ThreadSummary, 0, len(threads))
	for i := range threads {
		t := threads[i]
		r, _ := t.RoleOf(callerID)
		summary := models.ThreadSummary{Thread: t, Role: r, Unread: t.UnreadFor(callerID)}

		ref, seen := listings[t.ListingID]
		if !seen {
			ref, err = s.listings.FindListingRef(ctx, t.ListingID)
			if err != nil && !errors.Is(err, ErrListingNotFound) {
				logging.Warn().Err(err).Str("listing_id", t.ListingID.String()).Msg("listing lookup failed while listing threads")
			}
			listings[t.ListingID] = ref
		}
		if ref != nil {
			summary.ListingTitle = ref.Title
			summary.ListingThumbnail = ref.Thumbnail
		}
		summaries = append(summaries, summary)
	}

	return &ThreadPage{Data: summaries, Page: page, Limit: limit, Total: total}, nil
}

// ListMessages pages a thread newest first. The next cursor is only set when the
// page came back full.
func (s *chatService) ListMessages(ctx context.Context, threadID, callerID utils.SixID, cursor string, limit int) (*MessagePage, error) {
	if _, _, err := s.participantThread(ctx, threadID, callerID); err != nil {
		return nil, err
	}
	limit = s.pageSize(limit)

	var before *store.Cursor
	if cursor != "" {
		c, err := store.ParseCursor(cursor)
		if err != nil {
			return nil, apperr.InvalidArg("invalid cursor")
		}
		before = &c
	}

	messages, err := s.store.FindMessagesBefore(ctx, threadID, callerID, before, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	page := &MessagePage{Data: messages}
	if len(messages) == limit {
		next := store.CursorAfter(&messages[len(messages)-1]).String()
		page.NextCursor = &next
	}
	return page, nil
}

func (s *chatService) normalizeInput(input SendMessageInput) (string, []string, error) {
	text := strings.TrimSpace(input.Text)
	if utf8.RuneCountInString(text) > s.cfg.ChatMaxTextLength {
		return "", nil, apperr.InvalidArg(fmt.Sprintf("text exceeds %d characters", s.cfg.ChatMaxTextLength))
	}
	if len(input.Attachments) > s.cfg.ChatMaxAttachments {
		return "", nil, apperr.InvalidArg(fmt.Sprintf("at most %d attachments are allowed", s.cfg.ChatMaxAttachments))
	}

	attachments := make([]string, 0, len(input.Attachments))
	for _, a := range input.Attachments {
		a = strings.TrimSpace(a)
		if err := s.validate.Var(a, "required,http_url"); err != nil {
			return "", nil, apperr.InvalidArg("attachments must be http(s) URLs")
		}
		attachments = append(attachments, a)
	}

	if text == "" && len(attachments) == 0 {
		return "", nil, apperr.InvalidArg("message needs text or attachments")
	}
	return text, attachments, nil
}

func snippetOf(text string) string {
	if text == "" {
		return models.AttachmentSnippet
	}
	if utf8.RuneCountInString(text) <= snippetLength {
		return text
	}
	return string([]rune(text)[:snippetLength])
}

// SendMessage persists a message, bumps the recipient's unread counter and fans the
// message out to the thread room and the recipient's personal room.
func (s *chatService) SendMessage(ctx context.Context, threadID, callerID utils.SixID, input SendMessageInput) (*models.Message, error) {
	text, attachments, err := s.normalizeInput(input)
	if err != nil {
		return nil, err
	}

	thread, role, err := s.participantThread(ctx, threadID, callerID)
	if err != nil {
		return nil, err
	}
	recipientID := thread.Counterpart(callerID)
	recipientRole := models.RoleBuyer
	if role == models.RoleBuyer {
		recipientRole = models.RoleSeller
	}

	msg := &models.Message{
		ThreadID:    threadID,
		SenderID:    callerID,
		Text:        text,
		Attachments: attachments,
		Status:      models.StatusSent,
		CreatedAt:   models.Now(),
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, apperr.Internal(err)
	}
	if err := s.store.RecordMessage(ctx, threadID, recipientRole, msg.CreatedAt, snippetOf(text)); err != nil {
		return nil, apperr.Internal(err)
	}

	s.emitter.Emit(
		[]string{realtime.ThreadRoom(threadID), realtime.UserRoom(recipientID)},
		realtime.EventMessageNew,
		realtime.MessageNewPayload{Message: msg, ThreadID: threadID},
		"",
	)

	if s.reminders != nil {
		if err := s.reminders.ScheduleUnreadReminder(ctx, threadID, recipientID); err != nil {
			logging.Warn().Err(err).Str("thread_id", threadID.String()).Msg("failed to schedule unread reminder")
		}
	}
	return msg, nil
}

// MarkRead marks everything the other participant sent as read and zeroes the
// caller's counter. Calling it again with nothing new is a no-op.
func (s *chatService) MarkRead(ctx context.Context, threadID, callerID utils.SixID) error {
	thread, role, err := s.participantThread(ctx, threadID, callerID)
	if err != nil {
		return err
	}

	marked, err := s.store.MarkMessages(ctx, threadID, thread.Counterpart(callerID), models.StatusRead)
	if err != nil {
		return apperr.Internal(err)
	}
	hadUnread := thread.UnreadFor(callerID) > 0
	if err := s.store.ResetUnread(ctx, threadID, role); err != nil {
		return apperr.Internal(err)
	}

	if marked > 0 || hadUnread {
		s.emitter.Emit(
			[]string{realtime.ThreadRoom(threadID)},
			realtime.EventMessageRead,
			realtime.ReceiptPayload{ThreadID: threadID, By: callerID},
			"",
		)
	}
	return nil
}

// MarkDelivered moves the caller's incoming sent messages to delivered. Read
// messages are left alone.
func (s *chatService) MarkDelivered(ctx context.Context, threadID, callerID utils.SixID) error {
	thread, _, err := s.participantThread(ctx, threadID, callerID)
	if err != nil {
		return err
	}

	marked, err := s.store.MarkMessages(ctx, threadID, thread.Counterpart(callerID), models.StatusDelivered)
	if err != nil {
		return apperr.Internal(err)
	}
	if marked > 0 {
		s.emitter.Emit(
			[]string{realtime.ThreadRoom(threadID)},
			realtime.EventMessageDelivered,
			realtime.ReceiptPayload{ThreadID: threadID, By: callerID},
			"",
		)
	}
	return nil
}

// UnreadCount is the caller's badge total across all their threads.
func (s *chatService) UnreadCount(ctx context.Context, callerID utils.SixID) (int64, error) {
	total, err := s.store.SumUnread(ctx, callerID)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	return total, nil
}

// DeleteMessage hides a message from the caller only.
func (s *chatService) DeleteMessage(ctx context.Context, threadID, messageID, callerID utils.SixID) error {
	if _, _, err := s.participantThread(ctx, threadID, callerID); err != nil {
		return err
	}

	msg, err := s.store.FindMessageByID(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && msg.ThreadID != threadID) {
		return apperr.NotFound("message not found")
	}
	if err != nil {
		return apperr.Internal(err)
	}

	if err := s.store.AddDeletedFor(ctx, messageID, callerID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}
