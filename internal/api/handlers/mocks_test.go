package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"greendrake/chat/internal/models"
	"greendrake/chat/internal/services"
	"greendrake/chat/internal/storage"
	"greendrake/chat/internal/utils"
)

// --- Mocks ---

// MockChatService implements services.IChatService
type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) OpenThread(ctx context.Context, listingID, callerID utils.SixID) (*models.Thread, error) {
	args := m.Called(ctx, listingID, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Thread), args.Error(1)
}

func (m *MockChatService) GetThread(ctx context.Context, threadID, callerID utils.SixID) (*models.Thread, error) {
	args := m.Called(ctx, threadID, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Thread), args.Error(1)
}

func (m *MockChatService) ListThreads(ctx context.Context, callerID utils.SixID, role models.ThreadRole, page, limit int) (*services.ThreadPage, error) {
	args := m.Called(ctx, callerID, role, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ThreadPage), args.Error(1)
}

func (m *MockChatService) ListMessages(ctx context.Context, threadID, callerID utils.SixID, cursor string, limit int) (*services.MessagePage, error) {
	args := m.Called(ctx, threadID, callerID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.MessagePage), args.Error(1)
}

func (m *MockChatService) SendMessage(ctx context.Context, threadID, callerID utils.SixID, input services.SendMessageInput) (*models.Message, error) {
	args := m.Called(ctx, threadID, callerID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockChatService) MarkRead(ctx context.Context, threadID, callerID utils.SixID) error {
	args := m.Called(ctx, threadID, callerID)
	return args.Error(0)
}

func (m *MockChatService) MarkDelivered(ctx context.Context, threadID, callerID utils.SixID) error {
	args := m.Called(ctx, threadID, callerID)
	return args.Error(0)
}

func (m *MockChatService) UnreadCount(ctx context.Context, callerID utils.SixID) (int64, error) {
	args := m.Called(ctx, callerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChatService) DeleteMessage(ctx context.Context, threadID, messageID, callerID utils.SixID) error {
	args := m.Called(ctx, threadID, messageID, callerID)
	return args.Error(0)
}

// MockS3Storage implements storage.IS3Storage
type MockS3Storage struct {
	mock.Mock
}

func (m *MockS3Storage) PresignAttachmentUpload(ctx context.Context, threadID utils.SixID, filename, contentType string) (*storage.PresignedUpload, error) {
	args := m.Called(ctx, threadID, filename, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.PresignedUpload), args.Error(1)
}
