package email

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"greendrake/chat/internal/config"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	args := m.Called(ctx, to, subject, rawMessage)
	return args.Error(0)
}

func testMessage() Message {
	return Message{
		From:    "noreply@example.com",
		To:      "buyer@example.com",
		Subject: "You have unread messages",
		Kind:    "chat_unread_reminder",
		Body:    "line one\nline two",
	}
}

func TestMessageRender(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	raw := string(testMessage().Render(now))

	assert.Contains(t, raw, "To: buyer@example.com\r\n")
	assert.Contains(t, raw, "From: noreply@example.com\r\n")
	assert.Contains(t, raw, "Subject: You have unread messages\r\n")
	assert.Contains(t, raw, "X-Mail-Kind: chat_unread_reminder\r\n")
	assert.Contains(t, raw, "\r\n\r\nline one\r\nline two\r\n")
	assert.Equal(t, "chat_unread_reminder", headerValue([]byte(raw), KindHeader))
	assert.Equal(t, "", headerValue([]byte(raw), "X-Missing"))
}

func TestRedisSender_StoresByKind(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	sender := NewRedisSender(rdb, &config.Config{SmtpFromAddress: "noreply@example.com"})
	msg := testMessage()
	require.NoError(t, sender.Send(ctx, []string{msg.To}, msg.Subject, msg.Render(time.Now())))

	stored, err := GetMockEmail(ctx, rdb, "buyer@example.com", "chat_unread_reminder")
	require.NoError(t, err)
	assert.Equal(t, msg.Subject, stored.Subject)
	assert.Equal(t, "chat_unread_reminder", stored.Kind)
	assert.Contains(t, stored.Body, "line two")
	assert.True(t, mr.TTL(MockEmailKey("buyer@example.com", "chat_unread_reminder")) > 0)

	_, err = GetMockEmail(ctx, rdb, "nobody@example.com", "chat_unread_reminder")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestCompositeEmailSender(t *testing.T) {
	ctx := context.Background()
	first, second := new(MockSender), new(MockSender)
	first.On("Send", mock.Anything, []string{"a@example.com"}, "hi", mock.Anything).Return(errors.New("smtp down"))
	second.On("Send", mock.Anything, []string{"a@example.com"}, "hi", mock.Anything).Return(nil)

	cs := NewCompositeEmailSender(first, nil, second)
	assert.Equal(t, 2, cs.Len())

	err := cs.Send(ctx, []string{"a@example.com"}, "hi", []byte("raw"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	first.AssertExpectations(t)
	second.AssertExpectations(t)

	assert.Error(t, NewCompositeEmailSender().Send(ctx, nil, "", nil))
}

func TestFileEmailSender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mail", "outbox.log")
	sender, err := NewFileEmailSender(path)
	require.NoError(t, err)

	require.NoError(t, sender.Send(context.Background(), []string{"a@example.com"}, "first", []byte("body one")))
	require.NoError(t, sender.Send(context.Background(), []string{"a@example.com"}, "second", []byte("body two")))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "body one")
	assert.Contains(t, string(content), "Subject: second")

	_, err = NewFileEmailSender("  ")
	assert.Error(t, err)
}

func TestNewSenderFromConfig(t *testing.T) {
	assert.IsType(t, &LoggingSender{}, NewSenderFromConfig(&config.Config{}, nil))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mocked := NewSenderFromConfig(&config.Config{MockServices: true, EmailLogFile: filepath.Join(t.TempDir(), "mail.log")}, rdb)
	composite, ok := mocked.(*CompositeEmailSender)
	require.True(t, ok)
	assert.Equal(t, 3, composite.Len())
}
