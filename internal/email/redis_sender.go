package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"greendrake/chat/internal/config"
	"greendrake/chat/internal/logging"
)

const (
	mockEmailTTL = 5 * time.Minute
	unknownKind  = "unknown"
)

// MockEmail is what RedisSender stores, and what the service API hands back to tests.
type MockEmail struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Kind    string `json:"kind"`
	Body    string `json:"body"`
	SentAt  string `json:"sent_at"`
}

// RedisSender stores emails in Redis instead of sending them, so end-to-end tests can read them back.
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
}

func NewRedisSender(client *redis.Client, cfg *config.Config) Sender {
	return &RedisSender{client: client, cfg: cfg}
}

// MockEmailKey is the Redis key of the latest mock email of a kind sent to an address.
func MockEmailKey(to, kind string) string {
	if kind == "" {
		kind = unknownKind
	}
	return fmt.Sprintf("mockemail:%s:%s", to, kind)
}

func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	kind := headerValue(rawMessage, KindHeader)
	if kind == "" {
		kind = unknownKind
	}

	primaryTo := ""
	if len(to) > 0 {
		primaryTo = to[0]
	}

	data, err := json.Marshal(MockEmail{
		To:      strings.Join(to, ", "),
		From:    s.cfg.SmtpFromAddress,
		Subject: subject,
		Kind:    kind,
		Body:    string(rawMessage),
		SentAt:  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := MockEmailKey(primaryTo, kind)
	if err := s.client.Set(ctx, key, data, mockEmailTTL).Err(); err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}

	logging.Info().Str("key", key).Str("subject", subject).Msg("mock email stored in Redis")
	return nil
}

// GetMockEmail reads back a mock email. It returns redis.Nil when there is none.
func GetMockEmail(ctx context.Context, client redis.Cmdable, to, kind string) (*MockEmail, error) {
	raw, err := client.Get(ctx, MockEmailKey(to, kind)).Bytes()
	if err != nil {
		return nil, err
	}
	var m MockEmail
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("corrupt mock email: %w", err)
	}
	return &m, nil
}
