package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"greendrake/chat/internal/config"
	"greendrake/chat/internal/logging"
)

// Sender defines the interface for sending emails.
// The rawMessage parameter should contain the full email message, including headers and body, properly formatted.
type Sender interface {
	Send(ctx context.Context, to []string, subject string, rawMessage []byte) error
}

// Message is a plain-text email before rendering.
type Message struct {
	From    string
	To      string
	Subject string
	Kind    string // mirrored in the X-Mail-Kind header
	Body    string
}

// KindHeader identifies the email kind for mock senders.
const KindHeader = "X-Mail-Kind"

// Render builds the raw RFC 5322 message with CRLF line endings.
func (m Message) Render(now time.Time) []byte {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", m.To))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", m.From))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", m.Subject))
	sb.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	if m.Kind != "" {
		sb.WriteString(fmt.Sprintf("%s: %s\r\n", KindHeader, m.Kind))
	}
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

// SMTPSender implements the Sender interface using Go's net/smtp package.
type SMTPSender struct {
	cfg  *config.Config
	auth smtp.Auth
	addr string
}

// NewSMTPSender creates a new SMTPSender, or a LoggingSender when no SMTP host is configured.
func NewSMTPSender(cfg *config.Config) Sender {
	if cfg.SmtpHost == "" {
		logging.Info().Msg("SMTP host not configured, using logging email sender")
		return &LoggingSender{cfg: cfg}
	}

	auth := smtp.PlainAuth("", cfg.SmtpUsername, cfg.SmtpPassword, cfg.SmtpHost)
	return &SMTPSender{
		cfg:  cfg,
		auth: auth,
		addr: fmt.Sprintf("%s:%d", cfg.SmtpHost, cfg.SmtpPort),
	}
}

// Send sends an email using SMTP.
func (s *SMTPSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if err := smtp.SendMail(s.addr, s.auth, s.cfg.SmtpFromAddress, to, rawMessage); err != nil {
		logging.Error().Err(err).Strs("to", to).Msg("failed to send email via SMTP")
		return fmt.Errorf("smtp error: %w", err)
	}
	logging.Info().Strs("to", to).Str("subject", subject).Msg("email sent via SMTP")
	return nil
}

// LoggingSender just logs email details. Used in development.
type LoggingSender struct {
	cfg *config.Config
}

func NewLoggingSender(cfg *config.Config) Sender {
	return &LoggingSender{cfg: cfg}
}

func (s *LoggingSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	logging.Info().
		Strs("to", to).
		Str("from", s.cfg.SmtpFromAddress).
		Str("subject", subject).
		Str("raw", string(rawMessage)).
		Msg("email (logged, not sent)")
	return nil
}

// headerValue returns the value of a header in a raw message, or "".
func headerValue(rawMessage []byte, name string) string {
	head, _, _ := strings.Cut(string(rawMessage), "\r\n\r\n")
	prefix := strings.ToLower(name) + ":"
	for _, line := range strings.Split(head, "\r\n") {
		if strings.HasPrefix(strings.ToLower(line), prefix) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	return ""
}
