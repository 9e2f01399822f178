package email

import (
	"github.com/redis/go-redis/v9"

	"greendrake/chat/internal/config"
	"greendrake/chat/internal/logging"
)

// NewSenderFromConfig picks the sender stack for the environment. With
// MockServices set, emails go to Redis (and the log) instead of SMTP. An
// EmailLogFile adds a file copy either way.
func NewSenderFromConfig(cfg *config.Config, rdb *redis.Client) Sender {
	composite := NewCompositeEmailSender()
	if cfg.MockServices && rdb != nil {
		composite.AddSender(NewRedisSender(rdb, cfg))
		composite.AddSender(NewLoggingSender(cfg))
	} else {
		composite.AddSender(NewSMTPSender(cfg))
	}

	if cfg.EmailLogFile != "" {
		fileSender, err := NewFileEmailSender(cfg.EmailLogFile)
		if err != nil {
			logging.Warn().Err(err).Msg("email log file disabled")
		} else {
			composite.AddSender(fileSender)
		}
	}

	if composite.Len() == 1 {
		return composite.senders[0]
	}
	return composite
}
