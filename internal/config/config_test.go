package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load("api")
	require.NoError(t, err)

	assert.Equal(t, "api", cfg.RunMode)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 2000, cfg.ChatMaxTextLength)
	assert.Equal(t, 4, cfg.ChatMaxAttachments)
	assert.Equal(t, 30, cfg.ChatDefaultPageSize)
	assert.Equal(t, 100, cfg.ChatMaxPageSize)
	assert.Equal(t, 15*time.Minute, cfg.ChatReminderDelay)
	assert.Equal(t, "l1_session", cfg.SessionCookieName)
	assert.False(t, cfg.DevAuthHeader)
}

func TestLoad_MongoRequiresURI(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("MONGO_URI", "")
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load("api")
	assert.ErrorContains(t, err, "MONGO_URI")
}

func TestLoad_MissingJwtSecret(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "")

	_, err := Load("api")
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoad_DevHeaderRejectedInProduction(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "production")
	t.Setenv("DEV_AUTH_HEADER", "true")

	_, err := Load("api")
	assert.Error(t, err)
}

func TestLoad_InvalidNumber(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CHAT_MAX_PAGE_SIZE", "many")

	_, err := Load("api")
	assert.ErrorContains(t, err, "CHAT_MAX_PAGE_SIZE")
}
