package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greendrake/chat/internal/models"
	"greendrake/chat/internal/utils"
)

func TestCursor_RoundTrip(t *testing.T) {
	msg := &models.Message{Base: models.NewBase(), CreatedAt: models.Now()}
	c := CursorAfter(msg)

	parsed, err := ParseCursor(c.String())
	require.NoError(t, err)
	assert.True(t, parsed.At.Equal(msg.CreatedAt))
	assert.Equal(t, msg.ID, parsed.ID)
}

func TestParseCursor_RFC3339(t *testing.T) {
	parsed, err := ParseCursor("2025-03-01T10:00:00.123456Z")
	require.NoError(t, err)
	assert.True(t, parsed.ID.IsZero())
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 123000000, time.UTC), parsed.At)
}

func TestParseCursor_Invalid(t *testing.T) {
	for _, s := range []string{"", "yesterday", "1700000000000_bad"} {
		_, err := ParseCursor(s)
		assert.Error(t, err, s)
	}
}

func TestCursor_Before(t *testing.T) {
	at := models.Now()
	lo := utils.SixID{0, 0, 0, 0, 0, 1}
	mid := utils.SixID{0, 0, 0, 0, 0, 2}
	hi := utils.SixID{0, 0, 0, 0, 0, 3}
	c := Cursor{At: at, ID: mid}

	assert.True(t, c.Before(&models.Message{Base: models.Base{ID: hi}, CreatedAt: at.Add(-time.Millisecond)}))
	assert.True(t, c.Before(&models.Message{Base: models.Base{ID: lo}, CreatedAt: at}))
	assert.False(t, c.Before(&models.Message{Base: models.Base{ID: mid}, CreatedAt: at}))
	assert.False(t, c.Before(&models.Message{Base: models.Base{ID: hi}, CreatedAt: at}))

	bare := Cursor{At: at}
	assert.False(t, bare.Before(&models.Message{Base: models.Base{ID: lo}, CreatedAt: at}))
}
