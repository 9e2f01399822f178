package store

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"greendrake/chat/internal/models"
	"greendrake/chat/internal/utils"
)

// Cursor is a position in a thread's newest-first message order.
// With an ID it is exact; a bare timestamp means "strictly older than".
type Cursor struct {
	At time.Time
	ID utils.SixID
}

// CursorAfter is the cursor that resumes right after msg.
func CursorAfter(msg *models.Message) Cursor {
	return Cursor{At: msg.CreatedAt, ID: msg.ID}
}

// String encodes the cursor as <unixMillis>_<id>.
func (c Cursor) String() string {
	if c.ID.IsZero() {
		return strconv.FormatInt(c.At.UnixMilli(), 10)
	}
	return strconv.FormatInt(c.At.UnixMilli(), 10) + "_" + c.ID.String()
}

// ParseCursor accepts <unixMillis>_<id>, <unixMillis>, or an RFC3339 timestamp.
func ParseCursor(s string) (Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Cursor{}, fmt.Errorf("empty cursor")
	}

	millis, idPart, hasID := strings.Cut(s, "_")
	if ms, err := strconv.ParseInt(millis, 10, 64); err == nil {
		c := Cursor{At: time.UnixMilli(ms).UTC()}
		if hasID {
			id, err := utils.ParseSixID(idPart)
			if err != nil {
				return Cursor{}, fmt.Errorf("invalid cursor id: %w", err)
			}
			c.ID = id
		}
		return c, nil
	}

	at, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor %q", s)
	}
	return Cursor{At: at.UTC().Truncate(time.Millisecond)}, nil
}

// Before reports whether msg sorts strictly after the cursor in newest-first order.
func (c Cursor) Before(msg *models.Message) bool {
	if msg.CreatedAt.Before(c.At) {
		return true
	}
	if c.ID.IsZero() || !msg.CreatedAt.Equal(c.At) {
		return false
	}
	return bytes.Compare(msg.ID[:], c.ID[:]) < 0
}
