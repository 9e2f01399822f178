package models

import (
	"time"

	"greendrake/chat/internal/utils"
)

type Base struct {
	ID utils.SixID `bson:"_id,omitempty" json:"id"`
}

func (m *Base) GenIDIfEmpty() {
	if m.ID.IsZero() {
		m.GenID()
	}
}

func (m *Base) GenID() {
	m.ID = utils.NewSixID()
}

func NewBase() Base {
	return Base{
		ID: utils.NewSixID(),
	}
}

// Now is the storage-resolution timestamp: UTC, truncated to milliseconds like a BSON date.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
