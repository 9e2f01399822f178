package models

import (
	"time"

	"greendrake/chat/internal/utils"
)

// Listing is the marketplace listing document, reduced to the fields chat reads.
type Listing struct {
	ID           utils.SixID  `bson:"_id,omitempty" json:"id,omitempty"`
	UserID       utils.SixID  `bson:"user_id" json:"user_id"`
	Title        string       `bson:"title" json:"title"`
	Images       []string     `bson:"images" json:"images"` // S3 keys
	Hidden       bool         `bson:"hidden" json:"hidden"`
	SuspensionID *utils.SixID `bson:"suspension,omitempty" json:"suspension,omitempty"`
	Deleted      bool         `bson:"deleted" json:"-"`
	UpdatedAt    time.Time    `bson:"updated_at" json:"updated_at"`
}

// ListingRef is what chat needs to know about a listing. It is what gets cached.
type ListingRef struct {
	ID        utils.SixID `json:"id"`
	OwnerID   utils.SixID `json:"ownerId"`
	Title     string      `json:"title"`
	Thumbnail string      `json:"thumbnail,omitempty"`
}
