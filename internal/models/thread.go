package models

import (
	"time"

	"greendrake/chat/internal/utils"
)

// ThreadRole is the part a user plays in a thread.
type ThreadRole string

const (
	RoleBuyer  ThreadRole = "buyer"
	RoleSeller ThreadRole = "seller"
	RoleBoth   ThreadRole = "both"
)

// ParseThreadRole accepts buyer, seller, both or "" (both).
func ParseThreadRole(s string) (ThreadRole, bool) {
	switch ThreadRole(s) {
	case "", RoleBoth:
		return RoleBoth, true
	case RoleBuyer, RoleSeller:
		return ThreadRole(s), true
	}
	return "", false
}

// Thread is a conversation about one listing between its buyer and seller.
// Participants never change after creation.
type Thread struct {
	Base               `bson:",inline"`
	ListingID          utils.SixID `bson:"listing_id" json:"listingId"`
	BuyerID            utils.SixID `bson:"buyer_id" json:"buyerId"`
	SellerID           utils.SixID `bson:"seller_id" json:"sellerId"` // listing owner when the thread was opened
	LastMessageAt      time.Time   `bson:"last_message_at" json:"lastMessageAt"`
	LastMessageSnippet string      `bson:"last_message_snippet" json:"lastMessageSnippet"`
	BuyerUnread        int         `bson:"buyer_unread" json:"buyerUnread"`
	SellerUnread       int         `bson:"seller_unread" json:"sellerUnread"`
	CreatedAt          time.Time   `bson:"created_at" json:"createdAt"`
}

// RoleOf returns the role userID has in the thread.
func (t *Thread) RoleOf(userID utils.SixID) (ThreadRole, bool) {
	switch userID {
	case t.BuyerID:
		return RoleBuyer, true
	case t.SellerID:
		return RoleSeller, true
	}
	return "", false
}

// IsParticipant reports whether userID is the buyer or the seller.
func (t *Thread) IsParticipant(userID utils.SixID) bool {
	_, ok := t.RoleOf(userID)
	return ok
}

// Counterpart returns the other participant. userID must be a participant.
func (t *Thread) Counterpart(userID utils.SixID) utils.SixID {
	if userID == t.BuyerID {
		return t.SellerID
	}
	return t.BuyerID
}

// UnreadFor returns userID's unread counter.
func (t *Thread) UnreadFor(userID utils.SixID) int {
	switch userID {
	case t.BuyerID:
		return t.BuyerUnread
	case t.SellerID:
		return t.SellerUnread
	}
	return 0
}

// ThreadSummary is a thread as listed for one of its participants.
type ThreadSummary struct {
	Thread
	Role             ThreadRole `json:"role"`
	Unread           int        `json:"unread"`
	ListingTitle     string     `json:"listingTitle,omitempty"`
	ListingThumbnail string     `json:"listingThumbnail,omitempty"`
}
