package model

import "time"

// Item status values. Claiming never changes the status; an item is
// resolved when ClaimedBy is set.
const (
	ItemLost  = "lost"
	ItemFound = "found"
)

// ValidItemStatus reports whether s is lost or found.
func ValidItemStatus(s string) bool { return s == ItemLost || s == ItemFound }

// Item is a lost or found report stored in the `items` table.
//
// Fields:
//  ID          – primary key identifier.
//  Title       – short headline shown in listings.
//  Description – free text details.
//  Status      – lost or found.
//  UserID      – poster of the item; empty for anonymous posts.
//  ClaimedBy   – user who claimed the item; empty while unclaimed.
//  CreatedAt   – creation timestamp.
//  DeletedAt   – set when the item was soft deleted.
type Item struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	UserID        string     `json:"user_id,omitempty"`
	ClaimedBy     string     `json:"claimed_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	DeletedBy     string     `json:"deleted_by,omitempty"`
	DeletedReason string     `json:"deleted_reason,omitempty"`
}

// Claimed reports whether the item has been claimed.
func (i Item) Claimed() bool { return i.ClaimedBy != "" }

// ItemSummary is the part of an item attached to a user's conversation list.
type ItemSummary struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}
