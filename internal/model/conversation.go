package model

import (
	"strconv"
	"time"
)

// SupportScope is the scope key of admin support conversations, which have
// no item.
const SupportScope = "support"

// ScopeKey returns the non-null uniqueness key for an item id. A nil item
// means the admin support channel.
func ScopeKey(itemID *int64) string {
	if itemID == nil {
		return SupportScope
	}
	return "item:" + strconv.FormatInt(*itemID, 10)
}

// Conversation is a thread between a sender and a receiver, either about an
// item or, when ItemID is nil, an admin support thread.
type Conversation struct {
	ID         string     `json:"id"`
	ItemID     *int64     `json:"item_id"`
	SenderID   string     `json:"sender_id"`
	ReceiverID string     `json:"receiver_id"`
	CreatedAt  time.Time  `json:"created_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`

	Sender *UserSummary `json:"sender,omitempty"`
	Item   *ItemSummary `json:"item,omitempty"`
}

// IsSupport reports whether the conversation is an admin support thread.
func (c Conversation) IsSupport() bool { return c.ItemID == nil }

// Involves reports whether userID is one of the two participants.
func (c Conversation) Involves(userID string) bool {
	return c.SenderID == userID || c.ReceiverID == userID
}

// LatestMessage is the preview shown in the support inbox.
type LatestMessage struct {
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// NoMessagesYet is the preview text of an empty support conversation.
const NoMessagesYet = "No messages yet"

// SupportConversation is a support thread enriched for the admin inbox.
type SupportConversation struct {
	Conversation
	SenderProfile UserSummary   `json:"sender_profile"`
	LatestMessage LatestMessage `json:"latest_message"`
	MessageCount  int           `json:"message_count"`
}
