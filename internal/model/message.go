package model

import "time"

// DeletedMessageText replaces the text of messages whose author was deleted.
const DeletedMessageText = "[Message from deleted user]"

// Message is a single chat line in a conversation. IsRead flips to true only
// when the participant who did not author it marks the conversation read.
type Message struct {
	ID             int64      `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Message        string     `json:"message"`
	UserID         string     `json:"user_id"`
	CreatedAt      time.Time  `json:"created_at"`
	IsRead         bool       `json:"isread"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}
