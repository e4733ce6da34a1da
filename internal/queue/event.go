package queue

import (
	"fmt"
	"time"

	"github.com/iliyamo/lost-and-found/internal/model"
	"github.com/iliyamo/lost-and-found/internal/realtime"
)

// Tables recorded in the activity log.
var loggedTables = []string{"items", "conversations", "messages"}

// formatChange renders one row change as a single human-friendly line.
// Message text is never written, only its length.
func formatChange(ev realtime.Event, at time.Time) (string, error) {
	ts := at.UTC().Format(time.RFC3339)
	switch ev.Table {
	case "items":
		var it model.Item
		if err := ev.Decode(&it); err != nil {
			return "", fmt.Errorf("unmarshal item: %w", err)
		}
		claimed := "-"
		if it.Claimed() {
			claimed = it.ClaimedBy
		}
		return fmt.Sprintf("[%s] Item %s | item_id=%d | status=%s | title=%q | user_id=%s | claimed_by=%s\n",
			ts, ev.Kind, it.ID, it.Status, it.Title, orDash(it.UserID), claimed), nil
	case "conversations":
		var c model.Conversation
		if err := ev.Decode(&c); err != nil {
			return "", fmt.Errorf("unmarshal conversation: %w", err)
		}
		return fmt.Sprintf("[%s] Conversation %s | conversation_id=%s | scope=%s | sender_id=%s | receiver_id=%s\n",
			ts, ev.Kind, c.ID, model.ScopeKey(c.ItemID), c.SenderID, c.ReceiverID), nil
	case "messages":
		var m model.Message
		if err := ev.Decode(&m); err != nil {
			return "", fmt.Errorf("unmarshal message: %w", err)
		}
		return fmt.Sprintf("[%s] Message %s | message_id=%d | conversation_id=%s | user_id=%s | length=%d\n",
			ts, ev.Kind, m.ID, m.ConversationID, m.UserID, len([]rune(m.Message))), nil
	}
	return "", fmt.Errorf("unknown table %q", ev.Table)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
