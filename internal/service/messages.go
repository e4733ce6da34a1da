package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/lost-and-found/internal/metrics"
	"github.com/iliyamo/lost-and-found/internal/model"
	"github.com/iliyamo/lost-and-found/internal/realtime"
)

// MessageStore persists chat messages, fans them out in realtime and keeps
// read-state bookkeeping.
type MessageStore struct {
	d Deps
}

func NewMessageStore(d Deps) *MessageStore { return &MessageStore{d: d} }

// Send stores an unread message and announces it on the conversation's
// broadcast channel and on the row feed. A failed insert returns a
// *SendError holding the text; failed announcements are only logged.
func (s *MessageStore) Send(ctx context.Context, conversationID, text, authorID string) (*model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, newError(CodeInvalidInput, "message text is required")
	}
	m := &model.Message{ConversationID: conversationID, Message: text, UserID: authorID}
	if err := s.d.Messages.Create(ctx, m); err != nil {
		s.d.Log.Error("message insert failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil, &SendError{ConversationID: conversationID, Text: text, Err: err}
	}
	metrics.MessagesSent.Inc()

	if s.d.Bus != nil {
		if err := s.d.Bus.Broadcast(ctx, MessageChannel(conversationID), EventNewMessage, m); err != nil {
			metrics.BroadcastErrors.Inc()
			s.d.Log.Warn("message broadcast failed", zap.String("conversation_id", conversationID),
				zap.Int64("message_id", m.ID), zap.Error(err))
		}
	}
	s.d.publishChange(ctx, TableMessages, realtime.Insert, m)
	return m, nil
}

// Load returns the conversation's messages in creation order.
func (s *MessageStore) Load(ctx context.Context, conversationID string) ([]model.Message, error) {
	msgs, err := s.d.Messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return msgs, nil
}

// MessageSubscription is the pair of registrations made by Subscribe.
type MessageSubscription struct {
	subs []realtime.Subscription
	once sync.Once
}

// Unsubscribe releases both registrations. Safe to call more than once.
func (m *MessageSubscription) Unsubscribe() error {
	var first error
	m.once.Do(func() {
		for _, s := range m.subs {
			if err := s.Unsubscribe(); err != nil && first == nil {
				first = err
			}
		}
	})
	return first
}

// Subscribe registers onMessage for new messages in conversationID on both
// the broadcast channel and the row feed. Messages authored by selfID are
// never delivered, and each message id is delivered at most once.
func (s *MessageStore) Subscribe(ctx context.Context, conversationID, selfID string, onMessage func(model.Message)) (realtime.Subscription, error) {
	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{})
	)
	deliver := func(ev realtime.Event) {
		var m model.Message
		if err := ev.Decode(&m); err != nil {
			s.d.Log.Warn("undecodable message event", zap.String("conversation_id", conversationID), zap.Error(err))
			return
		}
		if m.ConversationID != conversationID || m.UserID == selfID {
			return
		}
		mu.Lock()
		if _, dup := seen[m.ID]; dup {
			mu.Unlock()
			return
		}
		seen[m.ID] = struct{}{}
		mu.Unlock()
		onMessage(m)
	}

	sub := &MessageSubscription{}
	if s.d.Bus != nil {
		bs, err := s.d.Bus.SubscribeBroadcast(ctx, MessageChannel(conversationID), func(ev realtime.Event) {
			if ev.Kind == EventNewMessage {
				deliver(ev)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to messages: %w", err)
		}
		sub.subs = append(sub.subs, bs)
	}
	if s.d.Feed != nil {
		fs, err := s.d.Feed.SubscribeChanges(ctx, TableMessages, func(ev realtime.Event) {
			if ev.Kind == realtime.Insert {
				deliver(ev)
			}
		})
		if err != nil {
			_ = sub.Unsubscribe()
			return nil, fmt.Errorf("failed to subscribe to message changes: %w", err)
		}
		sub.subs = append(sub.subs, fs)
	}
	return sub, nil
}

// MarkRead flags as read every message in the conversation not authored by
// readerID and returns how many changed.
func (s *MessageStore) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	n, err := s.d.Messages.MarkRead(ctx, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages as read: %w", err)
	}
	return n, nil
}

// UnreadForConversation counts messages in one conversation unread by readerID.
func (s *MessageStore) UnreadForConversation(ctx context.Context, conversationID, readerID string) (int, error) {
	n, err := s.d.Messages.CountUnread(ctx, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return n, nil
}

// UnreadForItem counts messages about one item unread by readerID.
func (s *MessageStore) UnreadForItem(ctx context.Context, itemID int64, readerID string) (int, error) {
	n, err := s.d.Messages.CountUnreadForItem(ctx, itemID, readerID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return n, nil
}

// UnreadByConversation maps each conversation visible to readerID to its
// unread count. Admins only count threads where they are the receiver and
// not the sender; everyone else counts every thread they take part in.
// Conversations without unread messages are omitted.
func (s *MessageStore) UnreadByConversation(ctx context.Context, readerID string) (map[string]int, error) {
	role, err := userRole(ctx, s.d.Users, readerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reader role: %w", err)
	}
	ids, err := s.d.Conversations.IDsForReader(ctx, readerID, role == model.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	counts, err := s.d.Messages.CountUnreadByConversation(ctx, ids, readerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return counts, nil
}

// UnreadTotal sums UnreadByConversation.
func (s *MessageStore) UnreadTotal(ctx context.Context, readerID string) (int, error) {
	counts, err := s.UnreadByConversation(ctx, readerID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}
