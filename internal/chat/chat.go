// Package chat holds the per-screen state machines of the messaging UI:
// a user contacting an item's poster, an admin reviewing the threads of an
// item, the admin support inbox and the unread badge. Each keeps a snapshot
// of what the screen shows, guarded by a mutex, and at most one live message
// subscription.
package chat

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/lost-and-found/internal/model"
	"github.com/iliyamo/lost-and-found/internal/realtime"
	"github.com/iliyamo/lost-and-found/internal/service"
)

// MessageService is the part of service.MessageStore the chats use.
type MessageService interface {
	Send(ctx context.Context, conversationID, text, authorID string) (*model.Message, error)
	Load(ctx context.Context, conversationID string) ([]model.Message, error)
	Subscribe(ctx context.Context, conversationID, selfID string, onMessage func(model.Message)) (realtime.Subscription, error)
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)
}

// ConversationService is the part of service.ConversationStore the chats use.
type ConversationService interface {
	FindOrCreate(ctx context.Context, itemID *int64, senderID, receiverID string) (*model.Conversation, bool, error)
	GetOrCreateSupport(ctx context.Context, studentID string) (*model.Conversation, error)
	ListForItem(ctx context.Context, itemID int64) ([]model.Conversation, error)
	ListAdminSupport(ctx context.Context, page, pageSize int) (*service.SupportPage, error)
	SubscribeSupport(ctx context.Context, onNew func(model.SupportConversation)) (realtime.Subscription, error)
}

// Notifier shows transient feedback to the person at the screen.
type Notifier interface {
	Success(msg string)
	Error(msg string)
	Info(msg string)
}

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) Success(msg string) { n.Log.Info(msg, zap.String("level", "success")) }
func (n LogNotifier) Error(msg string)   { n.Log.Warn(msg) }
func (n LogNotifier) Info(msg string)    { n.Log.Info(msg) }

type nopNotifier struct{}

func (nopNotifier) Success(string) {}
func (nopNotifier) Error(string)   {}
func (nopNotifier) Info(string)    {}

func orNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// ErrNoConversation is returned by Send when no conversation is selected.
var ErrNoConversation = errors.New("no conversation selected")

// thread is the open conversation of a chat screen: its messages, the
// compose box and the realtime subscription feeding it.
type thread struct {
	msgs   MessageService
	self   string
	notify Notifier

	// onMessage, when set, is called outside the lock for every message
	// appended by the realtime path.
	onMessage func(model.Message)

	mu       sync.Mutex
	conv     *model.Conversation
	messages []model.Message
	seen     map[int64]struct{}
	sub      realtime.Subscription
	loading  bool
	sending  bool
	input    string
}

func newThread(msgs MessageService, self string, n Notifier) *thread {
	return &thread{msgs: msgs, self: self, notify: orNop(n), seen: make(map[int64]struct{})}
}

// open switches the thread to conv: the previous subscription is released,
// a new one is registered, the history is loaded and merged with anything
// the subscription delivered meanwhile. markRead flags the other
// participant's messages as read.
func (t *thread) open(ctx context.Context, conv *model.Conversation, markRead bool) error {
	t.mu.Lock()
	prev := t.sub
	t.sub = nil
	t.conv = conv
	t.messages = nil
	t.seen = make(map[int64]struct{})
	t.loading = true
	t.mu.Unlock()
	if prev != nil {
		_ = prev.Unsubscribe()
	}

	sub, err := t.msgs.Subscribe(ctx, conv.ID, t.self, t.receiver(conv.ID))
	if err != nil {
		t.notify.Error("Live updates are unavailable for this conversation")
	}

	history, loadErr := t.msgs.Load(ctx, conv.ID)

	t.mu.Lock()
	current := t.conv != nil && t.conv.ID == conv.ID
	if current {
		t.sub = sub
		t.loading = false
		if loadErr == nil {
			t.merge(history)
		}
	}
	t.mu.Unlock()

	if !current {
		if sub != nil {
			_ = sub.Unsubscribe()
		}
		return nil
	}
	if loadErr != nil {
		t.notify.Error("Failed to load messages")
		return loadErr
	}
	if markRead {
		if _, err := t.msgs.MarkRead(ctx, conv.ID, t.self); err != nil {
			t.notify.Error("Failed to mark messages as read")
		}
	}
	return nil
}

// merge puts history under messages already received live. Callers hold mu.
func (t *thread) merge(history []model.Message) {
	live := t.messages
	t.messages = make([]model.Message, 0, len(history)+len(live))
	t.seen = make(map[int64]struct{}, len(history)+len(live))
	for _, m := range append(history, live...) {
		if _, dup := t.seen[m.ID]; dup {
			continue
		}
		t.seen[m.ID] = struct{}{}
		t.messages = append(t.messages, m)
	}
	slices.SortStableFunc(t.messages, func(a, b model.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

func (t *thread) receiver(conversationID string) func(model.Message) {
	return func(m model.Message) {
		if !t.add(conversationID, m) {
			return
		}
		if t.onMessage != nil {
			t.onMessage(m)
		}
	}
}

// add adds m when conversationID is still open and m is new.
func (t *thread) add(conversationID string, m model.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conv == nil || t.conv.ID != conversationID {
		return false
	}
	if _, dup := t.seen[m.ID]; dup {
		return false
	}
	t.seen[m.ID] = struct{}{}
	t.messages = append(t.messages, m)
	return true
}

// send posts the compose box. The box is cleared first and restored when
// the message cannot be stored.
func (t *thread) send(ctx context.Context) (*model.Message, error) {
	t.mu.Lock()
	text := strings.TrimSpace(t.input)
	if t.conv == nil {
		t.mu.Unlock()
		return nil, ErrNoConversation
	}
	if text == "" || t.sending {
		t.mu.Unlock()
		return nil, nil
	}
	convID := t.conv.ID
	t.input = ""
	t.sending = true
	t.mu.Unlock()

	m, err := t.msgs.Send(ctx, convID, text, t.self)

	t.mu.Lock()
	t.sending = false
	if err != nil {
		restore := text
		var se *service.SendError
		if errors.As(err, &se) {
			restore = se.Text
		}
		if t.input == "" {
			t.input = restore
		}
		t.mu.Unlock()
		t.notify.Error("Failed to send message")
		return nil, err
	}
	t.mu.Unlock()
	t.add(convID, *m)
	return m, nil
}

func (t *thread) close() {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.conv = nil
	t.messages = nil
	t.seen = make(map[int64]struct{})
	t.input = ""
	t.loading = false
	t.mu.Unlock()
	if sub != nil {
		_ = sub.Unsubscribe()
	}
}

func (t *thread) conversation() *model.Conversation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conv
}

func (t *thread) snapshot() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.messages)
}

func (t *thread) setInput(s string) {
	t.mu.Lock()
	t.input = s
	t.mu.Unlock()
}

func (t *thread) getInput() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.input
}

func (t *thread) busy() (loading, sending bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading, t.sending
}

func (t *thread) subscribed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sub != nil
}
