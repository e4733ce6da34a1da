package chat

import (
	"context"
	"slices"
	"sync"

	"github.com/iliyamo/lost-and-found/internal/model"
)

// AdminChat lets an admin review every conversation about one item and
// answer in the selected one.
type AdminChat struct {
	convs  ConversationService
	notify Notifier
	*thread

	mu            sync.Mutex
	item          *model.Item
	conversations []model.Conversation
}

func NewAdminChat(convs ConversationService, msgs MessageService, adminID string, n Notifier, onMessage func(model.Message)) *AdminChat {
	t := newThread(msgs, adminID, n)
	t.onMessage = onMessage
	return &AdminChat{convs: convs, notify: t.notify, thread: t}
}

// OpenConversations loads the conversations about item. The previously
// selected conversation is closed.
func (a *AdminChat) OpenConversations(ctx context.Context, item model.Item) ([]model.Conversation, error) {
	a.close()
	convs, err := a.convs.ListForItem(ctx, item.ID)
	if err != nil {
		a.notify.Error("Failed to load conversations")
		return nil, err
	}
	a.mu.Lock()
	a.item = &item
	a.conversations = convs
	a.mu.Unlock()
	if len(convs) == 0 {
		a.notify.Info("No one has asked about this item yet")
	}
	return slices.Clone(convs), nil
}

// Select opens conv, marks its messages read and follows it live.
func (a *AdminChat) Select(ctx context.Context, conv model.Conversation) error {
	return a.open(ctx, &conv, true)
}

func (a *AdminChat) Send(ctx context.Context) (*model.Message, error) { return a.send(ctx) }

// Close releases the subscription and forgets the item.
func (a *AdminChat) Close() {
	a.close()
	a.mu.Lock()
	a.item = nil
	a.conversations = nil
	a.mu.Unlock()
}

func (a *AdminChat) Item() *model.Item {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.item
}

func (a *AdminChat) Conversations() []model.Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.conversations)
}

func (a *AdminChat) Selected() *model.Conversation { return a.conversation() }
func (a *AdminChat) Messages() []model.Message    { return a.snapshot() }
func (a *AdminChat) SetInput(s string)            { a.setInput(s) }
func (a *AdminChat) Input() string                { return a.getInput() }
