package chat

import (
	"context"
	"errors"

	"github.com/iliyamo/lost-and-found/internal/model"
)

// UserChat is the dialog a user opens to message the poster of an item, or
// the admins through the support channel.
type UserChat struct {
	convs  ConversationService
	notify Notifier
	*thread
}

// NewUserChat returns a closed chat for selfID. onMessage may be nil.
func NewUserChat(convs ConversationService, msgs MessageService, selfID string, n Notifier, onMessage func(model.Message)) *UserChat {
	t := newThread(msgs, selfID, n)
	t.onMessage = onMessage
	return &UserChat{convs: convs, notify: t.notify, thread: t}
}

// Contact opens the conversation with the poster of item, creating it on
// first contact.
func (c *UserChat) Contact(ctx context.Context, item model.Item) error {
	switch {
	case item.UserID == "":
		c.notify.Error("This item has no poster to contact")
		return errors.New("item has no poster")
	case item.UserID == c.self:
		c.notify.Info("You posted this item")
		return errors.New("cannot contact yourself")
	}
	conv, _, err := c.convs.FindOrCreate(ctx, &item.ID, c.self, item.UserID)
	if err != nil {
		c.notify.Error("Failed to start conversation")
		return err
	}
	return c.open(ctx, conv, true)
}

// ContactSupport opens the user's support conversation with the admins.
func (c *UserChat) ContactSupport(ctx context.Context) error {
	conv, err := c.convs.GetOrCreateSupport(ctx, c.self)
	if err != nil {
		c.notify.Error("Support is unavailable right now")
		return err
	}
	return c.open(ctx, conv, true)
}

// Send posts the compose box to the open conversation.
func (c *UserChat) Send(ctx context.Context) (*model.Message, error) { return c.send(ctx) }

// Close releases the subscription and clears the dialog.
func (c *UserChat) Close() { c.close() }

func (c *UserChat) Conversation() *model.Conversation { return c.conversation() }
func (c *UserChat) Messages() []model.Message        { return c.snapshot() }
func (c *UserChat) SetInput(s string)                { c.setInput(s) }
func (c *UserChat) Input() string                    { return c.getInput() }

// Open reports whether the dialog shows a conversation.
func (c *UserChat) Open() bool { return c.conversation() != nil }
