package chat

import (
	"context"
	"maps"
	"sync"
)

// UnreadCounter is the part of service.MessageStore the badge uses.
type UnreadCounter interface {
	UnreadByConversation(ctx context.Context, readerID string) (map[string]int, error)
}

// UnreadBadge holds the unread counts of the signed-in user.
type UnreadBadge struct {
	counter UnreadCounter
	notify  Notifier

	mu     sync.Mutex
	total  int
	byConv map[string]int
}

func NewUnreadBadge(counter UnreadCounter, n Notifier) *UnreadBadge {
	return &UnreadBadge{counter: counter, notify: orNop(n), byConv: map[string]int{}}
}

// Refresh reloads the counts for userID. On failure the previous counts
// are kept.
func (b *UnreadBadge) Refresh(ctx context.Context, userID string) error {
	counts, err := b.counter.UnreadByConversation(ctx, userID)
	if err != nil {
		b.notify.Error("Failed to load unread messages")
		return err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	b.mu.Lock()
	b.total = total
	b.byConv = counts
	b.mu.Unlock()
	return nil
}

func (b *UnreadBadge) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// For returns the unread count of one conversation.
func (b *UnreadBadge) For(conversationID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byConv[conversationID]
}

func (b *UnreadBadge) Counts() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.byConv)
}

// Reset zeroes the badge, for example on sign-out.
func (b *UnreadBadge) Reset() {
	b.mu.Lock()
	b.total = 0
	b.byConv = map[string]int{}
	b.mu.Unlock()
}
