package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/lost-and-found/internal/metrics"
	"github.com/iliyamo/lost-and-found/internal/model"
	"github.com/iliyamo/lost-and-found/internal/realtime"
	"github.com/iliyamo/lost-and-found/internal/repository"
)

// Default support inbox paging.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// ConversationStore finds, creates and enriches conversations.
type ConversationStore struct {
	d Deps
}

func NewConversationStore(d Deps) *ConversationStore { return &ConversationStore{d: d} }

// FindOrCreate returns the conversation for the exact (item, sender,
// receiver) triple, creating it when missing. created reports whether this
// call inserted the row. Concurrent callers converge on one row: a losing
// insert re-reads the winner.
func (s *ConversationStore) FindOrCreate(ctx context.Context, itemID *int64, senderID, receiverID string) (conv *model.Conversation, created bool, err error) {
	if senderID == "" || receiverID == "" {
		return nil, false, newError(CodeInvalidInput, "sender and receiver are required")
	}
	c, err := s.d.Conversations.Find(ctx, itemID, senderID, receiverID)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up conversation: %w", err)
	}

	c = &model.Conversation{ItemID: itemID, SenderID: senderID, ReceiverID: receiverID}
	err = s.d.Conversations.Create(ctx, c)
	if errors.Is(err, repository.ErrConflict) {
		c, err = s.d.Conversations.Find(ctx, itemID, senderID, receiverID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to re-read conversation: %w", err)
		}
		return c, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create conversation: %w", err)
	}

	kind := "item"
	if c.IsSupport() {
		kind = "support"
	}
	metrics.ConversationsCreated.WithLabelValues(kind).Inc()
	s.d.Log.Info("conversation created", zap.String("conversation_id", c.ID), zap.String("kind", kind))
	s.d.publishChange(ctx, TableConversations, realtime.Insert, c)
	return c, true, nil
}

// Get fetches one live conversation.
func (s *ConversationStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	c, err := s.d.Conversations.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(CodeNotFound, "conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return c, nil
}

// profiles resolves ids to summaries with one batched lookup. Unknown ids
// map to model.UnknownUser.
func (s *ConversationStore) profiles(ctx context.Context, ids []string) (map[string]model.UserSummary, error) {
	out := make(map[string]model.UserSummary, len(ids))
	uniq := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			out[id] = model.UnknownUser(id)
			uniq = append(uniq, id)
		}
	}
	users, err := s.d.Users.ListByIDs(ctx, uniq)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u.Summary()
	}
	return out, nil
}

// ListForItem returns the conversations about itemID, newest first, each
// with its sender's identity.
func (s *ConversationStore) ListForItem(ctx context.Context, itemID int64) ([]model.Conversation, error) {
	convs, err := s.d.Conversations.ListByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.SenderID
	}
	profiles, err := s.profiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load senders: %w", err)
	}
	for i := range convs {
		p := profiles[convs[i].SenderID]
		convs[i].Sender = &p
	}
	return convs, nil
}

// ListForUser returns the conversations userID takes part in, newest first,
// each with a summary of its item.
func (s *ConversationStore) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	convs, err := s.d.Conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	return convs, nil
}

// CountDistinctContacts counts the distinct people who asked about itemID.
func (s *ConversationStore) CountDistinctContacts(ctx context.Context, itemID int64) (int, error) {
	n, err := s.d.Conversations.CountDistinctContacts(ctx, itemID)
	if err != nil {
		return 0, fmt.Errorf("failed to count contacts: %w", err)
	}
	return n, nil
}

// SupportPage is one page of the admin support inbox.
type SupportPage struct {
	Conversations []model.SupportConversation `json:"conversations"`
	TotalCount    int                         `json:"total_count"`
	TotalPages    int                         `json:"total_pages"`
	CurrentPage   int                         `json:"current_page"`
}

// ListAdminSupport returns one page of support conversations, newest first,
// each with its sender's profile, latest message and message count.
// page < 1 is treated as 1 and pageSize < 1 as DefaultPageSize.
func (s *ConversationStore) ListAdminSupport(ctx context.Context, page, pageSize int) (*SupportPage, error) {
	if page < 1 {
		page = DefaultPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	total, err := s.d.Conversations.CountSupport(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count support conversations: %w", err)
	}
	convs, err := s.d.Conversations.ListSupport(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load support conversations: %w", err)
	}

	ids := make([]string, len(convs))
	senders := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
		senders[i] = c.SenderID
	}
	msgs, err := s.d.Messages.ListByConversations(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load support messages: %w", err)
	}
	byConv := make(map[string][]model.Message, len(convs))
	for _, m := range msgs {
		byConv[m.ConversationID] = append(byConv[m.ConversationID], m)
	}
	profiles, err := s.profiles(ctx, senders)
	if err != nil {
		return nil, fmt.Errorf("failed to load senders: %w", err)
	}

	out := &SupportPage{
		Conversations: make([]model.SupportConversation, 0, len(convs)),
		TotalCount:    total,
		TotalPages:    (total + pageSize - 1) / pageSize,
		CurrentPage:   page,
	}
	for _, c := range convs {
		out.Conversations = append(out.Conversations, summarizeSupport(c, profiles[c.SenderID], byConv[c.ID]))
	}
	return out, nil
}

func summarizeSupport(c model.Conversation, sender model.UserSummary, msgs []model.Message) model.SupportConversation {
	sc := model.SupportConversation{
		Conversation:  c,
		SenderProfile: sender,
		LatestMessage: model.LatestMessage{Message: model.NoMessagesYet, CreatedAt: c.CreatedAt},
		MessageCount:  len(msgs),
	}
	if n := len(msgs); n > 0 {
		last := msgs[n-1]
		sc.LatestMessage = model.LatestMessage{Message: last.Message, CreatedAt: last.CreatedAt}
	}
	return sc
}

// GetOrCreateSupport returns the support conversation between studentID and
// the admin, creating it on first contact.
func (s *ConversationStore) GetOrCreateSupport(ctx context.Context, studentID string) (*model.Conversation, error) {
	adminID, err := adminUserID(ctx, s.d.Users)
	if err != nil {
		return nil, err
	}
	c, _, err := s.FindOrCreate(ctx, nil, studentID, adminID)
	return c, err
}

// supportLookupTimeout bounds the sender lookup done for each new support
// conversation on the feed goroutine.
var supportLookupTimeout = 5 * time.Second

// SubscribeSupport calls onNew for every support conversation created after
// the call, enriched with its sender's profile.
func (s *ConversationStore) SubscribeSupport(ctx context.Context, onNew func(model.SupportConversation)) (realtime.Subscription, error) {
	if s.d.Feed == nil {
		return nil, errors.New("realtime row feed is not configured")
	}
	return s.d.Feed.SubscribeChanges(ctx, TableConversations, func(ev realtime.Event) {
		if ev.Kind != realtime.Insert {
			return
		}
		var c model.Conversation
		if err := ev.Decode(&c); err != nil {
			s.d.Log.Warn("undecodable conversation event", zap.Error(err))
			return
		}
		if !c.IsSupport() {
			return
		}
		lookupCtx, cancel := context.WithTimeout(context.Background(), supportLookupTimeout)
		profiles, err := s.profiles(lookupCtx, []string{c.SenderID})
		cancel()
		if err != nil {
			s.d.Log.Warn("sender lookup failed", zap.String("conversation_id", c.ID), zap.Error(err))
			profiles = map[string]model.UserSummary{c.SenderID: model.UnknownUser(c.SenderID)}
		}
		onNew(summarizeSupport(c, profiles[c.SenderID], nil))
	})
}
