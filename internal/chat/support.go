package chat

import (
	"context"
	"slices"
	"sync"

	"github.com/iliyamo/lost-and-found/internal/model"
	"github.com/iliyamo/lost-and-found/internal/realtime"
	"github.com/iliyamo/lost-and-found/internal/service"
)

// SupportInbox is the admin's paginated list of support conversations with
// the selected conversation open beside it. New support conversations show
// up live on the first page.
type SupportInbox struct {
	convs  ConversationService
	notify Notifier
	*thread

	// OnNewConversation, when set, is called for support conversations
	// created while the inbox is open.
	OnNewConversation func(model.SupportConversation)

	mu          sync.Mutex
	page        int
	pageSize    int
	total       int
	totalPages  int
	list        []model.SupportConversation
	loadingList bool
	inboxSub    realtime.Subscription
	arrivedIDs  map[string]struct{} // conversations counted since the subscription started
}

func NewSupportInbox(convs ConversationService, msgs MessageService, adminID string, n Notifier, onMessage func(model.Message)) *SupportInbox {
	t := newThread(msgs, adminID, n)
	t.onMessage = onMessage
	return &SupportInbox{
		convs:    convs,
		notify:   t.notify,
		thread:   t,
		page:     service.DefaultPage,
		pageSize: service.DefaultPageSize,
	}
}

// Open loads the current page and starts following new conversations.
func (s *SupportInbox) Open(ctx context.Context) error {
	if err := s.load(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	following := s.inboxSub != nil
	s.mu.Unlock()
	if following {
		return nil
	}

	s.mu.Lock()
	s.arrivedIDs = make(map[string]struct{})
	s.mu.Unlock()
	sub, err := s.convs.SubscribeSupport(ctx, s.arrived)
	if err != nil {
		s.notify.Error("Live updates are unavailable for the inbox")
		return nil
	}
	s.mu.Lock()
	s.inboxSub = sub
	s.mu.Unlock()
	return nil
}

func (s *SupportInbox) arrived(c model.SupportConversation) {
	s.mu.Lock()
	if _, dup := s.arrivedIDs[c.ID]; dup || s.arrivedIDs == nil {
		s.mu.Unlock()
		return
	}
	s.arrivedIDs[c.ID] = struct{}{}
	for _, have := range s.list {
		if have.ID == c.ID {
			s.mu.Unlock()
			return
		}
	}
	s.total++
	s.totalPages = pages(s.total, s.pageSize)
	if s.page == 1 {
		s.list = append([]model.SupportConversation{c}, s.list...)
		if len(s.list) > s.pageSize {
			s.list = s.list[:s.pageSize]
		}
	}
	s.mu.Unlock()

	s.notify.Info("New support conversation from " + senderName(c.SenderProfile))
	if s.OnNewConversation != nil {
		s.OnNewConversation(c)
	}
}

func senderName(p model.UserSummary) string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Email
}

func pages(total, size int) int { return (total + size - 1) / size }

func (s *SupportInbox) load(ctx context.Context) error {
	s.mu.Lock()
	page, size := s.page, s.pageSize
	s.loadingList = true
	s.mu.Unlock()

	res, err := s.convs.ListAdminSupport(ctx, page, size)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingList = false
	if err != nil {
		s.notify.Error("Failed to load support conversations")
		return err
	}
	s.list = res.Conversations
	s.total = res.TotalCount
	s.totalPages = res.TotalPages
	s.page = res.CurrentPage
	return nil
}

// Select opens conv, marks the student's messages read and follows it live.
func (s *SupportInbox) Select(ctx context.Context, conv model.SupportConversation) error {
	c := conv.Conversation
	return s.open(ctx, &c, true)
}

// SendToStudent posts the compose box to the selected conversation.
func (s *SupportInbox) SendToStudent(ctx context.Context) (*model.Message, error) {
	m, err := s.send(ctx)
	if err != nil || m == nil {
		return m, err
	}
	s.mu.Lock()
	for i := range s.list {
		if s.list[i].ID == m.ConversationID {
			s.list[i].LatestMessage = model.LatestMessage{Message: m.Message, CreatedAt: m.CreatedAt}
			s.list[i].MessageCount++
		}
	}
	s.mu.Unlock()
	return m, nil
}

// GoToPage loads page p, clamped to the known page range.
func (s *SupportInbox) GoToPage(ctx context.Context, p int) error {
	s.mu.Lock()
	last := max(s.totalPages, 1)
	p = min(max(p, 1), last)
	s.page = p
	s.mu.Unlock()
	return s.load(ctx)
}

func (s *SupportInbox) NextPage(ctx context.Context) error {
	s.mu.Lock()
	p := s.page + 1
	s.mu.Unlock()
	return s.GoToPage(ctx, p)
}

func (s *SupportInbox) PreviousPage(ctx context.Context) error {
	s.mu.Lock()
	p := s.page - 1
	s.mu.Unlock()
	return s.GoToPage(ctx, p)
}

// ChangePageSize switches to n conversations per page and returns to the
// first page.
func (s *SupportInbox) ChangePageSize(ctx context.Context, n int) error {
	if n < 1 {
		n = service.DefaultPageSize
	}
	s.mu.Lock()
	s.pageSize = n
	s.page = 1
	s.mu.Unlock()
	return s.load(ctx)
}

// Close releases both subscriptions.
func (s *SupportInbox) Close() {
	s.close()
	s.mu.Lock()
	sub := s.inboxSub
	s.inboxSub = nil
	s.arrivedIDs = nil
	s.mu.Unlock()
	if sub != nil {
		_ = sub.Unsubscribe()
	}
}

// Page is the inbox state shown to the admin.
type Page struct {
	Conversations []model.SupportConversation
	CurrentPage   int
	PageSize      int
	TotalCount    int
	TotalPages    int
	Loading       bool
}

func (s *SupportInbox) Page() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Page{
		Conversations: slices.Clone(s.list),
		CurrentPage:   s.page,
		PageSize:      s.pageSize,
		TotalCount:    s.total,
		TotalPages:    s.totalPages,
		Loading:       s.loadingList,
	}
}

func (s *SupportInbox) Selected() *model.Conversation { return s.conversation() }
func (s *SupportInbox) Messages() []model.Message    { return s.snapshot() }
func (s *SupportInbox) SetInput(v string)            { s.setInput(v) }
func (s *SupportInbox) Input() string                { return s.getInput() }
