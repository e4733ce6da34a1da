package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/lost-and-found/internal/metrics"
	"github.com/iliyamo/lost-and-found/internal/model"
	"github.com/iliyamo/lost-and-found/internal/realtime"
	"github.com/iliyamo/lost-and-found/internal/repository"
)

// ItemFilter narrows ItemStore.List.
type ItemFilter = repository.ItemFilter

// NewItem is the form submitted when posting an item.
type NewItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// InFlight is the set of item ids with a claim change in progress. Callers
// use it to disable controls for those items.
type InFlight struct {
	mu  sync.Mutex
	ids map[int64]int
}

func (f *InFlight) add(id int64) {
	f.mu.Lock()
	if f.ids == nil {
		f.ids = make(map[int64]int)
	}
	f.ids[id]++
	f.mu.Unlock()
}

func (f *InFlight) remove(id int64) {
	f.mu.Lock()
	if f.ids[id] <= 1 {
		delete(f.ids, id)
	} else {
		f.ids[id]--
	}
	f.mu.Unlock()
}

// Has reports whether id is being updated.
func (f *InFlight) Has(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ids[id] > 0
}

// IDs returns the ids being updated in ascending order.
func (f *InFlight) IDs() []int64 {
	f.mu.Lock()
	out := make([]int64, 0, len(f.ids))
	for id := range f.ids {
		out = append(out, id)
	}
	f.mu.Unlock()
	slices.Sort(out)
	return out
}

// ItemStore manages posted items and their claim state. An item is
// resolved when claimed_by is set; the lost/found status never changes on
// claim.
type ItemStore struct {
	d        Deps
	inflight InFlight
}

func NewItemStore(d Deps) *ItemStore { return &ItemStore{d: d} }

// Create posts an unclaimed item on behalf of authorID.
func (s *ItemStore) Create(ctx context.Context, in NewItem, authorID string) (*model.Item, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	if in.Title == "" || in.Description == "" {
		return nil, newError(CodeInvalidInput, "title and description are required")
	}
	if !model.ValidItemStatus(in.Status) {
		return nil, newError(CodeInvalidInput, "status must be lost or found")
	}

	it := &model.Item{Title: in.Title, Description: in.Description, Status: in.Status, UserID: authorID}
	if err := s.d.Items.Create(ctx, it); err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	metrics.RecordItemOperation("create")
	s.d.publishChange(ctx, TableItems, realtime.Insert, it)
	return it, nil
}

// Get fetches one live item.
func (s *ItemStore) Get(ctx context.Context, id int64) (*model.Item, error) {
	it, err := s.d.Items.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(CodeNotFound, "item not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item: %w", err)
	}
	return it, nil
}

// List returns live items matching f, newest first.
func (s *ItemStore) List(ctx context.Context, f ItemFilter) ([]model.Item, error) {
	if f.Status != "" && !model.ValidItemStatus(f.Status) {
		return nil, newError(CodeInvalidInput, "status must be lost or found")
	}
	items, err := s.d.Items.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

// Claim records claimerID as the claimer of itemID. Concurrent claims are
// not reconciled; the last write wins.
func (s *ItemStore) Claim(ctx context.Context, itemID int64, claimerID string) (*model.Item, error) {
	if claimerID == "" {
		return nil, newError(CodeInvalidInput, "claimer is required")
	}
	return s.setClaimer(ctx, itemID, claimerID, "claim")
}

// Unclaim clears the claimer of itemID.
func (s *ItemStore) Unclaim(ctx context.Context, itemID int64) (*model.Item, error) {
	return s.setClaimer(ctx, itemID, "", "unclaim")
}

func (s *ItemStore) setClaimer(ctx context.Context, itemID int64, claimer, op string) (*model.Item, error) {
	s.inflight.add(itemID)
	defer s.inflight.remove(itemID)

	err := s.d.Items.SetClaimedBy(ctx, itemID, claimer)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(CodeNotFound, "item not found")
	}
	if err != nil {
		s.d.Log.Error("item "+op+" failed", zap.Int64("item_id", itemID), zap.Error(err))
		return nil, fmt.Errorf("failed to update item status: %w", err)
	}
	it, err := s.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	metrics.RecordItemOperation(op)
	s.d.publishChange(ctx, TableItems, realtime.Update, it)
	return it, nil
}

// Updating returns the ids with a claim change in flight.
func (s *ItemStore) Updating() []int64 { return s.inflight.IDs() }

// IsUpdating reports whether itemID has a claim change in flight.
func (s *ItemStore) IsUpdating(itemID int64) bool { return s.inflight.Has(itemID) }

// Activity is one entry of the dashboard's recent activity feed.
type Activity struct {
	ItemID    int64     `json:"item_id"`
	Type      string    `json:"type"` // lost, found or resolved
	Title     string    `json:"title"`
	User      string    `json:"user"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// DashboardStats aggregates the admin dashboard figures.
type DashboardStats struct {
	TotalItems         int64      `json:"total_items"`
	LostItems          int64      `json:"lost_items"`
	FoundItems         int64      `json:"found_items"`
	ResolvedItems      int64      `json:"resolved_items"`
	TotalUsers         int64      `json:"total_users"`
	TotalConversations int64      `json:"total_conversations"`
	TotalMessages      int64      `json:"total_messages"`
	RecentActivity     []Activity `json:"recent_activity"`
}

// RecentActivityLimit caps DashboardStats.RecentActivity.
const RecentActivityLimit = 10

// Stats computes the dashboard figures. TotalUsers counts distinct item
// posters.
func (s *ItemStore) Stats(ctx context.Context) (*DashboardStats, error) {
	c, err := s.d.Items.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	convs, err := s.d.Conversations.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}
	msgs, err := s.d.Messages.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	recent, err := s.d.Items.List(ctx, ItemFilter{IncludeClaimed: true, Limit: RecentActivityLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to load recent items: %w", err)
	}

	st := &DashboardStats{
		TotalItems:         c.Total,
		LostItems:          c.Lost,
		FoundItems:         c.Found,
		ResolvedItems:      c.Resolved,
		TotalUsers:         c.Posters,
		TotalConversations: convs,
		TotalMessages:      msgs,
		RecentActivity:     make([]Activity, 0, len(recent)),
	}
	for _, it := range recent {
		st.RecentActivity = append(st.RecentActivity, activityOf(it))
	}
	return st, nil
}

func activityOf(it model.Item) Activity {
	a := Activity{ItemID: it.ID, Title: it.Title, User: it.UserID, Status: it.Status, Timestamp: it.CreatedAt, Type: it.Status}
	if a.User == "" {
		a.User = "Unknown User"
	}
	if it.Claimed() {
		a.Status = "Claimed"
		a.Type = "resolved"
	}
	return a
}
