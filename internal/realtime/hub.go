package realtime

import (
	"context"
	"slices"
	"sync"
)

// Hub is an in-process Broadcaster and RowFeed. Delivery is synchronous on
// the publishing goroutine, in subscription order. It serves single-node
// deployments and tests.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	topics map[string]map[int]Handler
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[int]Handler)}
}

func (h *Hub) subscribe(topic string, fn Handler) Subscription {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[int]Handler)
	}
	h.topics[topic][id] = fn
	h.mu.Unlock()

	var once sync.Once
	return subscriptionFunc(func() error {
		once.Do(func() {
			h.mu.Lock()
			delete(h.topics[topic], id)
			if len(h.topics[topic]) == 0 {
				delete(h.topics, topic)
			}
			h.mu.Unlock()
		})
		return nil
	})
}

func (h *Hub) publish(topic string, ev Event) {
	h.mu.RLock()
	ids := make([]int, 0, len(h.topics[topic]))
	for id := range h.topics[topic] {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, h.topics[topic][id])
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// ChannelSubscribers returns the number of live registrations on channel.
func (h *Hub) ChannelSubscribers(channel string) int { return h.count("channel:" + channel) }

// TableSubscribers returns the number of live registrations on table.
func (h *Hub) TableSubscribers(table string) int { return h.count("table:" + table) }

func (h *Hub) count(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) Broadcast(_ context.Context, channel, kind string, payload any) error {
	ev, err := newEvent(channel, kind, "", payload)
	if err != nil {
		return err
	}
	h.publish("channel:"+channel, ev)
	return nil
}

func (h *Hub) SubscribeBroadcast(_ context.Context, channel string, fn Handler) (Subscription, error) {
	return h.subscribe("channel:"+channel, fn), nil
}

func (h *Hub) PublishChange(_ context.Context, table, kind string, row any) error {
	ev, err := newEvent("", kind, table, row)
	if err != nil {
		return err
	}
	h.publish("table:"+table, ev)
	return nil
}

func (h *Hub) SubscribeChanges(_ context.Context, table string, fn Handler) (Subscription, error) {
	return h.subscribe("table:"+table, fn), nil
}
