// Package realtime carries live updates between writers and subscribers.
//
// Two delivery paths exist. A Broadcaster fans out explicit events on named
// channels (for example "message_<conversation id>"). A RowFeed announces
// row changes per table after they were committed. Subscribers must treat
// both paths as at-least-once and de-duplicate by row identity.
package realtime

import (
	"context"
	"encoding/json"
)

// Row change kinds.
const (
	Insert = "INSERT"
	Update = "UPDATE"
)

// Event is one delivery on either path. Broadcast events carry Channel and
// Kind (the event name); row changes carry Table and Kind.
type Event struct {
	Channel string          `json:"channel,omitempty"`
	Kind    string          `json:"kind"`
	Table   string          `json:"table,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error { return json.Unmarshal(e.Payload, v) }

// Handler receives events on a subscriber goroutine.
type Handler func(Event)

// Subscription is an active registration. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe() error
}

// Broadcaster publishes and subscribes to named channels.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel, kind string, payload any) error
	SubscribeBroadcast(ctx context.Context, channel string, h Handler) (Subscription, error)
}

// RowFeed publishes and subscribes to committed row changes of a table.
type RowFeed interface {
	PublishChange(ctx context.Context, table, kind string, row any) error
	SubscribeChanges(ctx context.Context, table string, h Handler) (Subscription, error)
}

func newEvent(channel, kind, table string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Channel: channel, Kind: kind, Table: table, Payload: b}, nil
}

// subscriptionFunc adapts a close function to Subscription.
type subscriptionFunc func() error

func (f subscriptionFunc) Unsubscribe() error { return f() }
