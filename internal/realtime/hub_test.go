package realtime

import (
	"context"
	"testing"
)

type row struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	var got []Event
	sub, err := h.SubscribeBroadcast(ctx, "message_1", func(e Event) { got = append(got, e) })
	if err != nil {
		t.Fatalf("SubscribeBroadcast: %v", err)
	}
	h.SubscribeBroadcast(ctx, "message_2", func(e Event) { t.Error("delivered to wrong channel") })

	if err := h.Broadcast(ctx, "message_1", "new_message", row{ID: 1, Text: "hi"}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	var r row
	if err := got[0].Decode(&r); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if r.ID != 1 || got[0].Kind != "new_message" || got[0].Channel != "message_1" {
		t.Errorf("unexpected event %+v / %+v", got[0], r)
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	h.Broadcast(ctx, "message_1", "new_message", row{ID: 2})
	if len(got) != 1 {
		t.Errorf("expected no delivery after Unsubscribe, got %d events", len(got))
	}
	if n := h.ChannelSubscribers("message_1"); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
}

func TestHubRowChanges(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	var tables []string
	h.SubscribeChanges(ctx, "messages", func(e Event) { tables = append(tables, e.Table+"/"+e.Kind) })
	h.PublishChange(ctx, "messages", Insert, row{ID: 1})
	h.PublishChange(ctx, "conversations", Insert, row{ID: 2})

	if len(tables) != 1 || tables[0] != "messages/INSERT" {
		t.Errorf("unexpected deliveries %v", tables)
	}
	if n := h.TableSubscribers("messages"); n != 1 {
		t.Errorf("expected 1 subscriber, got %d", n)
	}
}

func TestHubUnsubscribeFromHandler(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	var sub Subscription
	calls := 0
	sub, _ = h.SubscribeBroadcast(ctx, "c", func(Event) {
		calls++
		sub.Unsubscribe()
	})
	h.Broadcast(ctx, "c", "x", nil)
	h.Broadcast(ctx, "c", "x", nil)
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
