package service

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/lost-and-found/internal/model"
)

func TestSendAndLoad(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	convs := NewConversationStore(d)
	msgs := NewMessageStore(d)

	c, _, err := convs.FindOrCreate(ctx, nil, "student", "admin")
	if err != nil {
		t.Fatal(err)
	}
	for _, text := range []string{"hello", "anyone there?", "thanks"} {
		m, err := msgs.Send(ctx, c.ID, text, "student")
		if err != nil {
			t.Fatalf("send %q: %v", text, err)
		}
		if m.IsRead {
			t.Errorf("new message %d is read", m.ID)
		}
	}

	got, err := msgs.Load(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].Message != "hello" || got[2].Message != "thanks" {
		t.Fatalf("unexpected order: %+v", got)
	}

	if _, err := msgs.Send(ctx, c.ID, "   ", "student"); ErrorCode(err) != CodeInvalidInput {
		t.Errorf("blank message: got %v", err)
	}
}

func TestSendFailureKeepsText(t *testing.T) {
	d, _ := newTestDeps(t)
	d.DB.Close()

	_, err := NewMessageStore(d).Send(context.Background(), "c1", "lost my keys", "u1")
	var se *SendError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want *SendError", err)
	}
	if se.Text != "lost my keys" || se.ConversationID != "c1" {
		t.Errorf("unexpected send error: %+v", se)
	}
}

func TestSubscribeDeliversOncePerMessage(t *testing.T) {
	d, hub := newTestDeps(t)
	ctx := context.Background()
	c, _, err := NewConversationStore(d).FindOrCreate(ctx, nil, "student", "admin")
	if err != nil {
		t.Fatal(err)
	}
	msgs := NewMessageStore(d)

	var got []model.Message
	sub, err := msgs.Subscribe(ctx, c.ID, "admin", func(m model.Message) { got = append(got, m) })
	if err != nil {
		t.Fatal(err)
	}

	if _, err := msgs.Send(ctx, c.ID, "from student", "student"); err != nil {
		t.Fatal(err)
	}
	if _, err := msgs.Send(ctx, c.ID, "own echo", "admin"); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Message != "from student" {
		t.Fatalf("got %+v, want one message from student", got)
	}

	// Unrelated conversations are filtered out of the row feed.
	other, _, _ := NewConversationStore(d).FindOrCreate(ctx, nil, "someone", "admin")
	if _, err := msgs.Send(ctx, other.ID, "elsewhere", "someone"); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("message from another conversation delivered: %+v", got)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatal(err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("second unsubscribe: %v", err)
	}
	if n := hub.ChannelSubscribers(MessageChannel(c.ID)); n != 0 {
		t.Errorf("%d channel subscribers left", n)
	}
	if n := hub.TableSubscribers(TableMessages); n != 0 {
		t.Errorf("%d table subscribers left", n)
	}
	if _, err := msgs.Send(ctx, c.ID, "after", "student"); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("delivered after unsubscribe: %+v", got)
	}
}

func TestMarkReadOnlyFlagsOthers(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	c, _, _ := NewConversationStore(d).FindOrCreate(ctx, nil, "student", "admin")
	msgs := NewMessageStore(d)

	msgs.Send(ctx, c.ID, "q1", "student")
	msgs.Send(ctx, c.ID, "q2", "student")
	msgs.Send(ctx, c.ID, "a1", "admin")

	n, err := msgs.UnreadForConversation(ctx, c.ID, "admin")
	if err != nil || n != 2 {
		t.Fatalf("admin unread = %d, %v; want 2", n, err)
	}
	changed, err := msgs.MarkRead(ctx, c.ID, "admin")
	if err != nil || changed != 2 {
		t.Fatalf("MarkRead changed %d, %v; want 2", changed, err)
	}
	if n, _ := msgs.UnreadForConversation(ctx, c.ID, "student"); n != 1 {
		t.Errorf("student unread = %d, want 1", n)
	}
	if changed, _ := msgs.MarkRead(ctx, c.ID, "admin"); changed != 0 {
		t.Errorf("second MarkRead changed %d rows", changed)
	}
}

func TestUnreadByConversationAdminScope(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	auth := newTestAuth(t, d)
	admin := register(t, auth, "admin@example.com", model.RoleAdmin)
	student := register(t, auth, "student@example.com", model.RoleStudent)

	convs := NewConversationStore(d)
	msgs := NewMessageStore(d)

	support, err := convs.GetOrCreateSupport(ctx, student.ID)
	if err != nil {
		t.Fatal(err)
	}
	msgs.Send(ctx, support.ID, "help", student.ID)

	// A thread the admin started about an item: admins do not count it.
	item, err := NewItemStore(d).Create(ctx, NewItem{Title: "Wallet", Description: "Brown", Status: model.ItemFound}, student.ID)
	if err != nil {
		t.Fatal(err)
	}
	started, _, _ := convs.FindOrCreate(ctx, &item.ID, admin.ID, student.ID)
	msgs.Send(ctx, started.ID, "is this mine?", admin.ID)
	msgs.Send(ctx, started.ID, "describe it", student.ID)

	got, err := msgs.UnreadByConversation(ctx, admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[support.ID] != 1 {
		t.Errorf("admin unread = %v, want only the support thread", got)
	}

	got, err = msgs.UnreadByConversation(ctx, student.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[started.ID] != 1 {
		t.Errorf("student unread = %v", got)
	}

	total, err := msgs.UnreadTotal(ctx, admin.ID)
	if err != nil || total != 1 {
		t.Errorf("admin total = %d, %v", total, err)
	}
	if n, _ := msgs.UnreadForItem(ctx, item.ID, student.ID); n != 1 {
		t.Errorf("item unread for student = %d, want 1", n)
	}
}
