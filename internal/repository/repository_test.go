package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/lost-and-found/internal/database"
	"github.com/iliyamo/lost-and-found/internal/model"
)

func newItem(t *testing.T, repo *ItemRepo, owner, status string) *model.Item {
	t.Helper()
	it := &model.Item{Title: "Wallet", Description: "Brown leather", Status: status, UserID: owner}
	if err := repo.Create(context.Background(), it); err != nil {
		t.Fatalf("Create item: %v", err)
	}
	return it
}

func newConversation(t *testing.T, repo *ConversationRepo, itemID *int64, sender, receiver string) *model.Conversation {
	t.Helper()
	c := &model.Conversation{ItemID: itemID, SenderID: sender, ReceiverID: receiver}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("Create conversation: %v", err)
	}
	return c
}

func TestUserCreateAndLookup(t *testing.T) {
	db := database.NewTestDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	u, err := repo.Create(ctx, " Alice@Example.com ", "secret1",
		model.Metadata{FullName: "Alice", Role: model.RoleStudent},
		model.AppMetadata{Role: model.RoleStudent, Status: model.StatusActive}, 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("expected normalized email, got %q", u.Email)
	}

	got, err := repo.GetByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if got.ID != u.ID || got.Metadata.FullName != "Alice" || got.Role() != model.RoleStudent {
		t.Errorf("unexpected user %+v", got)
	}

	if _, err := repo.Create(ctx, "alice@example.com", "secret1", model.Metadata{}, model.AppMetadata{}, 4); !errors.Is(err, ErrEmailExists) {
		t.Errorf("expected ErrEmailExists, got %v", err)
	}
	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUserListByIDs(t *testing.T) {
	db := database.NewTestDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	a, _ := repo.Create(ctx, "a@example.com", "secret1", model.Metadata{}, model.AppMetadata{}, 4)
	b, _ := repo.Create(ctx, "b@example.com", "secret1", model.Metadata{}, model.AppMetadata{}, 4)
	repo.Create(ctx, "c@example.com", "secret1", model.Metadata{}, model.AppMetadata{}, 4)

	users, err := repo.ListByIDs(ctx, []string{a.ID, b.ID, "ghost"})
	if err != nil {
		t.Fatalf("ListByIDs: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}
}

func TestUserUpdateAppMetadata(t *testing.T) {
	db := database.NewTestDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	u, _ := repo.Create(ctx, "a@example.com", "secret1", model.Metadata{}, model.AppMetadata{}, 4)
	if err := repo.UpdateAppMetadata(ctx, u.ID, model.AppMetadata{Banned: true, BanReason: "spam"}); err != nil {
		t.Fatalf("UpdateAppMetadata: %v", err)
	}
	got, _ := repo.GetByID(ctx, u.ID)
	if !got.AppMetadata.Banned || got.AppMetadata.BanReason != "spam" {
		t.Errorf("app metadata not persisted: %+v", got.AppMetadata)
	}
	if err := repo.UpdateAppMetadata(ctx, "ghost", model.AppMetadata{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRefreshTokens(t *testing.T) {
	db := database.NewTestDB(t)
	repo := NewTokenRepo(db)
	ctx := context.Background()

	if err := repo.StoreRefresh(ctx, "u1", "hash", now().Add(time.Hour)); err != nil {
		t.Fatalf("StoreRefresh: %v", err)
	}
	uid, err := repo.ValidateRefresh(ctx, "hash")
	if err != nil || uid != "u1" {
		t.Fatalf("ValidateRefresh = %q, %v", uid, err)
	}
	if err := repo.RevokeByHash(ctx, "hash"); err != nil {
		t.Fatalf("RevokeByHash: %v", err)
	}
	if _, err := repo.ValidateRefresh(ctx, "hash"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected revoked token to be rejected, got %v", err)
	}

	repo.StoreRefresh(ctx, "u1", "old", now().Add(-time.Minute))
	if _, err := repo.ValidateRefresh(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected expired token to be rejected, got %v", err)
	}
}

func TestItemClaimAndList(t *testing.T) {
	db := database.NewTestDB(t)
	repo := NewItemRepo(db)
	ctx := context.Background()

	lost := newItem(t, repo, "u1", model.ItemLost)
	newItem(t, repo, "u2", model.ItemFound)

	if err := repo.SetClaimedBy(ctx, lost.ID, "u3"); err != nil {
		t.Fatalf("SetClaimedBy: %v", err)
	}
	got, _ := repo.GetByID(ctx, lost.ID)
	if got.ClaimedBy != "u3" || got.Status != model.ItemLost {
		t.Errorf("expected claimed_by u3 with status lost, got %+v", got)
	}

	open, _ := repo.List(ctx, ItemFilter{})
	if len(open) != 1 {
		t.Errorf("expected 1 unclaimed item, got %d", len(open))
	}
	all, _ := repo.List(ctx, ItemFilter{IncludeClaimed: true})
	if len(all) != 2 {
		t.Errorf("expected 2 items, got %d", len(all))
	}

	if err := repo.SetClaimedBy(ctx, lost.ID, ""); err != nil {
		t.Fatalf("clear claimed_by: %v", err)
	}
	got, _ = repo.GetByID(ctx, lost.ID)
	if got.Claimed() {
		t.Error("expected item to be unclaimed")
	}
	if err := repo.SetClaimedBy(ctx, 999, "u3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestItemCounts(t *testing.T) {
	db := database.NewTestDB(t)
	repo := NewItemRepo(db)
	ctx := context.Background()

	empty, err := repo.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts on empty table: %v", err)
	}
	if empty.Total != 0 {
		t.Errorf("expected 0 items, got %d", empty.Total)
	}

	a := newItem(t, repo, "u1", model.ItemLost)
	newItem(t, repo, "u1", model.ItemFound)
	newItem(t, repo, "u2", model.ItemFound)
	repo.SetClaimedBy(ctx, a.ID, "u3")

	c, err := repo.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	want := ItemCounts{Total: 3, Lost: 1, Found: 2, Resolved: 1, Posters: 2}
	if c != want {
		t.Errorf("Counts = %+v, want %+v", c, want)
	}
}

func TestConversationUniqueTriple(t *testing.T) {
	db := database.NewTestDB(t)
	repo := NewConversationRepo(db)
	ctx := context.Background()
	item := int64(7)

	first := newConversation(t, repo, &item, "s", "r")
	dup := &model.Conversation{ItemID: &item, SenderID: "s", ReceiverID: "r"}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// A second support thread between the same pair is also rejected.
	newConversation(t, repo, nil, "s", "r")
	if err := repo.Create(ctx, &model.Conversation{SenderID: "s", ReceiverID: "r"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for support duplicate, got %v", err)
	}

	got, err := repo.Find(ctx, &item, "s", "r")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("Find returned %s, want %s", got.ID, first.ID)
	}
	if _, err := repo.Find(ctx, &item, "r", "s"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for reversed pair, got %v", err)
	}
}

func TestConversationSupportPaging(t *testing.T) {
	db := database.NewTestDB(t)
	repo := NewConversationRepo(db)
	ctx := context.Background()
	item := int64(1)

	for _, s := range []string{"a", "b", "c"} {
		newConversation(t, repo, nil, s, "admin")
	}
	newConversation(t, repo, &item, "a", "owner")

	n, err := repo.CountSupport(ctx)
	if err != nil || n != 3 {
		t.Fatalf("CountSupport = %d, %v", n, err)
	}
	first, err := repo.ListSupport(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListSupport: %v", err)
	}
	second, _ := repo.ListSupport(ctx, 2, 2)
	if len(first) != 2 || len(second) != 1 {
		t.Fatalf("expected pages of 2 and 1, got %d and %d", len(first), len(second))
	}
	seen := map[string]bool{}
	for _, c := range append(first, second...) {
		if c.ItemID != nil {
			t.Errorf("item conversation %s listed as support", c.ID)
		}
		seen[c.SenderID] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected every sender once across pages, got %v", seen)
	}
}

func TestConversationListForUserIncludesItem(t *testing.T) {
	db := database.NewTestDB(t)
	items := NewItemRepo(db)
	repo := NewConversationRepo(db)
	ctx := context.Background()

	it := newItem(t, items, "owner", model.ItemFound)
	newConversation(t, repo, &it.ID, "me", "owner")
	newConversation(t, repo, nil, "me", "admin")

	convs, err := repo.ListForUser(ctx, "me")
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	var withItem int
	for _, c := range convs {
		if c.Item != nil {
			withItem++
			if c.Item.Title != "Wallet" {
				t.Errorf("unexpected item summary %+v", c.Item)
			}
		}
	}
	if withItem != 1 {
		t.Errorf("expected one conversation with an item, got %d", withItem)
	}

	n, _ := repo.CountDistinctContacts(ctx, it.ID)
	if n != 1 {
		t.Errorf("expected 1 distinct contact, got %d", n)
	}
}

func TestMessagesOrderAndMarkRead(t *testing.T) {
	db := database.NewTestDB(t)
	convs := NewConversationRepo(db)
	repo := NewMessageRepo(db)
	ctx := context.Background()

	c := newConversation(t, convs, nil, "student", "admin")
	for _, m := range []struct{ text, author string }{{"hi", "student"}, {"hello", "admin"}, {"thanks", "student"}} {
		if err := repo.Create(ctx, &model.Message{ConversationID: c.ID, Message: m.text, UserID: m.author}); err != nil {
			t.Fatalf("Create message: %v", err)
		}
	}

	msgs, err := repo.ListByConversation(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListByConversation: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Message != "hi" || msgs[2].Message != "thanks" {
		t.Fatalf("unexpected order: %+v", msgs)
	}

	n, _ := repo.CountUnread(ctx, c.ID, "admin")
	if n != 2 {
		t.Errorf("expected 2 unread for admin, got %d", n)
	}
	changed, err := repo.MarkRead(ctx, c.ID, "admin")
	if err != nil || changed != 2 {
		t.Fatalf("MarkRead = %d, %v", changed, err)
	}
	changed, _ = repo.MarkRead(ctx, c.ID, "admin")
	if changed != 0 {
		t.Errorf("second MarkRead changed %d rows", changed)
	}
	n, _ = repo.CountUnread(ctx, c.ID, "student")
	if n != 1 {
		t.Errorf("expected student's unread to be untouched, got %d", n)
	}
}

func TestSoftDeleteAndRestoreByUser(t *testing.T) {
	db := database.NewTestDB(t)
	items := NewItemRepo(db)
	convs := NewConversationRepo(db)
	msgs := NewMessageRepo(db)
	ctx := context.Background()

	mine := newItem(t, items, "bad", model.ItemLost)
	other := newItem(t, items, "good", model.ItemFound)
	manual := newItem(t, items, "bad", model.ItemFound)
	c := newConversation(t, convs, &other.ID, "bad", "good")
	msgs.Create(ctx, &model.Message{ConversationID: c.ID, Message: "original", UserID: "bad"})

	// An item deleted by a moderator beforehand must stay deleted.
	if _, err := db.Exec("UPDATE items SET deleted_at=?, deleted_by='moderator' WHERE id=?", now(), manual.ID); err != nil {
		t.Fatalf("manual delete: %v", err)
	}

	withTx(t, db, func(tx *sql.Tx) {
		if n, err := items.SoftDeleteByUserTx(ctx, tx, "bad", model.CascadeMarkerFor("bad"), "User deleted"); err != nil || n != 1 {
			t.Fatalf("SoftDeleteByUserTx items = %d, %v", n, err)
		}
		if _, err := convs.SoftDeleteByUserTx(ctx, tx, "bad", model.CascadeMarkerFor("bad"), "User deleted"); err != nil {
			t.Fatalf("SoftDeleteByUserTx conversations: %v", err)
		}
		if _, err := msgs.SoftDeleteByAuthorTx(ctx, tx, "bad", model.CascadeMarkerFor("bad")); err != nil {
			t.Fatalf("SoftDeleteByAuthorTx: %v", err)
		}
	})

	if _, err := items.GetByID(ctx, mine.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected owned item hidden, got %v", err)
	}
	var text string
	db.QueryRow("SELECT message FROM messages WHERE conversation_id=?", c.ID).Scan(&text)
	if text != model.DeletedMessageText {
		t.Errorf("expected masked text, got %q", text)
	}

	withTx(t, db, func(tx *sql.Tx) {
		items.RestoreByUserTx(ctx, tx, "bad", model.CascadeMarkerFor("bad"))
		convs.RestoreByUserTx(ctx, tx, "bad", model.CascadeMarkerFor("bad"))
		msgs.RestoreByAuthorTx(ctx, tx, "bad", model.CascadeMarkerFor("bad"))
	})

	if _, err := items.GetByID(ctx, mine.ID); err != nil {
		t.Errorf("expected owned item restored, got %v", err)
	}
	if _, err := items.GetByID(ctx, manual.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected moderator-deleted item to stay deleted, got %v", err)
	}
	list, _ := msgs.ListByConversation(ctx, c.ID)
	if len(list) != 1 || list[0].Message != "original" {
		t.Errorf("expected original message restored, got %+v", list)
	}
}

func TestRestoreByUserLeavesOtherUsersCascade(t *testing.T) {
	db := database.NewTestDB(t)
	items := NewItemRepo(db)
	convs := NewConversationRepo(db)
	ctx := context.Background()

	it := newItem(t, items, "u1", model.ItemLost)
	if err := items.SetClaimedBy(ctx, it.ID, "u2"); err != nil {
		t.Fatal(err)
	}
	c := newConversation(t, convs, &it.ID, "u2", "u1")

	withTx(t, db, func(tx *sql.Tx) {
		items.SoftDeleteByUserTx(ctx, tx, "u1", model.CascadeMarkerFor("u1"), "User deleted")
		convs.SoftDeleteByUserTx(ctx, tx, "u1", model.CascadeMarkerFor("u1"), "User deleted")
	})
	withTx(t, db, func(tx *sql.Tx) {
		if n, err := items.SoftDeleteByUserTx(ctx, tx, "u2", model.CascadeMarkerFor("u2"), "User deleted"); err != nil || n != 0 {
			t.Fatalf("already deleted item flagged again: %d, %v", n, err)
		}
		convs.SoftDeleteByUserTx(ctx, tx, "u2", model.CascadeMarkerFor("u2"), "User deleted")
	})
	withTx(t, db, func(tx *sql.Tx) {
		if n, err := items.RestoreByUserTx(ctx, tx, "u2", model.CascadeMarkerFor("u2")); err != nil || n != 0 {
			t.Fatalf("RestoreByUserTx items = %d, %v", n, err)
		}
		if n, err := convs.RestoreByUserTx(ctx, tx, "u2", model.CascadeMarkerFor("u2")); err != nil || n != 0 {
			t.Fatalf("RestoreByUserTx conversations = %d, %v", n, err)
		}
	})
	if _, err := items.GetByID(ctx, it.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("item of a still deleted poster came back: %v", err)
	}
	if _, err := convs.GetByID(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("conversation with a still deleted user came back: %v", err)
	}

	withTx(t, db, func(tx *sql.Tx) {
		items.RestoreByUserTx(ctx, tx, "u1", model.CascadeMarkerFor("u1"))
		convs.RestoreByUserTx(ctx, tx, "u1", model.CascadeMarkerFor("u1"))
	})
	if _, err := items.GetByID(ctx, it.ID); err != nil {
		t.Errorf("item not restored with its poster: %v", err)
	}
	if _, err := convs.GetByID(ctx, c.ID); err != nil {
		t.Errorf("conversation not restored with its participant: %v", err)
	}
}

func TestCascadePartnersAndHandOver(t *testing.T) {
	db := database.NewTestDB(t)
	items := NewItemRepo(db)
	convs := NewConversationRepo(db)
	ctx := context.Background()

	it := newItem(t, items, "u1", model.ItemFound)
	items.SetClaimedBy(ctx, it.ID, "u2")
	newConversation(t, convs, &it.ID, "u3", "u2")
	marker := model.CascadeMarkerFor("u2")
	withTx(t, db, func(tx *sql.Tx) {
		items.SoftDeleteByUserTx(ctx, tx, "u2", marker, "User deleted")
		convs.SoftDeleteByUserTx(ctx, tx, "u2", marker, "User deleted")
	})

	got, err := items.CascadePartners(ctx, "u2", marker)
	if err != nil || len(got) != 1 || got[0] != "u1" {
		t.Fatalf("item partners = %v, %v", got, err)
	}
	got, err = convs.CascadePartners(ctx, "u2", marker)
	if err != nil || len(got) != 1 || got[0] != "u3" {
		t.Fatalf("conversation partners = %v, %v", got, err)
	}

	withTx(t, db, func(tx *sql.Tx) {
		if n, err := items.HandOverTx(ctx, tx, "u1", marker, model.CascadeMarkerFor("u1")); err != nil || n != 1 {
			t.Fatalf("HandOverTx = %d, %v", n, err)
		}
		if n, _ := items.RestoreByUserTx(ctx, tx, "u2", marker); n != 0 {
			t.Fatalf("handed over item restored with u2")
		}
	})
	var by string
	db.QueryRow("SELECT deleted_by FROM items WHERE id=?", it.ID).Scan(&by)
	if by != model.CascadeMarkerFor("u1") {
		t.Errorf("deleted_by = %q after hand over", by)
	}
}

func withTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx)) {
	t.Helper()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	fn(tx)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestUserListByRole(t *testing.T) {
	db := database.NewTestDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	admin, _ := repo.Create(ctx, "admin@example.com", "secret1", model.Metadata{Role: model.RoleAdmin}, model.AppMetadata{Role: model.RoleAdmin}, 4)
	legacy, _ := repo.Create(ctx, "legacy@example.com", "secret1", model.Metadata{}, model.AppMetadata{Role: model.RoleAdmin}, 4)
	// The profile role wins over the app metadata role.
	repo.Create(ctx, "demoted@example.com", "secret1", model.Metadata{Role: model.RoleUser}, model.AppMetadata{Role: model.RoleAdmin}, 4)
	repo.Create(ctx, "user@example.com", "secret1", model.Metadata{Role: model.RoleUser}, model.AppMetadata{}, 4)

	got, err := repo.ListByRole(ctx, model.RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != admin.ID || got[1].ID != legacy.ID {
		t.Errorf("admins = %+v", got)
	}
}
