package service

import (
	"context"
	"testing"
	"time"

	"github.com/iliyamo/lost-and-found/internal/model"
)

func TestRegisterAndLogin(t *testing.T) {
	d, _ := newTestDeps(t)
	a := newTestAuth(t, d)
	ctx := context.Background()

	u := register(t, a, "Jane@Example.com", model.RoleNone)
	if u.Email != "jane@example.com" || u.Role() != model.RoleUser || u.AppMetadata.Status != model.StatusActive {
		t.Errorf("registered user = %+v", u)
	}
	if _, err := a.Register(ctx, "jane@example.com", "password1", "", model.RoleUser); ErrorCode(err) != CodeConflict {
		t.Errorf("duplicate email: %v", err)
	}
	if _, err := a.Register(ctx, "x@example.com", "123", "", model.RoleUser); ErrorCode(err) != CodeInvalidInput {
		t.Errorf("short password: %v", err)
	}
	if _, err := a.Register(ctx, "y@example.com", "password1", "", model.Role(9)); ErrorCode(err) != CodeInvalidInput {
		t.Errorf("bad role: %v", err)
	}
	if _, err := a.Register(ctx, "nope", "password1", "", model.RoleUser); ErrorCode(err) != CodeInvalidInput {
		t.Errorf("bad email: %v", err)
	}

	sess, err := a.Login(ctx, "jane@example.com", "password1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.AccessToken == "" || sess.RefreshToken == "" || sess.User.ID != u.ID {
		t.Errorf("session = %+v", sess)
	}
	if a.Current() != nil {
		t.Errorf("Login must not change the signed-in user")
	}

	_, err = a.Login(ctx, "jane@example.com", "wrong")
	wantCode(t, err, CodeInvalidLogin)
	_, err = a.Login(ctx, "nobody@example.com", "password1")
	wantCode(t, err, CodeInvalidLogin)
}

func TestRefreshRotates(t *testing.T) {
	d, _ := newTestDeps(t)
	a := newTestAuth(t, d)
	ctx := context.Background()
	register(t, a, "u@example.com", model.RoleUser)

	sess, err := a.Login(ctx, "u@example.com", "password1")
	if err != nil {
		t.Fatal(err)
	}
	next, err := a.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		t.Fatal(err)
	}
	if next.RefreshToken == sess.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	_, err = a.Refresh(ctx, sess.RefreshToken)
	wantCode(t, err, CodeInvalidLogin)

	if err := a.Logout(ctx, next.RefreshToken); err != nil {
		t.Fatal(err)
	}
	_, err = a.Refresh(ctx, next.RefreshToken)
	wantCode(t, err, CodeInvalidLogin)
}

func TestSignInInitializeSignOut(t *testing.T) {
	d, _ := newTestDeps(t)
	a := newTestAuth(t, d)
	ctx := context.Background()
	u := register(t, a, "u@example.com", model.RoleStudent)

	if got, err := a.Initialize(ctx); got != nil || err != nil {
		t.Fatalf("Initialize without session = %v, %v", got, err)
	}
	if _, err := a.SignIn(ctx, "u@example.com", "password1"); err != nil {
		t.Fatal(err)
	}
	if cur := a.Current(); cur == nil || cur.ID != u.ID {
		t.Fatalf("current = %+v", cur)
	}

	// A second store sharing the persisted session picks it up.
	b := NewAuthStore(d, a.cfg, a.sessions)
	got, err := b.Initialize(ctx)
	if err != nil || got == nil || got.ID != u.ID {
		t.Fatalf("Initialize = %+v, %v", got, err)
	}

	if err := a.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	if a.Current() != nil {
		t.Error("still signed in after SignOut")
	}
	if _, err := a.Tokens(); err == nil {
		t.Error("tokens survived SignOut")
	}
}

func TestInitializeRefreshesExpiredAccess(t *testing.T) {
	d, _ := newTestDeps(t)
	a := newTestAuth(t, d)
	a.cfg.AccessTTLMin = -1
	ctx := context.Background()
	u := register(t, a, "u@example.com", model.RoleUser)

	first, err := a.SignIn(ctx, "u@example.com", "password1")
	if err != nil {
		t.Fatal(err)
	}
	got, err := a.Initialize(ctx)
	if err != nil || got == nil || got.ID != u.ID {
		t.Fatalf("Initialize = %+v, %v", got, err)
	}
	tokens, _ := a.Tokens()
	if tokens.RefreshToken == first.RefreshToken {
		t.Error("expected the stored refresh token to be rotated")
	}
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	d, _ := newTestDeps(t)
	a := newTestAuth(t, d)
	ctx := context.Background()
	user := register(t, a, "u@example.com", model.RoleUser)
	other := register(t, a, "o@example.com", model.RoleUser)

	_, err := a.GetAllUsers(ctx, user.ID)
	wantCode(t, err, CodePermissionDenied)
	_, err = a.BanUser(ctx, user.ID, other.ID, "", "")
	wantCode(t, err, CodePermissionDenied)
	_, err = a.DeleteUser(ctx, "unknown", other.ID)
	wantCode(t, err, CodePermissionDenied)

	users, err := a.GetAllUsers(ctx, model.SystemActor)
	if err != nil || len(users) != 2 {
		t.Errorf("system actor listing = %d users, %v", len(users), err)
	}
}

func TestEditUser(t *testing.T) {
	d, _ := newTestDeps(t)
	a := newTestAuth(t, d)
	ctx := context.Background()
	admin := register(t, a, "admin@example.com", model.RoleAdmin)
	u := register(t, a, "u@example.com", model.RoleUser)

	got, err := a.EditUser(ctx, admin.ID, u.ID, "Faculty Member", model.RoleFaculty)
	if err != nil {
		t.Fatal(err)
	}
	stored, _ := a.GetUser(ctx, u.ID)
	if stored.Role() != model.RoleFaculty || stored.AppMetadata.Role != model.RoleFaculty || stored.Metadata.FullName != "Faculty Member" {
		t.Errorf("stored user = %+v", stored)
	}
	if got.AppMetadata.UpdatedBy != admin.ID {
		t.Errorf("updated_by = %q", got.AppMetadata.UpdatedBy)
	}
	_, err = a.EditUser(ctx, admin.ID, u.ID, "", model.Role(42))
	wantCode(t, err, CodeInvalidInput)
	_, err = a.EditUser(ctx, admin.ID, "missing", "", model.RoleUser)
	wantCode(t, err, CodeUserNotFound)
}

func TestBanAndUnban(t *testing.T) {
	d, _ := newTestDeps(t)
	a := newTestAuth(t, d)
	ctx := context.Background()
	admin := register(t, a, "admin@example.com", model.RoleAdmin)
	u := register(t, a, "u@example.com", model.RoleUser)

	sess, _ := a.Login(ctx, "u@example.com", "password1")

	banned, err := a.BanUser(ctx, admin.ID, u.ID, "", "")
	if err != nil {
		t.Fatal(err)
	}
	amd := banned.AppMetadata
	if !amd.Banned || amd.BanDuration != DefaultBanDuration || amd.BanReason != DefaultBanReason || amd.Status != model.StatusBanned {
		t.Errorf("ban metadata = %+v", amd)
	}
	if amd.BannedUntil == nil || amd.BannedUntil.Sub(*amd.BannedAt) != 24*time.Hour {
		t.Errorf("banned until = %v", amd.BannedUntil)
	}
	_, err = a.Login(ctx, "u@example.com", "password1")
	wantCode(t, err, CodeUserBanned)
	_, err = a.Refresh(ctx, sess.RefreshToken)
	wantCode(t, err, CodeInvalidLogin)

	if _, err := a.UnbanUser(ctx, admin.ID, u.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Login(ctx, "u@example.com", "password1"); err != nil {
		t.Errorf("login after unban: %v", err)
	}

	perm, err := a.BanUser(ctx, admin.ID, u.ID, NoBanEnd, "spam")
	if err != nil {
		t.Fatal(err)
	}
	if perm.AppMetadata.BannedUntil != nil || perm.AppMetadata.BanReason != "spam" {
		t.Errorf("permanent ban = %+v", perm.AppMetadata)
	}

	_, err = a.BanUser(ctx, admin.ID, u.ID, "tomorrow", "")
	wantCode(t, err, CodeInvalidDuration)
	_, err = a.BanUser(ctx, admin.ID, u.ID, "-1h", "")
	wantCode(t, err, CodeInvalidDuration)
}

func TestExpiredBanAllowsLogin(t *testing.T) {
	d, _ := newTestDeps(t)
	a := newTestAuth(t, d)
	ctx := context.Background()
	u := register(t, a, "u@example.com", model.RoleUser)

	if _, err := a.BanUser(ctx, model.SystemActor, u.ID, "1ms", ""); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := a.Login(ctx, "u@example.com", "password1"); err != nil {
		t.Errorf("login after ban expiry: %v", err)
	}
}

func TestDeleteAndRestoreUser(t *testing.T) {
	d, _ := newTestDeps(t)
	a := newTestAuth(t, d)
	ctx := context.Background()
	admin := register(t, a, "admin@example.com", model.RoleAdmin)
	u := register(t, a, "u@example.com", model.RoleStudent)
	poster := register(t, a, "p@example.com", model.RoleUser)

	items := NewItemStore(d)
	convs := NewConversationStore(d)
	msgs := NewMessageStore(d)

	own, _ := items.Create(ctx, NewItem{Title: "Bag", Description: "Grey", Status: model.ItemLost}, u.ID)
	other, _ := items.Create(ctx, NewItem{Title: "Cap", Description: "Green", Status: model.ItemFound}, poster.ID)
	c, _, _ := convs.FindOrCreate(ctx, &other.ID, u.ID, poster.ID)
	msgs.Send(ctx, c.ID, "that's my cap", u.ID)
	msgs.Send(ctx, c.ID, "come pick it up", poster.ID)
	sess, _ := a.Login(ctx, "u@example.com", "password1")

	_, err := a.DeleteUser(ctx, admin.ID, admin.ID)
	wantCode(t, err, CodePermissionDenied)
	_, err = a.RestoreUser(ctx, admin.ID, u.ID)
	wantCode(t, err, CodeUserNotDeleted)

	deleted, err := a.DeleteUser(ctx, admin.ID, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	amd := deleted.AppMetadata
	if !amd.Deleted || amd.Status != model.StatusDeleted || !amd.Banned || amd.OriginalEmail != "u@example.com" || amd.DeletedBy != admin.ID {
		t.Errorf("deleted metadata = %+v", amd)
	}

	if _, err := items.Get(ctx, own.ID); ErrorCode(err) != CodeNotFound {
		t.Errorf("own item still visible: %v", err)
	}
	if _, err := items.Get(ctx, other.ID); err != nil {
		t.Errorf("other user's item hidden: %v", err)
	}
	if _, err := convs.Get(ctx, c.ID); ErrorCode(err) != CodeNotFound {
		t.Errorf("conversation still visible: %v", err)
	}
	var text string
	if err := d.DB.QueryRowContext(ctx, "SELECT message FROM messages WHERE user_id=?", u.ID).Scan(&text); err != nil {
		t.Fatal(err)
	}
	if text != model.DeletedMessageText {
		t.Errorf("message text = %q, want masked", text)
	}
	_, err = a.Login(ctx, "u@example.com", "password1")
	wantCode(t, err, CodeUserDeleted)
	_, err = a.Refresh(ctx, sess.RefreshToken)
	wantCode(t, err, CodeInvalidLogin)

	restored, err := a.RestoreUser(ctx, admin.ID, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if restored.IsDeleted() || restored.IsBanned() || !restored.AppMetadata.Restored || !restored.EmailConfirmed {
		t.Errorf("restored user = %+v", restored)
	}
	if _, err := items.Get(ctx, own.ID); err != nil {
		t.Errorf("own item not restored: %v", err)
	}
	loaded, err := msgs.Load(ctx, c.ID)
	if err != nil || len(loaded) != 2 || loaded[0].Message != "that's my cap" {
		t.Errorf("messages after restore = %+v, %v", loaded, err)
	}
	if _, err := a.Login(ctx, "u@example.com", "password1"); err != nil {
		t.Errorf("login after restore: %v", err)
	}
}

func TestRestoreKeepsRowsSharedWithDeletedUser(t *testing.T) {
	for _, order := range []struct {
		name        string
		firstPoster bool
	}{
		{"poster deleted first", true},
		{"claimer deleted first", false},
	} {
		t.Run(order.name, func(t *testing.T) {
			d, _ := newTestDeps(t)
			a := newTestAuth(t, d)
			ctx := context.Background()
			admin := register(t, a, "admin@example.com", model.RoleAdmin)
			u1 := register(t, a, "u1@example.com", model.RoleUser)
			u2 := register(t, a, "u2@example.com", model.RoleStudent)

			items := NewItemStore(d)
			convs := NewConversationStore(d)
			it, err := items.Create(ctx, NewItem{Title: "Keys", Description: "Three keys", Status: model.ItemFound}, u1.ID)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := items.Claim(ctx, it.ID, u2.ID); err != nil {
				t.Fatal(err)
			}
			c, _, err := convs.FindOrCreate(ctx, &it.ID, u2.ID, u1.ID)
			if err != nil {
				t.Fatal(err)
			}

			first, second := u1, u2
			if !order.firstPoster {
				first, second = u2, u1
			}
			for _, u := range []*model.User{first, second} {
				if _, err := a.DeleteUser(ctx, admin.ID, u.ID); err != nil {
					t.Fatal(err)
				}
			}

			if _, err := a.RestoreUser(ctx, admin.ID, u2.ID); err != nil {
				t.Fatal(err)
			}
			if _, err := items.Get(ctx, it.ID); ErrorCode(err) != CodeNotFound {
				t.Errorf("item of still deleted poster visible after restoring the claimer: %v", err)
			}
			if _, err := convs.Get(ctx, c.ID); ErrorCode(err) != CodeNotFound {
				t.Errorf("conversation with still deleted user visible: %v", err)
			}

			if _, err := a.RestoreUser(ctx, admin.ID, u1.ID); err != nil {
				t.Fatal(err)
			}
			if _, err := items.Get(ctx, it.ID); err != nil {
				t.Errorf("item not back once both users are restored: %v", err)
			}
			if _, err := convs.Get(ctx, c.ID); err != nil {
				t.Errorf("conversation not back once both users are restored: %v", err)
			}
		})
	}
}

func TestChangePassword(t *testing.T) {
	d, _ := newTestDeps(t)
	a := newTestAuth(t, d)
	ctx := context.Background()
	u := register(t, a, "u@example.com", model.RoleUser)

	err := a.ChangePassword(ctx, u.ID, "wrong", "newpassword")
	wantCode(t, err, CodeInvalidLogin)
	err = a.ChangePassword(ctx, u.ID, "password1", "123")
	wantCode(t, err, CodeInvalidInput)

	if err := a.ChangePassword(ctx, u.ID, "password1", "newpassword"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Login(ctx, "u@example.com", "newpassword"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
}

func TestUsersByIDs(t *testing.T) {
	d, _ := newTestDeps(t)
	a := newTestAuth(t, d)
	u := register(t, a, "u@example.com", model.RoleUser)

	got, err := a.UsersByIDs(context.Background(), []string{u.ID, "ghost"})
	if err != nil {
		t.Fatal(err)
	}
	if got[u.ID].Email != "u@example.com" || got["ghost"] != model.UnknownUser("ghost") {
		t.Errorf("summaries = %+v", got)
	}
}
