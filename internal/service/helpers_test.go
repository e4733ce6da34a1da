package service

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/lost-and-found/internal/database"
	"github.com/iliyamo/lost-and-found/internal/model"
	"github.com/iliyamo/lost-and-found/internal/realtime"
	"github.com/iliyamo/lost-and-found/internal/session"
)

const testSecret = "test-secret"

func newTestDeps(t *testing.T) (Deps, *realtime.Hub) {
	t.Helper()
	hub := realtime.NewHub()
	return NewDeps(database.NewTestDB(t), hub, hub, zap.NewNop()), hub
}

func newTestAuth(t *testing.T, d Deps) *AuthStore {
	t.Helper()
	cfg := AuthConfig{JWTSecret: testSecret, AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: bcrypt.MinCost}
	return NewAuthStore(d, cfg, &session.MemoryStore{})
}

func register(t *testing.T, a *AuthStore, email string, role model.Role) *model.User {
	t.Helper()
	u, err := a.Register(context.Background(), email, "password1", email, role)
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return u
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	if got := ErrorCode(err); got != code {
		t.Fatalf("got error %v (code %q), want code %q", err, got, code)
	}
}
