package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/iliyamo/lost-and-found/internal/config"
)

type harness struct {
	dir string
	cfg config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("REDIS_HOST", "")
	t.Setenv("REDIS_PORT", "")
	t.Setenv("REDIS_ADDR", "127.0.0.1:1") // nothing listens here
	dir := t.TempDir()
	return &harness{dir: dir, cfg: config.Config{
		DBDriver:       config.DriverSQLite,
		DBPath:         filepath.Join(dir, "lostfound.db"),
		JWTSecret:      "test-secret",
		AccessTTLMin:   15,
		RefreshTTLDays: 7,
		BcryptCost:     4,
	}}
}

// run executes one command as the account whose session is stored under
// who, feeding stdin to interactive commands.
func (h *harness) run(t *testing.T, who, stdin string, args ...string) (int, string, string) {
	t.Helper()
	cfg := h.cfg
	cfg.SessionFile = filepath.Join(h.dir, who+".json")
	var out, errOut bytes.Buffer
	code := run(context.Background(), cfg, zap.NewNop(), args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

// ok runs a command that must succeed and returns its output.
func (h *harness) ok(t *testing.T, who, stdin string, args ...string) string {
	t.Helper()
	code, out, errOut := h.run(t, who, stdin, args...)
	if code != 0 {
		t.Fatalf("%s %v: exit %d\nstdout: %s\nstderr: %s", who, args, code, out, errOut)
	}
	return out
}

func (h *harness) userID(t *testing.T, who string) string {
	t.Helper()
	fields := strings.Fields(h.ok(t, who, "", "whoami"))
	if len(fields) == 0 {
		t.Fatalf("whoami printed nothing for %s", who)
	}
	return fields[0]
}

func TestUsageAndUnknownCommands(t *testing.T) {
	h := newHarness(t)
	if code, out, _ := h.run(t, "nobody", ""); code != 2 || !strings.Contains(out, "Usage: lostfound") {
		t.Fatalf("expected usage with exit 2, got %d %q", code, out)
	}
	if code, _, _ := h.run(t, "nobody", "", "help"); code != 0 {
		t.Fatalf("help exit %d", code)
	}
	if code, _, errOut := h.run(t, "nobody", "", "fly"); code != 2 || !strings.Contains(errOut, "unknown command: fly") {
		t.Fatalf("expected unknown command, got %d %q", code, errOut)
	}
	if code, _, errOut := h.run(t, "nobody", "", "whoami"); code != 1 || !strings.Contains(errOut, "not signed in") {
		t.Fatalf("expected not signed in, got %d %q", code, errOut)
	}
	if code, _, _ := h.run(t, "nobody", "", "claim"); code != 1 {
		t.Fatalf("claim without an id should fail, got %d", code)
	}
}

func TestItemChatAndReplies(t *testing.T) {
	h := newHarness(t)
	h.ok(t, "poster", "", "register", "-email", "pat@example.com", "-password", "password1", "-name", "Pat", "-role", "4")
	h.ok(t, "bob", "", "register", "-email", "bob@example.com", "-password", "password1", "-name", "Bob", "-role", "3")

	out := h.ok(t, "poster", "", "post", "-title", "Wallet", "-desc", "Black leather", "-status", "lost")
	if !strings.Contains(out, "Posted item 1") {
		t.Fatalf("unexpected post output %q", out)
	}
	if out := h.ok(t, "bob", "", "items"); !strings.Contains(out, "Wallet") {
		t.Fatalf("items should list the wallet: %q", out)
	}

	out = h.ok(t, "bob", "is it yours?\n\n/quit\nnot sent\n", "chat", "1")
	if !strings.Contains(out, "== Wallet ==") || !strings.Contains(out, "you  | is it yours?") {
		t.Fatalf("unexpected chat output %q", out)
	}
	if strings.Contains(out, "not sent") {
		t.Fatal("lines after /quit must not be sent")
	}
	if code, _, _ := h.run(t, "poster", "", "chat", "1"); code != 1 {
		t.Fatal("the poster cannot contact themselves")
	}

	if out := h.ok(t, "poster", "", "unread"); !strings.HasPrefix(out, "1 unread") {
		t.Fatalf("expected one unread message, got %q", out)
	}
	if out := h.ok(t, "nobody", "", "contacts", "1"); !strings.Contains(out, "1 people asked about item 1") {
		t.Fatalf("unexpected contacts output %q", out)
	}
	if out := h.ok(t, "poster", "", "replies", "1"); !strings.Contains(out, "1. Bob  (1 unread)") {
		t.Fatalf("unexpected replies list %q", out)
	}
	out = h.ok(t, "poster", "yes, thanks\n", "replies", "1", "1")
	if !strings.Contains(out, "them | is it yours?") || !strings.Contains(out, "you  | yes, thanks") {
		t.Fatalf("unexpected reply thread %q", out)
	}
	if out := h.ok(t, "poster", "", "unread"); !strings.HasPrefix(out, "0 unread") {
		t.Fatalf("opening the thread should mark it read, got %q", out)
	}
	if code, _, _ := h.run(t, "bob", "", "replies", "1"); code != 1 {
		t.Fatal("only the poster may read replies")
	}

	h.ok(t, "bob", "", "claim", "1")
	if out := h.ok(t, "bob", "", "items"); strings.Contains(out, "Wallet") {
		t.Fatalf("claimed items are hidden by default: %q", out)
	}
	if out := h.ok(t, "poster", "", "items", "-mine"); !strings.Contains(out, "yes") {
		t.Fatalf("own items include claimed ones: %q", out)
	}
	h.ok(t, "poster", "", "unclaim", "1")
}

func TestSupportAndModeration(t *testing.T) {
	h := newHarness(t)
	h.ok(t, "admin", "", "register", "-email", "root@example.com", "-password", "password1", "-name", "Root", "-role", "1")
	h.ok(t, "bob", "", "register", "-email", "bob@example.com", "-password", "password1", "-name", "Bob", "-role", "3")
	bobID := h.userID(t, "bob")

	if code, _, errOut := h.run(t, "bob", "", "users"); code != 1 || !strings.Contains(errOut, "admin account") {
		t.Fatalf("users must be admin only, got %d %q", code, errOut)
	}

	h.ok(t, "bob", "I lost my keys\n/quit\n", "support")
	out := h.ok(t, "admin", "", "inbox")
	if !strings.Contains(out, "1 conversations") || !strings.Contains(out, "1. bob@example.com  [1]  I lost my keys") {
		t.Fatalf("unexpected inbox %q", out)
	}
	out = h.ok(t, "admin", "Which building?\n/quit\n", "inbox", "-open", "1")
	if !strings.Contains(out, "them | I lost my keys") || !strings.Contains(out, "you  | Which building?") {
		t.Fatalf("unexpected support thread %q", out)
	}
	if out := h.ok(t, "bob", "/quit\n", "support"); !strings.Contains(out, "them | Which building?") {
		t.Fatalf("student should see the admin reply: %q", out)
	}

	if out := h.ok(t, "admin", "", "ban", bobID, "-for", "48h", "-reason", "spam"); !strings.Contains(out, "status=banned") {
		t.Fatalf("unexpected ban output %q", out)
	}
	if code, _, _ := h.run(t, "bob", "", "whoami"); code != 1 {
		t.Fatal("a banned user's session must not be restored")
	}
	if code, _, _ := h.run(t, "bob", "", "login", "-email", "bob@example.com", "-password", "password1"); code != 1 {
		t.Fatal("a banned user cannot sign in")
	}
	h.ok(t, "admin", "", "unban", bobID)
	h.ok(t, "bob", "", "login", "-email", "bob@example.com", "-password", "password1")

	if out := h.ok(t, "admin", "", "edit", bobID, "-name", "Robert"); !strings.Contains(out, "Robert") || !strings.Contains(out, "role=Student") {
		t.Fatalf("edit should keep the role: %q", out)
	}
	if out := h.ok(t, "admin", "", "stats"); !strings.Contains(out, "conversations 1") {
		t.Fatalf("unexpected stats %q", out)
	}
	if out := h.ok(t, "admin", "", "delete", bobID); !strings.Contains(out, "status=deleted") {
		t.Fatalf("unexpected delete output %q", out)
	}
	if out := h.ok(t, "admin", "", "restore", bobID); !strings.Contains(out, "status=active") {
		t.Fatalf("unexpected restore output %q", out)
	}

	h.ok(t, "bob", "", "logout")
	if code, _, _ := h.run(t, "bob", "", "whoami"); code != 1 {
		t.Fatal("logout should clear the session")
	}
}
