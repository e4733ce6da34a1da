// Command lostfound is the terminal client: it signs in, browses and posts
// items, chats with posters and the support desk, and runs the admin
// moderation tools against the same stores as the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"go.uber.org/zap"

	"github.com/iliyamo/lost-and-found/internal/app"
	"github.com/iliyamo/lost-and-found/internal/config"
	"github.com/iliyamo/lost-and-found/internal/logger"
	"github.com/iliyamo/lost-and-found/internal/model"
	"github.com/iliyamo/lost-and-found/internal/session"
)

const usage = `Usage: lostfound <command> [flags] [args]

Account:
  register -email <e> -password <p> [-name <n>] [-role 2|3|4]
  login -email <e> -password <p>
  logout
  whoami
  profile -name <full name>
  password -current <p> -new <p>

Items:
  items [-status lost|found] [-all] [-mine] [-limit n]
  post -title <t> -desc <d> -status lost|found
  claim <item id>
  unclaim <item id>
  contacts <item id>

Messages:
  chat <item id>                  talk to the poster of an item
  replies <item id> [n]           list who asked about your item, or talk to the n-th
  support                         talk to the support desk
  unread                          unread messages per conversation

Admin:
  inbox [-page n] [-size n] [-open n] [-follow]
  users
  edit <user id> [-name <n>] [-role 1-4]
  ban <user id> [-for 24h|none|permanent] [-reason <r>]
  unban <user id>
  delete <user id>
  restore <user id>
  stats

Inside a conversation every line you type is sent; /quit leaves.
Configuration comes from the environment and .env (see SESSION_FILE, DB_*).
`

// errUsage reports a malformed command line; usage has been printed.
var errUsage = errors.New("usage")

func main() {
	cfg := config.Load()
	level := "warn"
	if cfg.LogLevel == "debug" {
		level = cfg.LogLevel
	}
	log := logger.Init(cfg.Env, level)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, log, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, cfg config.Config, log *zap.Logger, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 || slices.Contains([]string{"-h", "-help", "--help", "help"}, args[0]) {
		fmt.Fprint(stdout, usage)
		if len(args) == 0 {
			return 2
		}
		return 0
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command: %s\n\n%s", args[0], usage)
		return 2
	}

	rt, err := app.Open(ctx, cfg, session.NewFileStore(cfg.SessionFile), log)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer rt.Close()

	out := newConsole(stdout)
	c := &client{rt: rt, out: out, in: stdin, errw: stderr, notify: termNotifier{out: out}}
	if cmd.signedIn {
		u, err := rt.Auth.Initialize(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		if u == nil {
			fmt.Fprintln(stderr, "not signed in; run: lostfound login -email <e> -password <p>")
			return 1
		}
		if cmd.admin && u.Role() != model.RoleAdmin {
			fmt.Fprintln(stderr, "this command needs an admin account")
			return 1
		}
		c.user = u
	}

	if err := cmd.run(ctx, c, args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return 1
	}
	return 0
}
