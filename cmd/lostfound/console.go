package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/lost-and-found/internal/model"
)

// console serializes writes from the command and from realtime callbacks.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func newConsole(w io.Writer) *console { return &console{w: w} }

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

// termNotifier prints composable notifications as tagged lines.
type termNotifier struct {
	out *console
}

func (n termNotifier) Success(msg string) { n.out.printf("[ok] %s\n", msg) }
func (n termNotifier) Error(msg string)   { n.out.printf("[error] %s\n", msg) }
func (n termNotifier) Info(msg string)    { n.out.printf("[info] %s\n", msg) }

func (c *console) message(selfID string, m model.Message) {
	who := "them"
	if m.UserID == selfID {
		who = "you"
	}
	c.printf("%s %-4s | %s\n", m.CreatedAt.Local().Format(time.Kitchen), who, m.Message)
}

// thread is what an interactive conversation needs from a composable.
type thread interface {
	Messages() []model.Message
	SetInput(string)
}

// converse prints the history and then sends every line read from in until
// /quit, end of input or ctx is done. send failures have already been
// reported by the composable's notifier.
func converse(ctx context.Context, c *client, t thread, send func(context.Context) (*model.Message, error)) error {
	for _, m := range t.Messages() {
		c.out.message(c.user.ID, m)
	}
	c.out.printf("-- type a message, /quit to leave --\n")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "/quit":
				return nil
			}
			t.SetInput(line)
			if m, err := send(ctx); err == nil && m != nil {
				c.out.message(c.user.ID, *m)
			}
		}
	}
}
