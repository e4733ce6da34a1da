// Package queue contains the background consumer that listens to the row
// change feed and appends a one-line record per change to an activity log.
package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/lost-and-found/internal/realtime"
)

// ActivityLog appends every committed item, conversation and message change
// to a file. Processing errors are logged and the change is skipped so the
// server keeps operating.
type ActivityLog struct {
	path string
	log  *zap.Logger
	now  func() time.Time

	mu   sync.Mutex
	subs []realtime.Subscription
}

// StartActivityLog creates the log directory and subscribes to the feed.
func StartActivityLog(ctx context.Context, feed realtime.RowFeed, path string, log *zap.Logger) (*ActivityLog, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir logs: %w", err)
	}
	a := &ActivityLog{path: path, log: log, now: time.Now}
	for _, table := range loggedTables {
		sub, err := feed.SubscribeChanges(ctx, table, a.handle)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("subscribe to %s: %w", table, err)
		}
		a.mu.Lock()
		a.subs = append(a.subs, sub)
		a.mu.Unlock()
	}
	return a, nil
}

func (a *ActivityLog) handle(ev realtime.Event) {
	line, err := formatChange(ev, a.now())
	if err != nil {
		a.log.Warn("activity-log: dropping change", zap.String("table", ev.Table), zap.Error(err))
		return
	}
	if err := a.write(line); err != nil {
		a.log.Error("activity-log: write failed", zap.String("path", a.path), zap.Error(err))
	}
}

func (a *ActivityLog) write(line string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// Close stops consuming.
func (a *ActivityLog) Close() error {
	a.mu.Lock()
	subs := a.subs
	a.subs = nil
	a.mu.Unlock()
	var first error
	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
