package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroadcaster fans broadcast events out over Redis pub/sub so every
// server instance sees them.
type RedisBroadcaster struct {
	rdb    *redis.Client
	prefix string
	log    *zap.Logger
}

// NewRedisBroadcaster wraps rdb. Channel names are namespaced with prefix.
func NewRedisBroadcaster(rdb *redis.Client, prefix string, log *zap.Logger) *RedisBroadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBroadcaster{rdb: rdb, prefix: prefix, log: log}
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, channel, kind string, payload any) error {
	ev, err := newEvent(channel, kind, "", payload)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", kind, err)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.prefix+channel, body).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// SubscribeBroadcast waits for Redis to confirm the subscription, then
// delivers events on a dedicated goroutine until Unsubscribe.
func (b *RedisBroadcaster) SubscribeBroadcast(ctx context.Context, channel string, h Handler) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, b.prefix+channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}

	go func() {
		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("dropping malformed realtime event", zap.String("channel", channel), zap.Error(err))
				continue
			}
			h(ev)
		}
	}()

	var once sync.Once
	return subscriptionFunc(func() error {
		var err error
		once.Do(func() {
			err = ps.Close()
		})
		return err
	}), nil
}
