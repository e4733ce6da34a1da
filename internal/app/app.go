// Package app wires the runtime shared by the HTTP server and the terminal
// client: the relational store, the realtime bus, the row feed and the
// stores built on them.
package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/lost-and-found/internal/config"
	"github.com/iliyamo/lost-and-found/internal/database"
	"github.com/iliyamo/lost-and-found/internal/logger"
	"github.com/iliyamo/lost-and-found/internal/realtime"
	"github.com/iliyamo/lost-and-found/internal/service"
	"github.com/iliyamo/lost-and-found/internal/session"
)

// amqpDialTimeout bounds the broker retry loop at startup.
const amqpDialTimeout = 30 * time.Second

// Runtime holds the open connections and the stores over them.
type Runtime struct {
	DB    *sql.DB
	Redis *redis.Client // nil when Redis is unreachable
	Bus   realtime.Broadcaster
	Feed  realtime.RowFeed

	Auth          *service.AuthStore
	Items         *service.ItemStore
	Conversations *service.ConversationStore
	Messages      *service.MessageStore

	closers []func() error
}

// Open connects everything cfg describes. Redis and RabbitMQ are optional:
// without them broadcasts and row changes stay inside this process. sessions
// backs the auth store's client state and may be nil.
func Open(ctx context.Context, cfg config.Config, sessions session.Store, log *zap.Logger) (*Runtime, error) {
	log = logger.OrNop(log)
	db, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{DB: db}
	rt.closers = append(rt.closers, db.Close)

	hub := realtime.NewHub()
	rt.Bus, rt.Feed = hub, hub

	rc := config.LoadRedisConfig()
	if rdb := config.NewRedisClient(rc); rdb != nil {
		rt.Redis = rdb
		rt.Bus = realtime.NewRedisBroadcaster(rdb, rc.ChannelPrefix, log)
		rt.closers = append(rt.closers, rdb.Close)
		log.Info("realtime broadcasts over redis", zap.String("addr", rc.Addr))
	} else {
		log.Warn("redis unavailable: broadcasts, rate limiting and caching stay in-process")
	}

	if cfg.RabbitURL != "" {
		dialCtx, cancel := context.WithTimeout(ctx, amqpDialTimeout)
		feed, err := realtime.DialAMQP(dialCtx, cfg.RabbitURL, log)
		cancel()
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.Feed = feed
		rt.closers = append(rt.closers, feed.Close)
		log.Info("row changes over rabbitmq")
	}

	deps := service.NewDeps(db, rt.Bus, rt.Feed, log)
	rt.Auth = service.NewAuthStore(deps, AuthConfig(cfg), sessions)
	rt.Items = service.NewItemStore(deps)
	rt.Conversations = service.NewConversationStore(deps)
	rt.Messages = service.NewMessageStore(deps)
	return rt, nil
}

// AuthConfig extracts the token and hashing settings from cfg.
func AuthConfig(cfg config.Config) service.AuthConfig {
	return service.AuthConfig{
		JWTSecret:      cfg.JWTSecret,
		AccessTTLMin:   cfg.AccessTTLMin,
		RefreshTTLDays: cfg.RefreshTTLDays,
		BcryptCost:     cfg.BcryptCost,
	}
}

// Close releases every connection in reverse order of opening.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// OpenDB connects to the configured store and makes sure its schema matches
// the contract the repositories expect.
func OpenDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	dialect, err := database.ParseDialect(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	var db *sql.DB
	if dialect == database.SQLite {
		db, err = database.OpenSQLite(cfg.DBPath)
	} else {
		db, err = database.OpenMySQL(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	}
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	if err := database.CheckSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
