package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"                   // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware" // request ids and panic recovery
	"go.uber.org/zap"

	"github.com/iliyamo/lost-and-found/internal/app"        // shared runtime wiring
	"github.com/iliyamo/lost-and-found/internal/config"     // Internal config loader
	"github.com/iliyamo/lost-and-found/internal/handler"    // HTTP handlers
	"github.com/iliyamo/lost-and-found/internal/logger"     // zap setup and request logging
	"github.com/iliyamo/lost-and-found/internal/metrics"    // prometheus middleware
	"github.com/iliyamo/lost-and-found/internal/middleware" // api key, rate limit and cache
	"github.com/iliyamo/lost-and-found/internal/queue"      // activity log consumer
	"github.com/iliyamo/lost-and-found/internal/router"     // Internal router setup
)

func main() {
	cfg := config.Load() // Load environment config
	log := logger.Init(cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	if err := cfg.ValidateServer(); err != nil {
		log.Fatal("invalid server configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, nil, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer rt.Close()

	if cfg.ActivityLog != "off" {
		activity, err := queue.StartActivityLog(ctx, rt.Feed, cfg.ActivityLog, log)
		if err != nil {
			log.Fatal("activity log unavailable", zap.Error(err))
		}
		defer activity.Close()
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(logger.Middleware(log))
	e.Use(metrics.Middleware)

	rcfg := router.Config{
		JWTSecret: cfg.JWTSecret,
		Gate: []echo.MiddlewareFunc{
			middleware.APIKey(cfg.AnonKey, cfg.ServiceKey),
			middleware.NewTokenBucket(config.LoadRateLimitConfig(), rt.Redis),
		},
		StatsCache: middleware.NewRedisCache(config.LoadCacheConfig(), rt.Redis),
	}
	router.RegisterRoutes(e, rt.DB) // Register application routes
	router.RegisterAuth(e, handler.NewAuthHandler(rt.Auth), rcfg)
	router.RegisterItems(e, handler.NewItemHandler(rt.Items, rt.Conversations, rt.Messages), rcfg)
	router.RegisterConversations(e, handler.NewConversationHandler(rt.Items, rt.Conversations, rt.Messages), rcfg)
	router.RegisterAdmin(e, handler.NewAdminHandler(rt.Auth, rt.Conversations, rt.Items), rcfg)

	addr := ":" + cfg.Port // Address string with port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
