package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signaling-platform/internal/auth"
	"signaling-platform/internal/config"
	"signaling-platform/internal/engine"
	"signaling-platform/internal/history"
	"signaling-platform/internal/httpapi"
	"signaling-platform/internal/media"
	"signaling-platform/internal/notify"
	"signaling-platform/internal/session"
	"signaling-platform/internal/token"
	"signaling-platform/pkg/logger"
	"signaling-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Session record store and its change feed.
	channel := notify.NewRedisChannel(rdb, log)
	sessions := session.NewService(session.NewPostgresRepo(db), channel)

	tokens, err := token.NewService(cfg.Media)
	if err != nil {
		log.Error("token service init failed", "err", err)
		os.Exit(1)
	}

	mediaClient := media.NewHTTPClient(log)
	guard := engine.NewRedisGuard(rdb, cfg.Media.PairSlotTTL)
	callHistory := history.NewService(history.NewPostgresRepo(db))

	// One engine per authenticated user on this node.
	registry := engine.NewRegistry(func(identity string) (*engine.Engine, error) {
		return engine.New(engine.Config{
			Identity: identity,
			Sessions: sessions,
			Channel:  channel,
			Tokens:   tokens,
			Media:    mediaClient,
			Guard:    guard,
			History:  callHistory,
			Logger:   log,
		})
	})

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:     authManager,
		Engines:  registry,
		Sessions: sessions,
		History:  callHistory,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager), db, rdb)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// SSE streams stay open; no write deadline on responses.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	registry.StopAll(shutdownCtx)
}
