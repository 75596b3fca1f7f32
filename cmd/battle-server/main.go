package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	corebattle "github.com/park285/battle-chess/internal/battle"
	appcfg "github.com/park285/battle-chess/internal/config"
	"github.com/park285/battle-chess/internal/httpapi"
	"github.com/park285/battle-chess/internal/msgcat"
	"github.com/park285/battle-chess/internal/obslog"
	"github.com/park285/battle-chess/internal/render"
	"github.com/park285/battle-chess/internal/service/battle"
	"github.com/park285/battle-chess/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	sessions, err := openStore(ctx, cfg, logger)
	if err != nil {
		cancel()
		logger.Fatal("store_init_failed", zap.Error(err))
	}
	repo, err := openRepository(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("repository_init_failed", zap.Error(err))
	}

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("messages_init_failed", zap.Error(err))
	}

	// config.Load already validated both controllers
	white, _ := corebattle.ParseController(cfg.WhiteController)
	black, _ := corebattle.ParseController(cfg.BlackController)
	svc, err := battle.NewService(sessions, repo, render.New(), catalog, battle.Config{
		SessionTTL:   cfg.SessionTTL,
		Clock:        cfg.Clock,
		EngineDelay:  cfg.EngineDelay,
		EngineJitter: cfg.EngineJitter,
		White:        white,
		Black:        black,
		Seed:         cfg.EngineSeed,
		HistoryLimit: cfg.HistoryLimit,
	}, logger)
	if err != nil {
		logger.Fatal("service_init_failed", zap.Error(err))
	}

	rctx, rcancel := context.WithTimeout(context.Background(), 30*time.Second)
	restored, err := svc.RestoreActive(rctx)
	rcancel()
	if err != nil {
		logger.Warn("battle_restore_incomplete", zap.Int("restored", restored), zap.Error(err))
	} else {
		logger.Info("battles_restored", zap.Int("count", restored))
	}

	api := httpapi.New(svc, logger)
	apiServer := &fasthttp.Server{
		Handler:            api.Handler(),
		Name:               "battle-chess",
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		MaxRequestBodySize: 64 << 10,
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", api.Feed(httpapi.FeedOptions{}))
	feedServer := &http.Server{
		Addr:              cfg.WSAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		errCh <- apiServer.ListenAndServe(cfg.HTTPAddr)
	}()
	go func() {
		logger.Info("ws_listen", zap.String("addr", cfg.WSAddr))
		if err := feedServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown_signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server_failed", zap.Error(err))
	}

	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	if err := apiServer.ShutdownWithContext(sctx); err != nil {
		logger.Warn("http_shutdown_failed", zap.Error(err))
	}
	// closing the service ends every feed before the ws server waits on them
	svc.Close()
	if err := feedServer.Shutdown(sctx); err != nil {
		logger.Warn("ws_shutdown_failed", zap.Error(err))
	}
	_ = sessions.Close()
	_ = repo.Close()
	logger.Info("shutdown_complete")
}

func openStore(ctx context.Context, cfg *appcfg.AppConfig, logger *zap.Logger) (store.Store, error) {
	if cfg.RedisURL == "" {
		logger.Warn("session_store_memory", zap.String("reason", "REDIS_URL not set"))
		return store.NewMemoryStore(), nil
	}
	return store.Open(ctx, cfg.RedisURL, cfg.SessionTTL)
}

func openRepository(ctx context.Context, cfg *appcfg.AppConfig, logger *zap.Logger) (battle.Repository, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("battle_repository_memory", zap.String("reason", "DATABASE_URL not set"))
		return battle.NewMemoryRepository(), nil
	}
	return battle.OpenRepository(ctx, cfg.DatabaseURL)
}
