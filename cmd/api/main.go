package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-tavern/backend/internal/app"
	"github.com/zhouzirui/voice-tavern/backend/internal/config"
	"github.com/zhouzirui/voice-tavern/backend/internal/handler"
	"github.com/zhouzirui/voice-tavern/backend/internal/handler/chat"
	"github.com/zhouzirui/voice-tavern/backend/internal/handler/voice"
	"github.com/zhouzirui/voice-tavern/backend/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fallback, _ := logging.New(logging.Config{})
		fallback.Fatal("failed to load configuration", zap.Error(err))
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		logger, _ = logging.New(logging.Config{})
		logger.Warn("invalid log configuration, using defaults", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Info("no .env file loaded, continuing with system environment variables", zap.Error(envErr))
	}

	a, err := app.New(ctx, cfg, app.Options{}, logger)
	if err != nil {
		logger.Fatal("failed to initialise session", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to release audio devices", zap.Error(err))
		}
	}()

	health := func() handler.Health {
		return handler.Health{Status: "ok", SessionID: a.Session.ID(), Voice: a.Orchestrator.VoiceEnabled()}
	}
	router := handler.NewRouter(
		chat.New(a.Orchestrator, a.Session),
		voice.New(a.Orchestrator, logger),
		health,
		logger,
	)

	startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("voice tavern backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Error("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
