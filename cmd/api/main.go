package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/talknest/backend/internal/config"
	"github.com/zhouzirui/talknest/backend/internal/handler"
	"github.com/zhouzirui/talknest/backend/internal/observability"
	"github.com/zhouzirui/talknest/backend/internal/service/chat"
	"github.com/zhouzirui/talknest/backend/internal/service/upload"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Debug("no .env file loaded, using process environment", zap.Error(envErr))
	}

	registryOpts := []chat.RegistryOption{}
	if !cfg.Chat.AllowRename {
		registryOpts = append(registryOpts, chat.WithRenameLocked())
	}
	registry := chat.NewRegistry(registryOpts...)
	dispatcher := chat.NewDispatcher(registry, logger)

	store, err := upload.NewDiskStore(cfg.Upload.Dir, cfg.Upload.MaxBytes, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize upload store: %w", err)
	}

	router := handler.NewRouter(cfg, handler.Deps{
		Registry:   registry,
		Dispatcher: dispatcher,
		Uploads:    store,
		Logger:     logger,
	})

	return startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router *handler.Router, logger *zap.Logger) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	// Shutdown 不跟踪被劫持的 WebSocket 连接，需要单独通知
	srv.RegisterOnShutdown(router.CloseSessions)

	logger.Info("talknest relay listening", zap.String("addr", addr))
	if err := runServer(ctx, srv, serverCfg.ShutdownTimeout, router.WaitSessions); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, waitHijacked func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = waitHijacked(shutdownCtx)
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
