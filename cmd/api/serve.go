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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/yourusername/passgate/internal/account"
	"github.com/yourusername/passgate/internal/auth"
	"github.com/yourusername/passgate/internal/config"
	"github.com/yourusername/passgate/internal/db"
	"github.com/yourusername/passgate/internal/logging"
	"github.com/yourusername/passgate/internal/users"
	"github.com/yourusername/passgate/internal/web"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	logs, err := logging.New("passgate", cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logs.Sync() }()

	database, err := db.NewPostgresDB(ctx, cfg.DatabaseURL, logs)
	if err != nil {
		logs.Errorw("failed to open database", "error", err)
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logs.Errorw("failed to close database", "error", err)
		}
	}()

	if err := database.MigrateModels(&users.User{}); err != nil {
		logs.Errorw("failed to migrate database", "error", err)
		return err
	}

	userStore := users.NewGormStore(database)
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)

	sessionManager, err := auth.NewSessionManager(userStore, auth.StoreOptions{
		Backend: cfg.SessionBackend,
		Secret:  []byte(cfg.SessionSecret),
		MaxAge:  cfg.SessionMaxAge,
		Secure:  cfg.GinMode == gin.ReleaseMode,
	}, logs)
	if err != nil {
		logs.Errorw("failed to create session store", "error", err)
		return err
	}

	throttle, closeThrottle, err := setupThrottle(ctx, cfg, logs)
	if err != nil {
		logs.Errorw("failed to set up login throttle", "error", err)
		return err
	}
	defer closeThrottle()

	router, err := web.NewRouter(web.Dependencies{
		Accounts:       account.NewService(userStore, hasher, logs),
		Authenticator:  auth.NewAuthenticator(userStore, hasher),
		Sessions:       sessionManager,
		Throttle:       throttle,
		Logs:           logs,
		AllowedOrigins: cfg.AllowedOrigins(),
		Version:        Version,
	})
	if err != nil {
		logs.Errorw("failed to build router", "error", err)
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logs.Infow("starting server", "addr", srv.Addr, "mode", cfg.GinMode, "session_backend", cfg.SessionBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logs.Errorw("server stopped", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logs.Infow("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logs.Errorw("graceful shutdown failed", "error", err)
		return err
	}
	logs.Infow("server stopped")
	return nil
}
