package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/mukkaai/authd/api"
	"github.com/mukkaai/authd/auth"
	"github.com/mukkaai/authd/config"
	"github.com/mukkaai/authd/store/backend"
)

const sweepInterval = time.Hour

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the authentication service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stores, err := backend.Open(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("opening storage backend: %w", err)
		}
		defer stores.Close(context.Background())

		issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.RefreshTokenSecret, cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)
		svc := auth.NewService(stores.Users, stores.RefreshTokens, stores.ResetTokens, issuer, logger,
			auth.WithRefreshTokens(cfg.EnableRefreshTokens))

		opts := []api.Option{
			api.WithLogger(logger),
			api.WithProduction(cfg.Production),
			api.WithAccountLockout(cfg.EnableAccountLockout),
			api.WithBackendName(string(stores.Kind)),
			api.WithHealthCheck(stores.Ping),
		}
		trail, err := api.OpenAuditTrail(cfg.AuditLogPath)
		if err != nil {
			// The trail is an enhancement; audit events still go to the
			// structured log.
			logger.Error("audit trail unavailable", "error", err, "path", cfg.AuditLogPath)
		} else {
			defer trail.Close()
			opts = append(opts, api.WithAuditTrail(trail))
		}

		a := api.New(svc, issuer, opts...)

		go svc.RunSweeper(ctx, sweepInterval)

		r := chi.NewRouter()
		r.Use(middleware.Recoverer)
		r.Mount("/", a.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		logger.Info("server started", "port", cfg.Port, "backend", stores.Kind, "production", cfg.Production)

		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
