package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erazemk/oskrba/internal/api"
	"github.com/erazemk/oskrba/internal/config"
	"github.com/erazemk/oskrba/internal/db"
	"github.com/erazemk/oskrba/internal/metrics"
	"github.com/erazemk/oskrba/internal/store"
)

func cmdServe(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.StringVar(&cfg.Addr, "a", cfg.Addr, "listen address")
	fs.BoolVar(&cfg.Auth, "auth", cfg.Auth, "require bearer tokens on the state endpoints")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	// Ensure schema exists (idempotent).
	if err := db.EnsureSchema(database); err != nil {
		return fmt.Errorf("ensuring database schema: %w", err)
	}
	slog.Info("database ready", "path", cfg.DBPath)

	secret, err := serverSecret(context.Background(), cfg, database)
	if err != nil {
		return err
	}
	if secret == "" {
		slog.Warn("authentication disabled, the state endpoints are public")
	}

	m := metrics.New()
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(api.NewRouter(database, secret, m)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}

// serverSecret returns the JWT signing key, or "" when auth is disabled.
// Without an explicit key one is generated once and kept in the database.
func serverSecret(ctx context.Context, cfg config.Config, database *sql.DB) (string, error) {
	if !cfg.Auth {
		return "", nil
	}
	if cfg.JWTSecret != "" {
		return cfg.JWTSecret, nil
	}
	secret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return "", fmt.Errorf("getting JWT secret: %w", err)
	}
	return secret, nil
}
