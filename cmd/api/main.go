// Package main provides the HTTP mirror of the moderation core.
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

	"github.com/redis/rueidis"

	"github.com/learnsphere/moderation/internal/config"
	"github.com/learnsphere/moderation/internal/core"
	"github.com/learnsphere/moderation/internal/httpapi"
	"github.com/learnsphere/moderation/internal/logger"
	"github.com/learnsphere/moderation/internal/storesync"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	exitCode          = 1
)

func startRelay(ctx context.Context, cfg *config.Config, c *core.Context, log *slog.Logger) (func(), error) {
	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		return nil, err
	}

	deliverer := storesync.NewDeliverer(c.Bus, c.Origin(),
		storesync.WithExclusive(c.Exclusive),
		storesync.WithLogger(log),
	)
	relay := storesync.NewRelay(redisClient, cfg.SyncStream, deliverer)

	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.Run(ctx)
	}()

	return func() {
		<-done
		redisClient.Close()
	}, nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := core.Open(ctx, cfg, log)
	if err != nil {
		slog.Error("failed to open core", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer c.Close()

	if _, err := c.Seed(ctx); err != nil {
		slog.Error("failed to seed users", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	if cfg.SyncEnabled {
		waitRelay, err := startRelay(ctx, cfg, c, log)
		if err != nil {
			slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(exitCode)
		}
		defer waitRelay()
	}

	issuer := httpapi.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewServer(c, issuer, cfg.DemoPassword, log).Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, stopping API server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shut down server", slog.String("error", err.Error()))
		}
	}()

	slog.Info("starting API server",
		slog.String("service", "api"),
		slog.String("port", cfg.Port),
		slog.String("store", cfg.StoreDriver),
		slog.Bool("sync", cfg.SyncEnabled),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("failed to start server", slog.String("error", err.Error()))
		stop()
	}
}
