// Package main provides the outbox publisher that relays committed store changes to a Redis stream.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/rueidis"

	"github.com/learnsphere/moderation/internal/config"
	"github.com/learnsphere/moderation/internal/core"
	"github.com/learnsphere/moderation/internal/logger"
	"github.com/learnsphere/moderation/internal/store"
	"github.com/learnsphere/moderation/internal/storesync"
)

const (
	publisherOrigin = "publisher"
	exitCode        = 1
)

var errNoOutbox = errors.New("store driver keeps no shared outbox")

func openOutbox(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Store, store.Outbox, error) {
	if cfg.StoreDriver == config.DriverMemory {
		return nil, nil, errNoOutbox
	}

	s, err := core.OpenStore(ctx, cfg, publisherOrigin, log)
	if err != nil {
		return nil, nil, err
	}

	outbox, ok := s.(store.Outbox)
	if !ok {
		_ = s.Close()
		return nil, nil, errNoOutbox
	}

	return s, outbox, nil
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

	s, outbox, err := openOutbox(ctx, cfg, log)
	if err != nil {
		slog.Error("failed to open store", slog.String("driver", cfg.StoreDriver), slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer s.Close()

	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
		return
	}
	defer redisClient.Close()

	publisher := storesync.NewPublisher(outbox, storesync.NewStreamSink(redisClient, cfg.SyncStream), log)

	slog.Info("starting outbox publisher",
		slog.String("service", "publisher"),
		slog.String("stream", cfg.SyncStream),
		slog.Duration("poll_interval", cfg.PublisherPollInterval),
		slog.Int("batch_size", cfg.PublisherBatchSize),
	)

	publisher.Run(ctx, cfg.PublisherPollInterval, cfg.PublisherBatchSize)
}
