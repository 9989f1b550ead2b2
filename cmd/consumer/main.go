// Package main provides the consumer that turns change stream entries into inbox notifications.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/rueidis"

	"github.com/learnsphere/moderation/internal/config"
	"github.com/learnsphere/moderation/internal/core"
	"github.com/learnsphere/moderation/internal/logger"
	"github.com/learnsphere/moderation/internal/notify"
)

const exitCode = 1

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

	if cfg.StoreDriver == config.DriverMemory {
		slog.Error("consumer needs a shared store", slog.String("driver", cfg.StoreDriver))
		os.Exit(exitCode)
	}

	origin := "consumer:" + cfg.ConsumerName
	s, err := core.OpenStore(ctx, cfg, origin, log)
	if err != nil {
		slog.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer s.Close()

	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer redisClient.Close()

	inbox := notify.NewInbox(s, notify.WithLogger(log))
	consumer := notify.NewConsumer(redisClient, inbox, cfg.SyncStream, cfg.ConsumerGroup, cfg.ConsumerName)

	consumer.CreateGroup(ctx)
	consumer.Run(ctx)
}
