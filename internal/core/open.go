package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/learnsphere/moderation/internal/config"
	"github.com/learnsphere/moderation/internal/store"
	"github.com/learnsphere/moderation/internal/store/postgres"
	"github.com/learnsphere/moderation/internal/store/sqlite"
)

// OpenStore opens the store cfg.StoreDriver names, stamping changes with origin.
func OpenStore(ctx context.Context, cfg *config.Config, origin string, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return store.NewMemory(
			store.WithQuota(cfg.StoreQuotaBytes),
			store.WithDefaultOrigin(origin),
			store.WithMemoryLogger(logger),
		), nil
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath, origin, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL, origin, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.StoreDriver)
	}
}

// Open builds a core from configuration. Notifications are recorded inline
// unless cross-process sync is on, in which case the consumer owns them.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Context, error) {
	origin := cfg.InstanceID
	if origin == "" {
		origin = uuid.NewString()
	}

	s, err := OpenStore(ctx, cfg, origin, logger)
	if err != nil {
		return nil, err
	}

	return New(s,
		WithOrigin(origin),
		WithMaxDepth(cfg.MaxDispatchDepth),
		WithMaxFileSize(cfg.MaxNoteFileSize),
		WithCapacityEnforced(cfg.EnforceCapacity),
		WithInlineNotifications(!cfg.SyncEnabled),
		WithLogger(logger),
	), nil
}
