package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eleven-am/trackie/internal/faces"
	"github.com/eleven-am/trackie/internal/journal"
	"github.com/eleven-am/trackie/internal/vision"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideVisionStore(cfg *Config, redisClient *redis.Client) *vision.Store {
	if redisClient == nil {
		return nil
	}
	return vision.NewStore(redisClient, cfg.Vision.HistoryTTL)
}

func ProvideJournalStore(db *gorm.DB) (*journal.Store, error) {
	if db == nil {
		return nil, nil
	}
	store := journal.NewStore(db)
	if err := store.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return store, nil
}

func ProvideFaceRegistry(cfg *Config, qdrantClient *qdrant.Client, logger *slog.Logger) *faces.Registry {
	if qdrantClient == nil {
		return nil
	}
	return faces.NewRegistry(qdrantClient, faces.Config{
		Collection: cfg.Faces.Collection,
		Threshold:  cfg.Faces.Threshold,
	}, logger)
}

func StartJournalPruner(lc fx.Lifecycle, cfg *Config, store *journal.Store, logger *slog.Logger) {
	if store == nil {
		return
	}
	pruner := journal.NewPruner(store, cfg.Database.Retention, logger)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return pruner.Start(cfg.Database.PruneSchedule)
		},
		OnStop: func(ctx context.Context) error {
			pruner.Stop()
			return nil
		},
	})
}

var StoresModule = fx.Options(
	fx.Provide(
		ProvideVisionStore,
		ProvideJournalStore,
		ProvideFaceRegistry,
	),
	fx.Invoke(StartJournalPruner),
)
