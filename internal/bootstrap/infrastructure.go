package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ProvideRedisClient returns nil when no address is configured; detection
// history and alert cooldowns then stay in memory.
func ProvideRedisClient(cfg *Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideDatabase opens the journal database, or returns nil when the
// journal is disabled.
func ProvideDatabase(cfg *Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "none":
		return nil, nil
	case "postgres":
		dialector = postgres.Open(cfg.Database.DSN)
	default:
		dialector = sqlite.Open(cfg.Database.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Database.Driver, err)
	}
	return db, nil
}

func ProvideQdrantClient(cfg *Config) (*qdrant.Client, error) {
	if cfg.Qdrant.Host == "" {
		return nil, nil
	}
	return qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
	})
}

func CloseInfrastructure(lc fx.Lifecycle, redisClient *redis.Client, db *gorm.DB, qdrantClient *qdrant.Client, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if redisClient != nil {
				if err := redisClient.Close(); err != nil {
					logger.Warn("close redis", "error", err)
				}
			}
			if qdrantClient != nil {
				if err := qdrantClient.Close(); err != nil {
					logger.Warn("close qdrant", "error", err)
				}
			}
			if db != nil {
				if sqlDB, err := db.DB(); err == nil {
					if err := sqlDB.Close(); err != nil {
						logger.Warn("close database", "error", err)
					}
				}
			}
			return nil
		},
	})
}

var InfrastructureModule = fx.Options(
	fx.Provide(
		ProvideRedisClient,
		ProvideDatabase,
		ProvideQdrantClient,
	),
	fx.Invoke(CloseInfrastructure),
)
