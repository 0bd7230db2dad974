package app

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"

	"github.com/MrSnakeDoc/stash/internal/config"
	"github.com/MrSnakeDoc/stash/internal/kv"
	"github.com/MrSnakeDoc/stash/internal/logger"
	"github.com/MrSnakeDoc/stash/internal/redis"
)

// OpenStorage opens the backend selected by cfg.Storage.
func OpenStorage(ctx context.Context, cfg *config.Config, log logger.Logger) (kv.Store, error) {
	if cfg.Storage != config.StorageRedis && cfg.Storage != config.StorageMemory {
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	switch cfg.Storage {
	case config.StorageMemory:
		log.Warn("using in-memory storage, nothing survives a restart")
		return kv.NewMemory(), nil
	case config.StorageSQLite:
		return kv.OpenSQLite(cfg.StoragePath())
	case config.StoragePebble:
		return kv.OpenPebble(cfg.StoragePath(), &pebble.Options{})
	case config.StorageRedis:
		client, err := redis.Connect(ctx, redis.Options{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			DB:             cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, log)
		if err != nil {
			return nil, err
		}
		return kv.NewRedis(client), nil
	default:
		return kv.OpenFile(cfg.StoragePath())
	}
}
