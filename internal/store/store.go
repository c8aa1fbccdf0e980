// Package store provides the persistent chat.Store backends and a factory
// that picks one from configuration.
package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/pollchat/internal/chat"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend     string
	Capacity    int
	DatabaseURL string
	RedisURL    string
	KeyPrefix   string
}

// Open connects to the configured backend. Persistent backends are pinged
// (and migrated, for Postgres) before Open returns.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (chat.Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		logger.Info().Int("capacity", capacityOrDefault(cfg.Capacity)).Msg("using in-memory message buffer")
		return chat.NewRing(cfg.Capacity), nil

	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres backend requires DATABASE_URL")
		}
		s, err := NewPostgresStore(ctx, cfg.DatabaseURL, cfg.Capacity, logger)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to PostgreSQL")
		return s, nil

	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis backend requires REDIS_URL")
		}
		s, err := NewRedisStore(ctx, cfg.RedisURL, cfg.Capacity, cfg.KeyPrefix)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to Redis")
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func capacityOrDefault(capacity int) int {
	if capacity <= 0 {
		return chat.DefaultCapacity
	}
	return capacity
}
