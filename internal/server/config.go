// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the GoChat service.
package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/pollchat/internal/chat"
	"github.com/Tyrowin/pollchat/internal/store"
)

// RateLimitConfig defines the parameters for per-client message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST" envDefault:"5"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"1s"`
}

// StoreConfig selects the message buffer backend.
type StoreConfig struct {
	Backend        string `env:"STORE_BACKEND" envDefault:"memory"`
	DatabaseURL    string `env:"DATABASE_URL"`
	RedisURL       string `env:"REDIS_URL"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"gochat"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port     string `env:"SERVER_PORT" envDefault:":8080"`
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:8080"`
	MaxMessageSize int64    `env:"MAX_MESSAGE_SIZE" envDefault:"512"`
	RateLimit      RateLimitConfig

	// BufferSize is the number of messages the buffer retains.
	BufferSize int `env:"BUFFER_SIZE" envDefault:"200"`
	// PollTimeout bounds a single long poll. Zero lets a poll wait until the
	// client disconnects.
	PollTimeout     time.Duration `env:"POLL_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MessageIDFormat string        `env:"MESSAGE_ID_FORMAT" envDefault:"uuid"`

	Store StoreConfig
}

func defaultConfig() Config {
	return Config{
		Port:     ":8080",
		Env:      "development",
		LogLevel: "info",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 512,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		BufferSize:      chat.DefaultCapacity,
		PollTimeout:     30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MessageIDFormat: "uuid",
		Store: StoreConfig{
			Backend:        store.BackendMemory,
			RedisKeyPrefix: "gochat",
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if cfg.Env == "" {
		cfg.Env = "development"
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 512
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 5
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.BufferSize <= 0 {
		cfg.BufferSize = chat.DefaultCapacity
	}

	if cfg.PollTimeout < 0 {
		cfg.PollTimeout = 0
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = store.BackendMemory
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables,
// loading a .env file first when one exists. Unset variables fall back to
// defaults; malformed values are reported as an error.
func NewConfigFromEnv() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg = sanitizeConfig(cfg)
	return &cfg, nil
}

// Validate reports configuration combinations that cannot work.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case store.BackendMemory:
	case store.BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
	case store.BackendRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("STORE_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	if _, err := chat.NewIDGenerator(c.MessageIDFormat); err != nil {
		return err
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// StoreOptions converts the store settings into a store.Config.
func (c *Config) StoreOptions() store.Config {
	return store.Config{
		Backend:     c.Store.Backend,
		Capacity:    c.BufferSize,
		DatabaseURL: c.Store.DatabaseURL,
		RedisURL:    c.Store.RedisURL,
		KeyPrefix:   c.Store.RedisKeyPrefix,
	}
}
