package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

// Config is the whole environment surface. Defaults are overridden by env
// variables; Load fails fast on anything invalid so a misconfigured process
// never starts serving.
type Config struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL" validate:"required"`
	SentryDSN   string `env:"SENTRY_DSN"`
	CronSecret  string `env:"CRON_SECRET"`

	Server    ServerConfig    `envPrefix:"SERVER_"`
	JWT       JWTConfig       `envPrefix:"JWT_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Cleanup   CleanupConfig   `envPrefix:"CLEANUP_"`
}

type ServerConfig struct {
	Port         string        `env:"PORT" envDefault:"8080" validate:"required,numeric"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s" validate:"gt=0"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s" validate:"gt=0"`
}

type JWTConfig struct {
	Secret          string        `env:"SECRET" validate:"required"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m" validate:"gt=0"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h" validate:"gt=0"`
	CodeTTL         time.Duration `env:"CODE_TTL" envDefault:"24h" validate:"gt=0"`
}

// RateLimitConfig bounds requests per (ip, route): within Window, request
// number Max+1 and later are rejected.
type RateLimitConfig struct {
	Window time.Duration `env:"WINDOW" envDefault:"10s" validate:"gt=0"`
	Max    int           `env:"MAX" envDefault:"4" validate:"gt=0"`
}

type CleanupConfig struct {
	RequestRetention time.Duration `env:"REQUEST_RETENTION" envDefault:"1h" validate:"gt=0"`
	BatchSize        int           `env:"BATCH_SIZE" envDefault:"500" validate:"gt=0"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
