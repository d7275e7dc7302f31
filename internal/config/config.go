// Package config loads application configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// MinSessionSecretLength is the minimum required length for the session secret.
const MinSessionSecretLength = 32

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath        string `env:"INKPRESS_DB_PATH" envDefault:"./data/inkpress.db"`
	SessionSecret string `env:"INKPRESS_SESSION_SECRET,required"`
	ServerHost    string `env:"INKPRESS_SERVER_HOST" envDefault:"localhost"`
	ServerPort    int    `env:"INKPRESS_SERVER_PORT" envDefault:"8080"`
	Env           string `env:"INKPRESS_ENV" envDefault:"development"`
	LogLevel      string `env:"INKPRESS_LOG_LEVEL" envDefault:"info"`
	BaseURL       string `env:"INKPRESS_BASE_URL" envDefault:"http://localhost:8080"`

	// Cache configuration. RedisURL switches the settings cache from the
	// in-process backend to Redis.
	RedisURL     string `env:"INKPRESS_REDIS_URL"`
	CachePrefix  string `env:"INKPRESS_CACHE_PREFIX" envDefault:"inkpress:"`
	CacheTTL     int    `env:"INKPRESS_CACHE_TTL" envDefault:"3600"`
	CacheMaxSize int    `env:"INKPRESS_CACHE_MAX_SIZE" envDefault:"10000"`

	// Seeding configuration
	DoSeed bool `env:"INKPRESS_DO_SEED" envDefault:"false"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.SessionSecret) < MinSessionSecretLength {
		return nil, fmt.Errorf("INKPRESS_SESSION_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinSessionSecretLength, len(cfg.SessionSecret))
	}

	return cfg, nil
}
