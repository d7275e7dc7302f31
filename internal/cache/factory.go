package cache

import "time"

// Config selects and tunes a cache backend.
type Config struct {
	// RedisURL selects the Redis backend when non-empty; otherwise the
	// in-memory backend is used.
	RedisURL string

	// Prefix is the key prefix for the Redis backend.
	Prefix string

	// DefaultTTL is the default TTL for cache entries.
	DefaultTTL time.Duration

	// MaxSize is the entry cap for the memory backend (0 = unlimited).
	MaxSize int

	// CleanupInterval is the expired-entry sweep interval for the memory
	// backend.
	CleanupInterval time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      time.Hour,
		MaxSize:         10000,
		CleanupInterval: time.Minute,
	}
}

// New creates a cache from the configuration: Redis when a URL is set,
// in-memory otherwise.
func New(cfg Config) (Cacher, error) {
	if cfg.RedisURL != "" {
		return NewRedisCacheFromURL(cfg.RedisURL, cfg.Prefix, cfg.DefaultTTL)
	}
	return NewMemoryCache(MemoryCacheOptions{
		DefaultTTL:      cfg.DefaultTTL,
		MaxSize:         cfg.MaxSize,
		CleanupInterval: cfg.CleanupInterval,
	}), nil
}
