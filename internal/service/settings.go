package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/inkpress/inkpress/internal/cache"
	"github.com/inkpress/inkpress/internal/model"
	"github.com/inkpress/inkpress/internal/store"
)

// settingCachePrefix namespaces setting keys in the shared cache.
const settingCachePrefix = "setting:"

// settingCacheTTL bounds staleness when another instance writes a setting
// behind a Redis cache.
const settingCacheTTL = 5 * time.Minute

// ErrSettingNotFound means no setting exists under the requested key.
var ErrSettingNotFound = errors.New("setting not found")

// SettingsService reads and writes site settings through a cache. The layout
// configuration is read on every public page render, which is what the cache
// is for; analytics queries never go through here.
type SettingsService struct {
	queries *store.Queries
	cache   cache.Cacher
	logger  *slog.Logger
}

// NewSettingsService creates a settings service backed by the given cache.
func NewSettingsService(db *sql.DB, c cache.Cacher, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		queries: store.New(db),
		cache:   c,
		logger:  logger,
	}
}

// Get returns the value stored under key, from cache when possible.
func (s *SettingsService) Get(ctx context.Context, key string) (string, error) {
	if val, err := s.cache.Get(ctx, settingCachePrefix+key); err == nil {
		return string(val), nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		// A broken cache backend degrades to DB reads, it never fails the
		// request.
		s.logger.Warn("setting cache read failed", "key", key, "error", err)
	}

	setting, err := s.queries.GetSetting(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSettingNotFound
		}
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}

	if err := s.cache.Set(ctx, settingCachePrefix+key, []byte(setting.Value), settingCacheTTL); err != nil {
		s.logger.Warn("setting cache write failed", "key", key, "error", err)
	}
	return setting.Value, nil
}

// Set writes a setting and refreshes the cache.
func (s *SettingsService) Set(ctx context.Context, key, value string, description sql.NullString) (model.Setting, error) {
	setting, err := s.queries.UpsertSetting(ctx, store.UpsertSettingParams{
		Key:         key,
		Value:       value,
		Description: description,
	})
	if err != nil {
		return model.Setting{}, fmt.Errorf("upsert setting %q: %w", key, err)
	}

	if err := s.cache.Set(ctx, settingCachePrefix+key, []byte(setting.Value), settingCacheTTL); err != nil {
		s.logger.Warn("setting cache write failed", "key", key, "error", err)
	}
	return setting, nil
}

// All returns every setting straight from the database. Admin-only listing,
// not worth caching.
func (s *SettingsService) All(ctx context.Context) (map[string]string, error) {
	return s.queries.ListSettings(ctx)
}

// LayoutConfig returns the layout configuration JSON blob, or "{}" when none
// has been saved yet.
func (s *SettingsService) LayoutConfig(ctx context.Context) (string, error) {
	val, err := s.Get(ctx, model.SettingKeyLayout)
	if errors.Is(err, ErrSettingNotFound) {
		return "{}", nil
	}
	return val, err
}

// SetLayoutConfig stores the layout configuration JSON blob.
func (s *SettingsService) SetLayoutConfig(ctx context.Context, value string) (model.Setting, error) {
	return s.Set(ctx, model.SettingKeyLayout, value,
		sql.NullString{String: "Public site layout configuration", Valid: true})
}
