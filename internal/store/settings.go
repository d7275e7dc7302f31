package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/inkpress/inkpress/internal/model"
)

// GetSetting returns the setting stored under key.
func (q *Queries) GetSetting(ctx context.Context, key string) (model.Setting, error) {
	var s model.Setting
	var updatedAt string
	err := q.db.QueryRowContext(ctx, `
		SELECT key, value, description, updated_at FROM settings WHERE key = ?
	`, key).Scan(&s.Key, &s.Value, &s.Description, &updatedAt)
	if err != nil {
		return model.Setting{}, err
	}
	if s.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return model.Setting{}, err
	}
	return s, nil
}

// ListSettings returns all settings keyed by name.
func (q *Queries) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// UpsertSettingParams holds the fields for writing a setting.
type UpsertSettingParams struct {
	Key         string
	Value       string
	Description sql.NullString
}

// UpsertSetting creates or replaces the setting stored under key.
func (q *Queries) UpsertSetting(ctx context.Context, p UpsertSettingParams) (model.Setting, error) {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, description, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			description = excluded.description,
			updated_at = excluded.updated_at
	`, p.Key, p.Value, p.Description, FormatTime(time.Now()))
	if err != nil {
		return model.Setting{}, err
	}
	return q.GetSetting(ctx, p.Key)
}
