package model

import (
	"database/sql"
	"time"
)

// Well-known setting keys.
const (
	SettingKeyLayout          = "layout_config"
	SettingKeySiteTitle       = "site.title"
	SettingKeySiteDescription = "site.description"
)

// Setting is a site-wide key/value configuration row.
type Setting struct {
	Key         string         `json:"key"`
	Value       string         `json:"value"`
	Description sql.NullString `json:"description,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
