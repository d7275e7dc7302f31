package model

import (
	"database/sql"
	"time"
)

// DefaultTagColor is assigned to tags created without an explicit color.
const DefaultTagColor = "#3B82F6"

// Category groups posts by topic.
type Category struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	Description sql.NullString `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Tag is a free-form label attached to posts.
type Tag struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	Description sql.NullString `json:"description,omitempty"`
	Color       string         `json:"color"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
