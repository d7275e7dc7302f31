package model

import (
	"database/sql"
	"time"
)

// PostView is one immutable record of a single page view against a post.
// Rows are append-only: they are created by the view recorder and never
// updated or deleted afterwards. IPAddress is used only as a de-duplication
// key for unique-view counts and is never exposed through the API.
type PostView struct {
	ID         string         `json:"id"`
	PostID     int64          `json:"post_id"`
	UserAgent  sql.NullString `json:"user_agent,omitempty"`
	IPAddress  sql.NullString `json:"-"`
	Referer    sql.NullString `json:"referer,omitempty"`
	Browser    string         `json:"browser,omitempty"`
	OS         string         `json:"os,omitempty"`
	DeviceType string         `json:"device_type,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
