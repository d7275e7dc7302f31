package model

import (
	"database/sql"
	"time"
)

// Post statuses
const (
	PostStatusDraft     = "draft"
	PostStatusPublished = "published"
	PostStatusScheduled = "scheduled"
	PostStatusArchived  = "archived"
)

// ValidPostStatus reports whether s is a known post status.
func ValidPostStatus(s string) bool {
	switch s {
	case PostStatusDraft, PostStatusPublished, PostStatusScheduled, PostStatusArchived:
		return true
	}
	return false
}

// Post represents a blog post.
type Post struct {
	ID              int64          `json:"id"`
	Title           string         `json:"title"`
	Slug            string         `json:"slug"`
	Body            string         `json:"body"`
	Excerpt         sql.NullString `json:"excerpt,omitempty"`
	FeaturedImage   sql.NullString `json:"featured_image,omitempty"`
	Status          string         `json:"status"`
	AuthorID        int64          `json:"author_id"`
	ViewCount       int64          `json:"view_count"`
	MetaTitle       sql.NullString `json:"meta_title,omitempty"`
	MetaDescription sql.NullString `json:"meta_description,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	PublishedAt     sql.NullTime   `json:"published_at,omitempty"`
}

// IsPublished returns true if the post is published.
func (p *Post) IsPublished() bool {
	return p.Status == PostStatusPublished
}

// IsDraft returns true if the post is a draft.
func (p *Post) IsDraft() bool {
	return p.Status == PostStatusDraft
}
