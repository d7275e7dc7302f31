package model

import "time"

// Comment is a visitor comment on a post. Comments start unapproved and are
// only visible on the public API once a moderator approves them.
type Comment struct {
	ID          int64     `json:"id"`
	PostID      int64     `json:"post_id"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	Body        string    `json:"body"`
	Approved    bool      `json:"approved"`
	CreatedAt   time.Time `json:"created_at"`
}
