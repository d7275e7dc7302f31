package store

import (
	"context"
	"time"

	"github.com/inkpress/inkpress/internal/model"
)

func scanComment(row interface{ Scan(...any) error }) (model.Comment, error) {
	var c model.Comment
	var createdAt string
	if err := row.Scan(&c.ID, &c.PostID, &c.AuthorName, &c.AuthorEmail, &c.Body,
		&c.Approved, &createdAt); err != nil {
		return model.Comment{}, err
	}
	var err error
	if c.CreatedAt, err = ParseTime(createdAt); err != nil {
		return model.Comment{}, err
	}
	return c, nil
}

// CreateCommentParams holds the fields for submitting a comment.
type CreateCommentParams struct {
	PostID      int64
	AuthorName  string
	AuthorEmail string
	Body        string
}

// CreateComment inserts a new, unapproved comment and returns it.
func (q *Queries) CreateComment(ctx context.Context, p CreateCommentParams) (model.Comment, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO comments (post_id, author_name, author_email, body, approved, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`, p.PostID, p.AuthorName, p.AuthorEmail, p.Body, FormatTime(time.Now()))
	if err != nil {
		return model.Comment{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Comment{}, err
	}
	return q.GetCommentByID(ctx, id)
}

// GetCommentByID returns the comment with the given id.
func (q *Queries) GetCommentByID(ctx context.Context, id int64) (model.Comment, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, post_id, author_name, author_email, body, approved, created_at
		FROM comments WHERE id = ?`, id)
	return scanComment(row)
}

// ListApprovedComments returns a post's approved comments, newest first.
func (q *Queries) ListApprovedComments(ctx context.Context, postID int64) ([]model.Comment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, post_id, author_name, author_email, body, approved, created_at
		FROM comments
		WHERE post_id = ? AND approved = 1
		ORDER BY created_at DESC
	`, postID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectComments(rows)
}

// ListComments returns all comments, optionally only pending ones, newest first.
func (q *Queries) ListComments(ctx context.Context, pendingOnly bool) ([]model.Comment, error) {
	query := `
		SELECT id, post_id, author_name, author_email, body, approved, created_at
		FROM comments`
	if pendingOnly {
		query += ` WHERE approved = 0`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectComments(rows)
}

func collectComments(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]model.Comment, error) {
	var comments []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// ApproveComment marks a comment approved.
func (q *Queries) ApproveComment(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `UPDATE comments SET approved = 1 WHERE id = ?`, id)
	return err
}

// DeleteComment removes a comment.
func (q *Queries) DeleteComment(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	return err
}
