package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/inkpress/inkpress/internal/model"
)

const postColumns = `id, title, slug, body, excerpt, featured_image, status, author_id,
	view_count, meta_title, meta_description, created_at, updated_at, published_at`

func scanPost(row interface{ Scan(...any) error }) (model.Post, error) {
	var p model.Post
	var createdAt, updatedAt string
	var publishedAt sql.NullString
	if err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Body, &p.Excerpt, &p.FeaturedImage,
		&p.Status, &p.AuthorID, &p.ViewCount, &p.MetaTitle, &p.MetaDescription,
		&createdAt, &updatedAt, &publishedAt); err != nil {
		return model.Post{}, err
	}
	var err error
	if p.CreatedAt, err = ParseTime(createdAt); err != nil {
		return model.Post{}, err
	}
	if p.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return model.Post{}, err
	}
	if p.PublishedAt, err = nullTimeString(publishedAt); err != nil {
		return model.Post{}, err
	}
	return p, nil
}

// CreatePostParams holds the fields for creating a post.
type CreatePostParams struct {
	Title           string
	Slug            string
	Body            string
	Excerpt         sql.NullString
	FeaturedImage   sql.NullString
	Status          string
	AuthorID        int64
	MetaTitle       sql.NullString
	MetaDescription sql.NullString
	PublishedAt     sql.NullTime
}

// CreatePost inserts a new post and returns it.
func (q *Queries) CreatePost(ctx context.Context, p CreatePostParams) (model.Post, error) {
	now := FormatTime(time.Now())
	var publishedAt any
	if p.PublishedAt.Valid {
		publishedAt = FormatTime(p.PublishedAt.Time)
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO posts (title, slug, body, excerpt, featured_image, status, author_id,
			meta_title, meta_description, created_at, updated_at, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Title, p.Slug, p.Body, p.Excerpt, p.FeaturedImage, p.Status, p.AuthorID,
		p.MetaTitle, p.MetaDescription, now, now, publishedAt)
	if err != nil {
		return model.Post{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Post{}, err
	}
	return q.GetPostByID(ctx, id)
}

// UpdatePostParams holds the fields for updating a post.
type UpdatePostParams struct {
	ID              int64
	Title           string
	Slug            string
	Body            string
	Excerpt         sql.NullString
	FeaturedImage   sql.NullString
	Status          string
	MetaTitle       sql.NullString
	MetaDescription sql.NullString
	PublishedAt     sql.NullTime
}

// UpdatePost updates a post's editable fields and returns the updated row.
func (q *Queries) UpdatePost(ctx context.Context, p UpdatePostParams) (model.Post, error) {
	var publishedAt any
	if p.PublishedAt.Valid {
		publishedAt = FormatTime(p.PublishedAt.Time)
	}
	_, err := q.db.ExecContext(ctx, `
		UPDATE posts SET title = ?, slug = ?, body = ?, excerpt = ?, featured_image = ?,
			status = ?, meta_title = ?, meta_description = ?, published_at = ?, updated_at = ?
		WHERE id = ?
	`, p.Title, p.Slug, p.Body, p.Excerpt, p.FeaturedImage, p.Status,
		p.MetaTitle, p.MetaDescription, publishedAt, FormatTime(time.Now()), p.ID)
	if err != nil {
		return model.Post{}, err
	}
	return q.GetPostByID(ctx, p.ID)
}

// DeletePost removes a post. Join rows and comments cascade.
func (q *Queries) DeletePost(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	return err
}

// PublishPost marks a post published and stamps published_at.
func (q *Queries) PublishPost(ctx context.Context, id int64) (model.Post, error) {
	now := FormatTime(time.Now())
	_, err := q.db.ExecContext(ctx, `
		UPDATE posts SET status = ?, published_at = ?, updated_at = ? WHERE id = ?
	`, model.PostStatusPublished, now, now, id)
	if err != nil {
		return model.Post{}, err
	}
	return q.GetPostByID(ctx, id)
}

// GetPostByID returns the post with the given id.
func (q *Queries) GetPostByID(ctx context.Context, id int64) (model.Post, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	return scanPost(row)
}

// GetPostBySlug returns the post with the given slug.
func (q *Queries) GetPostBySlug(ctx context.Context, slug string) (model.Post, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE slug = ?`, slug)
	return scanPost(row)
}

// GetPublishedPostByID returns the post only if it exists and is published.
func (q *Queries) GetPublishedPostByID(ctx context.Context, id int64) (model.Post, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ? AND status = ?`,
		id, model.PostStatusPublished)
	return scanPost(row)
}

// ListPostsParams holds filters for listing posts.
type ListPostsParams struct {
	Status string // empty = all statuses
	Limit  int64
	Offset int64
}

// ListPosts returns posts ordered by creation time descending.
func (q *Queries) ListPosts(ctx context.Context, p ListPostsParams) ([]model.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts`
	args := []any{}
	if p.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, p.Status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, p.Limit, p.Offset)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var posts []model.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// CountPosts returns the number of posts, optionally filtered by status.
func (q *Queries) CountPosts(ctx context.Context, status string) (int64, error) {
	var n int64
	var err error
	if status == "" {
		err = q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n)
	} else {
		err = q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE status = ?`, status).Scan(&n)
	}
	return n, err
}

// CountPostsByStatus returns post counts keyed by status. Statuses with no
// posts are absent from the map.
func (q *Queries) CountPostsByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM posts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ListPublishedPostsForCategory returns published posts in a category, newest
// published first.
func (q *Queries) ListPublishedPostsForCategory(ctx context.Context, categoryID, limit int64) ([]model.Post, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+prefixColumns("p", postColumns)+`
		FROM posts p
		INNER JOIN post_categories pc ON pc.post_id = p.id
		WHERE pc.category_id = ? AND p.status = ?
		ORDER BY p.published_at DESC
		LIMIT ?
	`, categoryID, model.PostStatusPublished, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectPosts(rows)
}

// ListPublishedPostsForTag returns published posts carrying a tag, newest
// published first.
func (q *Queries) ListPublishedPostsForTag(ctx context.Context, tagID, limit int64) ([]model.Post, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+prefixColumns("p", postColumns)+`
		FROM posts p
		INNER JOIN post_tags pt ON pt.post_id = p.id
		WHERE pt.tag_id = ? AND p.status = ?
		ORDER BY p.published_at DESC
		LIMIT ?
	`, tagID, model.PostStatusPublished, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectPosts(rows)
}

func collectPosts(rows *sql.Rows) ([]model.Post, error) {
	var posts []model.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// PostSlugExists reports whether a slug is taken by a post other than excludeID.
func (q *Queries) PostSlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE slug = ? AND id != ?`, slug, excludeID).Scan(&n)
	return n > 0, err
}

// IncrementViewCount atomically adds 1 to a post's denormalized view counter.
// The add happens inside the UPDATE so concurrent recordings never lose
// increments. Returns sql.ErrNoRows if the post does not exist.
func (q *Queries) IncrementViewCount(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE posts SET view_count = view_count + 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PopularPost is a published post ranked by lifetime view count.
type PopularPost struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Slug       string `json:"slug"`
	ViewCount  int64  `json:"view_count"`
	AuthorName string `json:"author_name"`
}

// PopularPosts returns the top published posts by lifetime view_count.
// Ranking deliberately uses the denormalized counter, not any time window.
func (q *Queries) PopularPosts(ctx context.Context, limit int64) ([]PopularPost, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT p.id, p.title, p.slug, p.view_count, u.name
		FROM posts p
		INNER JOIN users u ON u.id = p.author_id
		WHERE p.status = ? AND p.view_count > 0
		ORDER BY p.view_count DESC
		LIMIT ?
	`, model.PostStatusPublished, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var posts []PopularPost
	for rows.Next() {
		var p PopularPost
		if err := rows.Scan(&p.ID, &p.Title, &p.Slug, &p.ViewCount, &p.AuthorName); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// RecentPost is a post listing row with its author name.
type RecentPost struct {
	Post       model.Post `json:"post"`
	AuthorName string     `json:"author_name"`
}

// RecentPosts returns the most recently created posts with author names.
func (q *Queries) RecentPosts(ctx context.Context, limit int64) ([]RecentPost, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+prefixColumns("p", postColumns)+`, u.name
		FROM posts p
		INNER JOIN users u ON u.id = p.author_id
		ORDER BY p.created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var posts []RecentPost
	for rows.Next() {
		var rp RecentPost
		var createdAt, updatedAt string
		var publishedAt sql.NullString
		p := &rp.Post
		if err := rows.Scan(&p.ID, &p.Title, &p.Slug, &p.Body, &p.Excerpt, &p.FeaturedImage,
			&p.Status, &p.AuthorID, &p.ViewCount, &p.MetaTitle, &p.MetaDescription,
			&createdAt, &updatedAt, &publishedAt, &rp.AuthorName); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = ParseTime(updatedAt); err != nil {
			return nil, err
		}
		if p.PublishedAt, err = nullTimeString(publishedAt); err != nil {
			return nil, err
		}
		posts = append(posts, rp)
	}
	return posts, rows.Err()
}

// PublishDuePosts promotes scheduled posts whose publish time has passed.
// Returns the number of posts published.
func (q *Queries) PublishDuePosts(ctx context.Context, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE posts SET status = ?, updated_at = ?
		WHERE status = ? AND published_at IS NOT NULL AND published_at <= ?
	`, model.PostStatusPublished, FormatTime(now), model.PostStatusScheduled, FormatTime(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetPostCategories replaces a post's category assignments.
func (q *Queries) SetPostCategories(ctx context.Context, postID int64, categoryIDs []int64) error {
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM post_categories WHERE post_id = ?`, postID); err != nil {
		return err
	}
	for _, cid := range categoryIDs {
		if _, err := q.db.ExecContext(ctx,
			`INSERT INTO post_categories (post_id, category_id) VALUES (?, ?)`, postID, cid); err != nil {
			return err
		}
	}
	return nil
}

// SetPostTags replaces a post's tag assignments.
func (q *Queries) SetPostTags(ctx context.Context, postID int64, tagIDs []int64) error {
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM post_tags WHERE post_id = ?`, postID); err != nil {
		return err
	}
	for _, tid := range tagIDs {
		if _, err := q.db.ExecContext(ctx,
			`INSERT INTO post_tags (post_id, tag_id) VALUES (?, ?)`, postID, tid); err != nil {
			return err
		}
	}
	return nil
}

// GetPostCategories returns the categories attached to a post.
func (q *Queries) GetPostCategories(ctx context.Context, postID int64) ([]model.Category, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.slug, c.description, c.created_at, c.updated_at
		FROM categories c
		INNER JOIN post_categories pc ON pc.category_id = c.id
		WHERE pc.post_id = ?
		ORDER BY c.name
	`, postID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectCategories(rows)
}

// GetPostTags returns the tags attached to a post.
func (q *Queries) GetPostTags(ctx context.Context, postID int64) ([]model.Tag, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.slug, t.description, t.color, t.created_at, t.updated_at
		FROM tags t
		INNER JOIN post_tags pt ON pt.tag_id = t.id
		WHERE pt.post_id = ?
		ORDER BY t.name
	`, postID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectTags(rows)
}
