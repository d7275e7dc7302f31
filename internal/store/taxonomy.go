package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/inkpress/inkpress/internal/model"
)

func scanCategory(row interface{ Scan(...any) error }) (model.Category, error) {
	var c model.Category
	var createdAt, updatedAt string
	if err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &createdAt, &updatedAt); err != nil {
		return model.Category{}, err
	}
	var err error
	if c.CreatedAt, err = ParseTime(createdAt); err != nil {
		return model.Category{}, err
	}
	if c.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return model.Category{}, err
	}
	return c, nil
}

func collectCategories(rows *sql.Rows) ([]model.Category, error) {
	var categories []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func scanTag(row interface{ Scan(...any) error }) (model.Tag, error) {
	var t model.Tag
	var createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Description, &t.Color, &createdAt, &updatedAt); err != nil {
		return model.Tag{}, err
	}
	var err error
	if t.CreatedAt, err = ParseTime(createdAt); err != nil {
		return model.Tag{}, err
	}
	if t.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return model.Tag{}, err
	}
	return t, nil
}

func collectTags(rows *sql.Rows) ([]model.Tag, error) {
	var tags []model.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// CreateCategoryParams holds the fields for creating a category.
type CreateCategoryParams struct {
	Name        string
	Slug        string
	Description sql.NullString
}

// CreateCategory inserts a new category and returns it.
func (q *Queries) CreateCategory(ctx context.Context, p CreateCategoryParams) (model.Category, error) {
	now := FormatTime(time.Now())
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO categories (name, slug, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.Name, p.Slug, p.Description, now, now)
	if err != nil {
		return model.Category{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Category{}, err
	}
	return q.GetCategoryByID(ctx, id)
}

// UpdateCategoryParams holds the fields for updating a category.
type UpdateCategoryParams struct {
	ID          int64
	Name        string
	Slug        string
	Description sql.NullString
}

// UpdateCategory updates a category and returns the updated row.
func (q *Queries) UpdateCategory(ctx context.Context, p UpdateCategoryParams) (model.Category, error) {
	_, err := q.db.ExecContext(ctx, `
		UPDATE categories SET name = ?, slug = ?, description = ?, updated_at = ? WHERE id = ?
	`, p.Name, p.Slug, p.Description, FormatTime(time.Now()), p.ID)
	if err != nil {
		return model.Category{}, err
	}
	return q.GetCategoryByID(ctx, p.ID)
}

// DeleteCategory removes a category. Post assignments cascade; posts survive.
func (q *Queries) DeleteCategory(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	return err
}

// GetCategoryByID returns the category with the given id.
func (q *Queries) GetCategoryByID(ctx context.Context, id int64) (model.Category, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, slug, description, created_at, updated_at FROM categories WHERE id = ?`, id)
	return scanCategory(row)
}

// GetCategoryBySlug returns the category with the given slug.
func (q *Queries) GetCategoryBySlug(ctx context.Context, slug string) (model.Category, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, slug, description, created_at, updated_at FROM categories WHERE slug = ?`, slug)
	return scanCategory(row)
}

// ListCategories returns all categories ordered by name.
func (q *Queries) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, slug, description, created_at, updated_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectCategories(rows)
}

// CountPostsForCategory returns the number of posts assigned to a category.
func (q *Queries) CountPostsForCategory(ctx context.Context, categoryID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM post_categories WHERE category_id = ?`, categoryID).Scan(&n)
	return n, err
}

// CategorySlugExists reports whether a slug is taken by another category.
func (q *Queries) CategorySlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categories WHERE slug = ? AND id != ?`, slug, excludeID).Scan(&n)
	return n > 0, err
}

// CreateTagParams holds the fields for creating a tag.
type CreateTagParams struct {
	Name        string
	Slug        string
	Description sql.NullString
	Color       string
}

// CreateTag inserts a new tag and returns it.
func (q *Queries) CreateTag(ctx context.Context, p CreateTagParams) (model.Tag, error) {
	if p.Color == "" {
		p.Color = model.DefaultTagColor
	}
	now := FormatTime(time.Now())
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO tags (name, slug, description, color, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.Name, p.Slug, p.Description, p.Color, now, now)
	if err != nil {
		return model.Tag{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Tag{}, err
	}
	return q.GetTagByID(ctx, id)
}

// UpdateTagParams holds the fields for updating a tag.
type UpdateTagParams struct {
	ID          int64
	Name        string
	Slug        string
	Description sql.NullString
	Color       string
}

// UpdateTag updates a tag and returns the updated row.
func (q *Queries) UpdateTag(ctx context.Context, p UpdateTagParams) (model.Tag, error) {
	_, err := q.db.ExecContext(ctx, `
		UPDATE tags SET name = ?, slug = ?, description = ?, color = ?, updated_at = ? WHERE id = ?
	`, p.Name, p.Slug, p.Description, p.Color, FormatTime(time.Now()), p.ID)
	if err != nil {
		return model.Tag{}, err
	}
	return q.GetTagByID(ctx, p.ID)
}

// DeleteTag removes a tag. Post assignments cascade; posts survive.
func (q *Queries) DeleteTag(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	return err
}

// GetTagByID returns the tag with the given id.
func (q *Queries) GetTagByID(ctx context.Context, id int64) (model.Tag, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, slug, description, color, created_at, updated_at FROM tags WHERE id = ?`, id)
	return scanTag(row)
}

// GetTagBySlug returns the tag with the given slug.
func (q *Queries) GetTagBySlug(ctx context.Context, slug string) (model.Tag, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, slug, description, color, created_at, updated_at FROM tags WHERE slug = ?`, slug)
	return scanTag(row)
}

// ListTags returns all tags ordered by creation time descending.
func (q *Queries) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, slug, description, color, created_at, updated_at
		 FROM tags ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectTags(rows)
}

// CountTags returns the total number of tags.
func (q *Queries) CountTags(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&n)
	return n, err
}

// CountPostsForTag returns the number of posts assigned to a tag.
func (q *Queries) CountPostsForTag(ctx context.Context, tagID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM post_tags WHERE tag_id = ?`, tagID).Scan(&n)
	return n, err
}

// TagSlugExists reports whether a slug is taken by another tag.
func (q *Queries) TagSlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tags WHERE slug = ? AND id != ?`, slug, excludeID).Scan(&n)
	return n > 0, err
}

// PopularTag is a tag with its published-post usage count.
type PopularTag struct {
	Tag       model.Tag `json:"tag"`
	PostCount int64     `json:"post_count"`
}

// PopularTags returns tags ordered by how many published posts use them.
// Tags with no published posts are excluded.
func (q *Queries) PopularTags(ctx context.Context, limit int64) ([]PopularTag, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.slug, t.description, t.color, t.created_at, t.updated_at,
			COUNT(pt.post_id) AS post_count
		FROM tags t
		INNER JOIN post_tags pt ON pt.tag_id = t.id
		INNER JOIN posts p ON p.id = pt.post_id AND p.status = ?
		GROUP BY t.id
		ORDER BY post_count DESC
		LIMIT ?
	`, model.PostStatusPublished, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tags []PopularTag
	for rows.Next() {
		var pt PopularTag
		var createdAt, updatedAt string
		t := &pt.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.Description, &t.Color,
			&createdAt, &updatedAt, &pt.PostCount); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, err
		}
		if t.UpdatedAt, err = ParseTime(updatedAt); err != nil {
			return nil, err
		}
		tags = append(tags, pt)
	}
	return tags, rows.Err()
}
