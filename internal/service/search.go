// Package service provides business logic services built on the store.
package service

import (
	"context"
	"database/sql"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/inkpress/inkpress/internal/store"
)

// SearchService provides full-text post search using SQLite FTS5.
type SearchService struct {
	db *sql.DB
}

// SearchResult is a single search hit with a match highlight.
type SearchResult struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Slug        string       `json:"slug"`
	Status      string       `json:"status"`
	Excerpt     string       `json:"excerpt"`
	Highlight   string       `json:"highlight"`
	PublishedAt sql.NullTime `json:"published_at"`
	CreatedAt   time.Time    `json:"created_at"`
	Rank        float64      `json:"-"`
}

// SearchParams holds search parameters. The optional filters narrow results
// by status, category, author, and published-date range; zero values mean no
// filter.
type SearchParams struct {
	Query         string
	Status        string
	CategoryID    int64
	AuthorID      int64
	PublishedFrom time.Time
	PublishedTo   time.Time
	Limit         int
	Offset        int
}

// filterSQL builds the WHERE-clause additions for the optional filters.
func (p SearchParams) filterSQL() (string, []any) {
	var sb strings.Builder
	var args []any
	if p.Status != "" {
		sb.WriteString(" AND p.status = ?")
		args = append(args, p.Status)
	}
	if p.CategoryID != 0 {
		sb.WriteString(" AND EXISTS (SELECT 1 FROM post_categories pc WHERE pc.post_id = p.id AND pc.category_id = ?)")
		args = append(args, p.CategoryID)
	}
	if p.AuthorID != 0 {
		sb.WriteString(" AND p.author_id = ?")
		args = append(args, p.AuthorID)
	}
	if !p.PublishedFrom.IsZero() {
		sb.WriteString(" AND p.published_at >= ?")
		args = append(args, store.FormatTime(p.PublishedFrom))
	}
	if !p.PublishedTo.IsZero() {
		sb.WriteString(" AND p.published_at <= ?")
		args = append(args, store.FormatTime(p.PublishedTo))
	}
	return sb.String(), args
}

// NewSearchService creates a search service.
func NewSearchService(db *sql.DB) *SearchService {
	return &SearchService{db: db}
}

var ftsUnsafe = regexp.MustCompile(`[^\p{L}\p{N}\s_-]`)

// escapeQuery turns free text into a safe FTS5 match expression. Operator
// characters are stripped, each remaining word becomes a quoted prefix term,
// and the terms are ORed for forgiving matching.
func escapeQuery(query string) string {
	query = ftsUnsafe.ReplaceAllString(strings.TrimSpace(query), " ")
	words := strings.Fields(query)
	if len(words) == 0 {
		return ""
	}

	terms := make([]string, 0, len(words))
	for _, word := range words {
		terms = append(terms, `"`+word+`"*`)
	}
	return strings.Join(terms, " OR ")
}

// SearchPosts searches posts with FTS5 ranking and highlighted snippets.
// The FTS index covers every status, so admin search can pass Status "" to
// see drafts too; public callers filter to published.
//
// bm25(), snippet(), and MATCH are FTS5-specific, so this stays direct SQL.
func (s *SearchService) SearchPosts(ctx context.Context, params SearchParams) ([]SearchResult, int64, error) {
	escaped := escapeQuery(params.Query)
	if escaped == "" {
		return []SearchResult{}, 0, nil
	}

	filters, filterArgs := params.filterSQL()
	countArgs := append([]any{escaped}, filterArgs...)
	searchArgs := append([]any{escaped}, filterArgs...)

	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM posts p
		INNER JOIN posts_fts ON posts_fts.rowid = p.id
		WHERE posts_fts MATCH ?`+filters, countArgs...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []SearchResult{}, 0, nil
	}

	// bm25 ranks lower-is-better; snippet highlights the body column.
	searchArgs = append(searchArgs, params.Limit, params.Offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			p.id, p.title, p.slug, p.status, p.published_at, p.created_at, p.body,
			bm25(posts_fts) AS rank,
			snippet(posts_fts, 1, '<mark>', '</mark>', '...', 30) AS highlight
		FROM posts p
		INNER JOIN posts_fts ON posts_fts.rowid = p.id
		WHERE posts_fts MATCH ?`+filters+`
		ORDER BY rank
		LIMIT ? OFFSET ?
	`, searchArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var (
			r           SearchResult
			body        string
			publishedAt sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.Slug, &r.Status, &publishedAt,
			&createdAt, &body, &r.Rank, &r.Highlight); err != nil {
			return nil, 0, err
		}
		if r.CreatedAt, err = store.ParseTime(createdAt); err != nil {
			return nil, 0, err
		}
		if publishedAt.Valid {
			t, err := store.ParseTime(publishedAt.String)
			if err != nil {
				return nil, 0, err
			}
			r.PublishedAt = sql.NullTime{Time: t, Valid: true}
		}

		r.Highlight = sanitizeHighlight(r.Highlight)
		r.Excerpt = generateExcerpt(body, params.Query, 200)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// RebuildIndex rebuilds the FTS index from the posts table. Useful after
// bulk imports.
func (s *SearchService) RebuildIndex(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO posts_fts(posts_fts) VALUES ('rebuild')`)
	return err
}

// generateExcerpt creates a plain-text excerpt centered on the first
// occurrence of a search term.
func generateExcerpt(body, query string, maxLen int) string {
	body = stripHTMLTags(body)
	if body == "" {
		return ""
	}

	lowerBody := strings.ToLower(body)
	firstMatch := -1
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if idx := strings.Index(lowerBody, word); idx != -1 {
			if firstMatch == -1 || idx < firstMatch {
				firstMatch = idx
			}
		}
	}

	if firstMatch == -1 {
		if len(body) > maxLen {
			return body[:maxLen] + "..."
		}
		return body
	}

	start := firstMatch - maxLen/3
	if start < 0 {
		start = 0
	}
	end := start + maxLen
	if end > len(body) {
		end = len(body)
	}

	excerpt := body[start:end]
	if start > 0 {
		excerpt = "..." + excerpt
	}
	if end < len(body) {
		excerpt += "..."
	}
	return excerpt
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

func stripHTMLTags(s string) string {
	s = htmlTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// sanitizeHighlight strips all HTML from FTS snippet output except the
// <mark> tags the snippet itself inserted.
func sanitizeHighlight(highlight string) string {
	if highlight == "" {
		return ""
	}

	highlight = strings.ReplaceAll(highlight, "<mark>", "\x00MARK_OPEN\x00")
	highlight = strings.ReplaceAll(highlight, "</mark>", "\x00MARK_CLOSE\x00")
	highlight = stripHTMLTags(highlight)
	highlight = strings.ReplaceAll(highlight, "\x00MARK_OPEN\x00", "<mark>")
	highlight = strings.ReplaceAll(highlight, "\x00MARK_CLOSE\x00", "</mark>")
	return strings.TrimSpace(highlight)
}
