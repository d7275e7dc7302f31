package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/inkpress/inkpress/internal/model"
)

const viewColumns = `id, post_id, user_agent, ip_address, referer, browser, os, device_type, created_at`

func scanView(row interface{ Scan(...any) error }) (model.PostView, error) {
	var v model.PostView
	var createdAt string
	if err := row.Scan(&v.ID, &v.PostID, &v.UserAgent, &v.IPAddress, &v.Referer,
		&v.Browser, &v.OS, &v.DeviceType, &createdAt); err != nil {
		return model.PostView{}, err
	}
	var err error
	if v.CreatedAt, err = ParseTime(createdAt); err != nil {
		return model.PostView{}, err
	}
	return v, nil
}

// InsertPostViewParams holds the fields for recording a view event.
type InsertPostViewParams struct {
	ID         string
	PostID     int64
	UserAgent  sql.NullString
	IPAddress  sql.NullString
	Referer    sql.NullString
	Browser    string
	OS         string
	DeviceType string
	CreatedAt  time.Time
}

// InsertPostView appends one immutable view event to the log.
func (q *Queries) InsertPostView(ctx context.Context, p InsertPostViewParams) (model.PostView, error) {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO post_views (id, post_id, user_agent, ip_address, referer,
			browser, os, device_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.PostID, p.UserAgent, p.IPAddress, p.Referer,
		p.Browser, p.OS, p.DeviceType, FormatTime(p.CreatedAt))
	if err != nil {
		return model.PostView{}, err
	}
	row := q.db.QueryRowContext(ctx,
		`SELECT `+viewColumns+` FROM post_views WHERE id = ?`, p.ID)
	return scanView(row)
}

// CountViewsForPost returns the number of view events logged for a post.
func (q *Queries) CountViewsForPost(ctx context.Context, postID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM post_views WHERE post_id = ?`, postID).Scan(&n)
	return n, err
}

// CountViewsForPostSince counts a post's view events at or after since.
func (q *Queries) CountViewsForPostSince(ctx context.Context, postID int64, since time.Time) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM post_views WHERE post_id = ? AND created_at >= ?
	`, postID, FormatTime(since)).Scan(&n)
	return n, err
}

// CountUniqueViewsForPost counts distinct IP-address buckets for a post over
// all time. Events with no IP address form their own bucket (grouping, not
// filtering), which is why this is a GROUP BY subquery rather than
// COUNT(DISTINCT ip_address).
func (q *Queries) CountUniqueViewsForPost(ctx context.Context, postID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT ip_address FROM post_views WHERE post_id = ? GROUP BY ip_address
		)
	`, postID).Scan(&n)
	return n, err
}

// ReferrerCount is a referrer with its view count.
type ReferrerCount struct {
	Referer string `json:"referer"`
	Count   int64  `json:"count"`
}

// TopReferrersForPost returns a post's referrers by view count, descending.
// Events with a NULL referer are excluded from the grouping.
func (q *Queries) TopReferrersForPost(ctx context.Context, postID int64, limit int64) ([]ReferrerCount, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT referer, COUNT(*) AS count
		FROM post_views
		WHERE post_id = ? AND referer IS NOT NULL
		GROUP BY referer
		ORDER BY count DESC
		LIMIT ?
	`, postID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectReferrers(rows)
}

// TopReferrersSince returns sitewide referrers by view count since a cutoff.
func (q *Queries) TopReferrersSince(ctx context.Context, since time.Time, limit int64) ([]ReferrerCount, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT referer, COUNT(*) AS count
		FROM post_views
		WHERE created_at >= ? AND referer IS NOT NULL
		GROUP BY referer
		ORDER BY count DESC
		LIMIT ?
	`, FormatTime(since), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectReferrers(rows)
}

func collectReferrers(rows *sql.Rows) ([]ReferrerCount, error) {
	var referrers []ReferrerCount
	for rows.Next() {
		var r ReferrerCount
		if err := rows.Scan(&r.Referer, &r.Count); err != nil {
			return nil, err
		}
		referrers = append(referrers, r)
	}
	return referrers, rows.Err()
}

// DayCount is a calendar day with its view count.
type DayCount struct {
	Date  string `json:"date"`
	Views int64  `json:"views"`
}

// ViewsByDayForPost returns a sparse ascending daily series for a post since
// a cutoff. Days with zero events are absent.
func (q *Queries) ViewsByDayForPost(ctx context.Context, postID int64, since time.Time) ([]DayCount, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT DATE(created_at) AS date, COUNT(*) AS views
		FROM post_views
		WHERE post_id = ? AND created_at >= ?
		GROUP BY DATE(created_at)
		ORDER BY date ASC
	`, postID, FormatTime(since))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var days []DayCount
	for rows.Next() {
		var d DayCount
		if err := rows.Scan(&d.Date, &d.Views); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// DayUniqueCount is a calendar day with total and unique view counts.
type DayUniqueCount struct {
	Date        string `json:"date"`
	Views       int64  `json:"views"`
	UniqueViews int64  `json:"unique_views"`
}

// SiteViewsByDay returns a sparse ascending daily series of total and
// distinct-IP view counts across all posts since a cutoff.
func (q *Queries) SiteViewsByDay(ctx context.Context, since time.Time) ([]DayUniqueCount, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT DATE(created_at) AS date, COUNT(*) AS views,
			COUNT(DISTINCT ip_address) AS unique_views
		FROM post_views
		WHERE created_at >= ?
		GROUP BY DATE(created_at)
		ORDER BY date ASC
	`, FormatTime(since))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var days []DayUniqueCount
	for rows.Next() {
		var d DayUniqueCount
		if err := rows.Scan(&d.Date, &d.Views, &d.UniqueViews); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// CountAllViews returns the total number of view events ever recorded.
func (q *Queries) CountAllViews(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM post_views`).Scan(&n)
	return n, err
}

// CountViewsSince counts view events at or after since.
func (q *Queries) CountViewsSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM post_views WHERE created_at >= ?
	`, FormatTime(since)).Scan(&n)
	return n, err
}

// CountViewsBetween counts view events in [from, to).
func (q *Queries) CountViewsBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM post_views WHERE created_at >= ? AND created_at < ?
	`, FormatTime(from), FormatTime(to)).Scan(&n)
	return n, err
}

// CountUniqueViewsSince counts distinct IP-address buckets since a cutoff,
// with the no-IP bucket included (same grouping semantics as
// CountUniqueViewsForPost).
func (q *Queries) CountUniqueViewsSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT ip_address FROM post_views WHERE created_at >= ? GROUP BY ip_address
		)
	`, FormatTime(since)).Scan(&n)
	return n, err
}

// PostViewCount pairs a post id with a view count.
type PostViewCount struct {
	PostID int64
	Views  int64
}

// TopViewedPostSince returns the single post with the most view events since
// a cutoff, or sql.ErrNoRows if no events were recorded in the window. Ties
// break arbitrarily (first row encountered).
func (q *Queries) TopViewedPostSince(ctx context.Context, since time.Time) (PostViewCount, error) {
	var pv PostViewCount
	err := q.db.QueryRowContext(ctx, `
		SELECT post_id, COUNT(*) AS views
		FROM post_views
		WHERE created_at >= ?
		GROUP BY post_id
		ORDER BY views DESC
		LIMIT 1
	`, FormatTime(since)).Scan(&pv.PostID, &pv.Views)
	return pv, err
}

// DeviceCount is a device type with its view count.
type DeviceCount struct {
	DeviceType string `json:"device_type"`
	Views      int64  `json:"views"`
}

// DeviceBreakdownSince returns view counts grouped by device type since a
// cutoff. Rows with an empty device type (recorder saw no user agent) are
// reported under "unknown".
func (q *Queries) DeviceBreakdownSince(ctx context.Context, since time.Time) ([]DeviceCount, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT CASE WHEN device_type = '' THEN 'unknown' ELSE device_type END AS device,
			COUNT(*) AS views
		FROM post_views
		WHERE created_at >= ?
		GROUP BY device
		ORDER BY views DESC
	`, FormatTime(since))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var devices []DeviceCount
	for rows.Next() {
		var d DeviceCount
		if err := rows.Scan(&d.DeviceType, &d.Views); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}
