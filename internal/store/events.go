package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/inkpress/inkpress/internal/model"
)

// CreateEventParams holds the fields for an event log entry.
type CreateEventParams struct {
	Level     string
	Category  string
	Message   string
	UserID    sql.NullInt64
	Metadata  string
	CreatedAt time.Time
}

// CreateEvent appends an entry to the event log.
func (q *Queries) CreateEvent(ctx context.Context, p CreateEventParams) (int64, error) {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO events (level, category, message, user_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.Level, p.Category, p.Message, p.UserID, p.Metadata, FormatTime(createdAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListRecentEvents returns the newest event log entries.
func (q *Queries) ListRecentEvents(ctx context.Context, limit int64) ([]model.Event, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, level, category, message, user_id, metadata, created_at
		FROM events
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Level, &e.Category, &e.Message, &e.UserID,
			&e.Metadata, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
