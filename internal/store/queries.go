package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// TimeLayout is the canonical SQLite datetime format used for every
// timestamp column. All time parameters are bound in this format so that
// string comparison and DATE() behave consistently in queries.
const TimeLayout = "2006-01-02 15:04:05"

// FormatTime renders t in the canonical SQLite datetime format, in local time.
func FormatTime(t time.Time) string {
	return t.Local().Format(TimeLayout)
}

// ParseTime parses a datetime column value stored via FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.Local)
}

// DBTX is the subset of *sql.DB and *sql.Tx used by the query layer.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries wraps a database handle and exposes typed query methods.
type Queries struct {
	db DBTX
}

// New creates a Queries instance bound to the given database or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries instance bound to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// prefixColumns qualifies each column in a comma-separated list with a table
// alias, for use in JOIN queries that reuse a shared column list.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}

// nullTimeString converts a nullable datetime column into sql.NullTime.
func nullTimeString(s sql.NullString) (sql.NullTime, error) {
	if !s.Valid {
		return sql.NullTime{}, nil
	}
	t, err := ParseTime(s.String)
	if err != nil {
		return sql.NullTime{}, err
	}
	return sql.NullTime{Time: t, Valid: true}, nil
}
