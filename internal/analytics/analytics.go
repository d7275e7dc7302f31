// Package analytics implements the view-event recorder and the read-side
// aggregators behind the analytics endpoints: per-post analytics, sitewide
// analytics, and the dashboard quick stats.
//
// The recorder is the only write path: it appends immutable rows to the
// post_views log and bumps the denormalized posts.view_count counter with an
// atomic storage-level add. The aggregators only read. They issue their
// sub-queries independently, so a counter read and a log aggregation may
// reflect slightly different moments under concurrent recording; callers get
// eventually-consistent numbers, not a snapshot.
package analytics

import (
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/inkpress/inkpress/internal/store"
)

// Sentinel errors returned by the recorder and aggregators.
var (
	// ErrNotFound means the post does not exist.
	ErrNotFound = errors.New("post not found")

	// ErrNotFoundOrUnpublished means the post does not exist or is not
	// published. The recorder never distinguishes the two cases so that
	// recording against a draft does not leak its existence.
	ErrNotFoundOrUnpublished = errors.New("post not found or not published")

	// ErrDaysOutOfRange means the requested window is outside 1..365 days.
	ErrDaysOutOfRange = errors.New("days must be between 1 and 365")
)

// Window bounds for site analytics.
const (
	MinDays     = 1
	MaxDays     = 365
	DefaultDays = 30
)

// topReferrerLimit caps every top-referrer list.
const topReferrerLimit = 10

// popularPostLimit caps the popular-posts list.
const popularPostLimit = 10

// directLabel is reported in place of an empty referrer string.
const directLabel = "Direct"

// Service exposes the analytics operations. All methods are stateless and
// safe for concurrent use; each call is a self-contained read or write
// against the store.
type Service struct {
	db      *sql.DB
	queries *store.Queries
	logger  *slog.Logger

	// now is a clock hook for tests.
	now func() time.Time
}

// NewService creates an analytics service bound to the given database.
func NewService(db *sql.DB, logger *slog.Logger) *Service {
	return &Service{
		db:      db,
		queries: store.New(db),
		logger:  logger,
		now:     time.Now,
	}
}

// startOfDay truncates t to midnight in the server's local time zone.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// labelReferrer substitutes the "Direct" label for an empty referrer string.
func labelReferrer(referer string) string {
	if referer == "" {
		return directLabel
	}
	return referer
}
