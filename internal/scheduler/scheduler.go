// Package scheduler runs background jobs: publishing posts whose scheduled
// time has arrived.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/inkpress/inkpress/internal/model"
	"github.com/inkpress/inkpress/internal/store"
)

// Scheduler owns the cron runner and its jobs.
type Scheduler struct {
	db      *sql.DB
	queries *store.Queries
	cron    *cron.Cron
	logger  *slog.Logger
}

// New creates a scheduler instance.
func New(db *sql.DB, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		db:      db,
		queries: store.New(db),
		cron:    cron.New(),
		logger:  logger,
	}
}

// Start registers the jobs and begins the cron runner. Scheduled posts are
// checked every minute.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc("* * * * *", func() {
		if err := s.publishDuePosts(); err != nil {
			s.logger.Error("failed to publish due posts", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
	return nil
}

// Stop gracefully stops the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// publishDuePosts flips scheduled posts whose publish time has arrived to
// published and records an event.
func (s *Scheduler) publishDuePosts() error {
	ctx := context.Background()
	now := time.Now()

	published, err := s.queries.PublishDuePosts(ctx, now)
	if err != nil {
		return err
	}
	if published == 0 {
		return nil
	}

	s.logger.Info("published scheduled posts", "count", published)

	_, err = s.queries.CreateEvent(ctx, store.CreateEventParams{
		Level:     model.EventLevelInfo,
		Category:  model.EventCategoryPost,
		Message:   fmt.Sprintf("Scheduler published %d due post(s)", published),
		UserID:    sql.NullInt64{},
		Metadata:  fmt.Sprintf(`{"count":%d,"published_at":%q}`, published, now.Format(time.RFC3339)),
		CreatedAt: now,
	})
	if err != nil {
		s.logger.Warn("failed to log scheduled publish event", "error", err)
	}
	return nil
}
