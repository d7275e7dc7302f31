package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/inkpress/inkpress/internal/model"
)

// DashboardStats is the admin dashboard summary: today's traffic against
// yesterday's, plus a few content counts. TopPostToday is nil when no views
// at all were recorded today.
type DashboardStats struct {
	ViewsToday     int64    `json:"views_today"`
	ViewsYesterday int64    `json:"views_yesterday"`
	GrowthPercent  float64  `json:"growth_percent"`
	PublishedPosts int64    `json:"published_posts"`
	TotalTags      int64    `json:"total_tags"`
	TopPostToday   *TopPost `json:"top_post_today"`
}

// TopPost is the most-viewed post of the current day. ViewCount is the
// lifetime counter, ViewsToday the day's event count.
type TopPost struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Slug       string `json:"slug"`
	ViewCount  int64  `json:"view_count"`
	ViewsToday int64  `json:"views_today"`
}

// DashboardStats builds the dashboard summary. Today is the current local
// calendar day so far; yesterday is the full previous calendar day.
func (s *Service) DashboardStats(ctx context.Context) (DashboardStats, error) {
	today := startOfDay(s.now())
	yesterday := today.AddDate(0, 0, -1)

	var (
		st  DashboardStats
		err error
	)
	if st.ViewsToday, err = s.queries.CountViewsSince(ctx, today); err != nil {
		return DashboardStats{}, fmt.Errorf("count views today: %w", err)
	}
	if st.ViewsYesterday, err = s.queries.CountViewsBetween(ctx, yesterday, today); err != nil {
		return DashboardStats{}, fmt.Errorf("count views yesterday: %w", err)
	}
	st.GrowthPercent = growthPercent(st.ViewsToday, st.ViewsYesterday)

	if st.PublishedPosts, err = s.queries.CountPosts(ctx, model.PostStatusPublished); err != nil {
		return DashboardStats{}, fmt.Errorf("count published posts: %w", err)
	}
	if st.TotalTags, err = s.queries.CountTags(ctx); err != nil {
		return DashboardStats{}, fmt.Errorf("count tags: %w", err)
	}

	top, err := s.queries.TopViewedPostSince(ctx, today)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return st, nil
	case err != nil:
		return DashboardStats{}, fmt.Errorf("top post today: %w", err)
	}

	post, err := s.queries.GetPostByID(ctx, top.PostID)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("look up top post %d: %w", top.PostID, err)
	}
	st.TopPostToday = &TopPost{
		ID:         post.ID,
		Title:      post.Title,
		Slug:       post.Slug,
		ViewCount:  post.ViewCount,
		ViewsToday: top.Views,
	}
	return st, nil
}

// growthPercent compares today's views with yesterday's, rounded to two
// decimal places. A zero-view yesterday maps to 100 when today has any views
// and 0 when it has none, so the figure never divides by zero.
func growthPercent(today, yesterday int64) float64 {
	if yesterday == 0 {
		if today > 0 {
			return 100
		}
		return 0
	}
	pct := (float64(today-yesterday) / float64(yesterday)) * 100
	return math.Round(pct*100) / 100
}
