package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/inkpress/inkpress/internal/store"
)

// PostAnalytics is the per-post report.
//
// TotalViews comes from the denormalized counter and can differ from the sum
// of the event-log aggregates while recording is in flight. UniqueViews,
// TopReferrers and ViewsByDay come from the event log.
type PostAnalytics struct {
	PostID       int64            `json:"post_id"`
	Title        string           `json:"title"`
	Slug         string           `json:"slug"`
	TotalViews   int64            `json:"total_views"`
	UniqueViews  int64            `json:"unique_views"`
	ViewsToday   int64            `json:"views_today"`
	ViewsWeek    int64            `json:"views_week"`
	ViewsMonth   int64            `json:"views_month"`
	TopReferrers []Referrer       `json:"top_referrers"`
	ViewsByDay   []store.DayCount `json:"views_by_day"`
}

// Referrer is a referrer label with its view count. An empty recorded
// referrer is reported as "Direct".
type Referrer struct {
	Referer string `json:"referer"`
	Count   int64  `json:"count"`
}

// PostAnalytics builds the per-post report. The post may be in any status;
// only a missing post yields ErrNotFound.
//
// The today/week/month windows all start at local midnight: today covers the
// current calendar day so far, and the 7- and 30-day windows run from
// midnight 7 and 30 days ago, so they span slightly more than 7x24 and 30x24
// hours. The daily series covers the 30-day window and is sparse; days with
// no views are absent.
func (s *Service) PostAnalytics(ctx context.Context, postID int64) (PostAnalytics, error) {
	post, err := s.queries.GetPostByID(ctx, postID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PostAnalytics{}, ErrNotFound
		}
		return PostAnalytics{}, fmt.Errorf("look up post %d: %w", postID, err)
	}

	today := startOfDay(s.now())
	weekAgo := today.AddDate(0, 0, -7)
	monthAgo := today.AddDate(0, 0, -30)

	a := PostAnalytics{
		PostID:     post.ID,
		Title:      post.Title,
		Slug:       post.Slug,
		TotalViews: post.ViewCount,
	}

	if a.UniqueViews, err = s.queries.CountUniqueViewsForPost(ctx, postID); err != nil {
		return PostAnalytics{}, fmt.Errorf("count unique views: %w", err)
	}
	if a.ViewsToday, err = s.queries.CountViewsForPostSince(ctx, postID, today); err != nil {
		return PostAnalytics{}, fmt.Errorf("count views today: %w", err)
	}
	if a.ViewsWeek, err = s.queries.CountViewsForPostSince(ctx, postID, weekAgo); err != nil {
		return PostAnalytics{}, fmt.Errorf("count views this week: %w", err)
	}
	if a.ViewsMonth, err = s.queries.CountViewsForPostSince(ctx, postID, monthAgo); err != nil {
		return PostAnalytics{}, fmt.Errorf("count views this month: %w", err)
	}

	referrers, err := s.queries.TopReferrersForPost(ctx, postID, topReferrerLimit)
	if err != nil {
		return PostAnalytics{}, fmt.Errorf("top referrers: %w", err)
	}
	a.TopReferrers = labelReferrers(referrers)

	if a.ViewsByDay, err = s.queries.ViewsByDayForPost(ctx, postID, monthAgo); err != nil {
		return PostAnalytics{}, fmt.Errorf("views by day: %w", err)
	}
	if a.ViewsByDay == nil {
		a.ViewsByDay = []store.DayCount{}
	}

	return a, nil
}

func labelReferrers(rows []store.ReferrerCount) []Referrer {
	referrers := make([]Referrer, 0, len(rows))
	for _, r := range rows {
		referrers = append(referrers, Referrer{
			Referer: labelReferrer(r.Referer),
			Count:   r.Count,
		})
	}
	return referrers
}
