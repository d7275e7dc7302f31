package analytics

import (
	"context"
	"fmt"

	"github.com/inkpress/inkpress/internal/store"
)

// SiteAnalytics is the sitewide report over a sliding window of the last N
// days. Unlike the per-post report the window is not day-truncated: it starts
// exactly N*24 hours before the moment of the call. PopularPosts ignores the
// window entirely and ranks by lifetime view counters.
type SiteAnalytics struct {
	Days          int                    `json:"days"`
	TotalViews    int64                  `json:"total_views"`
	ViewsInPeriod int64                  `json:"views_in_period"`
	UniqueViews   int64                  `json:"unique_views"`
	PopularPosts  []store.PopularPost    `json:"popular_posts"`
	ViewsByDay    []store.DayUniqueCount `json:"views_by_day"`
	TopReferrers  []Referrer             `json:"top_referrers"`
	Devices       []store.DeviceCount    `json:"devices"`
}

// SiteAnalytics builds the sitewide report for the trailing window of the
// given number of days, 1 to 365. The daily series is sparse and its per-day
// unique counts use COUNT(DISTINCT ip_address), which skips NULL addresses,
// whereas the window-level UniqueViews buckets NULL addresses as one visitor.
// The two deliberately disagree when anonymous views are present.
func (s *Service) SiteAnalytics(ctx context.Context, days int) (SiteAnalytics, error) {
	if days < MinDays || days > MaxDays {
		return SiteAnalytics{}, ErrDaysOutOfRange
	}

	startDate := s.now().AddDate(0, 0, -days)
	a := SiteAnalytics{Days: days}

	var err error
	if a.TotalViews, err = s.queries.CountAllViews(ctx); err != nil {
		return SiteAnalytics{}, fmt.Errorf("count all views: %w", err)
	}
	if a.ViewsInPeriod, err = s.queries.CountViewsSince(ctx, startDate); err != nil {
		return SiteAnalytics{}, fmt.Errorf("count views in period: %w", err)
	}
	if a.UniqueViews, err = s.queries.CountUniqueViewsSince(ctx, startDate); err != nil {
		return SiteAnalytics{}, fmt.Errorf("count unique views: %w", err)
	}

	if a.PopularPosts, err = s.queries.PopularPosts(ctx, popularPostLimit); err != nil {
		return SiteAnalytics{}, fmt.Errorf("popular posts: %w", err)
	}
	if a.PopularPosts == nil {
		a.PopularPosts = []store.PopularPost{}
	}

	if a.ViewsByDay, err = s.queries.SiteViewsByDay(ctx, startDate); err != nil {
		return SiteAnalytics{}, fmt.Errorf("views by day: %w", err)
	}
	if a.ViewsByDay == nil {
		a.ViewsByDay = []store.DayUniqueCount{}
	}

	referrers, err := s.queries.TopReferrersSince(ctx, startDate, topReferrerLimit)
	if err != nil {
		return SiteAnalytics{}, fmt.Errorf("top referrers: %w", err)
	}
	a.TopReferrers = labelReferrers(referrers)

	if a.Devices, err = s.queries.DeviceBreakdownSince(ctx, startDate); err != nil {
		return SiteAnalytics{}, fmt.Errorf("device breakdown: %w", err)
	}
	if a.Devices == nil {
		a.Devices = []store.DeviceCount{}
	}

	return a, nil
}
