package analytics

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inkpress/inkpress/internal/model"
	"github.com/inkpress/inkpress/internal/store"
	"github.com/inkpress/inkpress/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *store.Queries, func()) {
	t.Helper()
	db, cleanup := testutil.TestDB(t)
	svc := NewService(db, testutil.TestLogger())
	return svc, store.New(db), cleanup
}

func createTestUser(t *testing.T, q *store.Queries) model.User {
	t.Helper()
	u, err := q.CreateUser(context.Background(), store.CreateUserParams{
		Email:        "author@example.com",
		PasswordHash: "x",
		Role:         model.RoleAdmin,
		Name:         "Author",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func createTestPost(t *testing.T, q *store.Queries, authorID int64, slug, status string) model.Post {
	t.Helper()
	p, err := q.CreatePost(context.Background(), store.CreatePostParams{
		Title:    "Post " + slug,
		Slug:     slug,
		Body:     "body",
		Status:   status,
		AuthorID: authorID,
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	return p
}

// insertView writes a view event directly, bypassing the recorder, so tests
// can control timestamps and skip the counter update.
func insertView(t *testing.T, q *store.Queries, postID int64, ip, referer *string, at time.Time) {
	t.Helper()
	_, err := q.InsertPostView(context.Background(), store.InsertPostViewParams{
		ID:        uuid.NewString(),
		PostID:    postID,
		IPAddress: nullStr(ip),
		Referer:   nullStr(referer),
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("InsertPostView: %v", err)
	}
}

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func strPtr(s string) *string { return &s }

func TestRecordView(t *testing.T) {
	svc, q, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, q)
	post := createTestPost(t, q, user.ID, "hello", model.PostStatusPublished)

	chromeUA := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	view, err := svc.RecordView(ctx, RecordViewInput{
		PostID:    post.ID,
		UserAgent: &chromeUA,
		IPAddress: strPtr("10.0.0.1"),
		Referer:   strPtr("https://example.com/"),
	})
	if err != nil {
		t.Fatalf("RecordView: %v", err)
	}

	if view.ID == "" {
		t.Error("expected a generated view id")
	}
	if _, err := uuid.Parse(view.ID); err != nil {
		t.Errorf("view id %q is not a UUID: %v", view.ID, err)
	}
	if view.PostID != post.ID {
		t.Errorf("view.PostID = %d, want %d", view.PostID, post.ID)
	}
	if view.Browser != "Chrome" {
		t.Errorf("view.Browser = %q, want Chrome", view.Browser)
	}
	if view.DeviceType != "desktop" {
		t.Errorf("view.DeviceType = %q, want desktop", view.DeviceType)
	}

	got, err := q.GetPostByID(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetPostByID: %v", err)
	}
	if got.ViewCount != 1 {
		t.Errorf("view_count = %d, want 1", got.ViewCount)
	}
	n, err := q.CountViewsForPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("CountViewsForPost: %v", err)
	}
	if n != 1 {
		t.Errorf("event log count = %d, want 1", n)
	}
}

func TestRecordViewNoMetadata(t *testing.T) {
	svc, q, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, q)
	post := createTestPost(t, q, user.ID, "bare", model.PostStatusPublished)

	// All metadata absent: the view must still be recorded.
	view, err := svc.RecordView(ctx, RecordViewInput{PostID: post.ID})
	if err != nil {
		t.Fatalf("RecordView: %v", err)
	}
	if view.UserAgent.Valid || view.IPAddress.Valid || view.Referer.Valid {
		t.Error("expected NULL metadata fields")
	}
	if view.Browser != "" || view.OS != "" || view.DeviceType != "" {
		t.Errorf("expected empty derived fields, got %q/%q/%q",
			view.Browser, view.OS, view.DeviceType)
	}
}

func TestRecordViewUnpublished(t *testing.T) {
	svc, q, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, q)
	draft := createTestPost(t, q, user.ID, "draft", model.PostStatusDraft)

	for _, id := range []int64{draft.ID, 99999} {
		if _, err := svc.RecordView(ctx, RecordViewInput{PostID: id}); !errors.Is(err, ErrNotFoundOrUnpublished) {
			t.Errorf("RecordView(%d) error = %v, want ErrNotFoundOrUnpublished", id, err)
		}
	}

	// Refusal must leave no trace.
	n, err := q.CountViewsForPost(ctx, draft.ID)
	if err != nil {
		t.Fatalf("CountViewsForPost: %v", err)
	}
	if n != 0 {
		t.Errorf("event log count = %d, want 0", n)
	}
}

func TestRecordViewConcurrent(t *testing.T) {
	svc, q, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, q)
	post := createTestPost(t, q, user.ID, "busy", model.PostStatusPublished)

	const workers = 100
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RecordView(ctx, RecordViewInput{PostID: post.ID}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("RecordView: %v", err)
	}

	got, err := q.GetPostByID(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetPostByID: %v", err)
	}
	if got.ViewCount != workers {
		t.Errorf("view_count = %d, want %d", got.ViewCount, workers)
	}
	n, err := q.CountViewsForPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("CountViewsForPost: %v", err)
	}
	if n != workers {
		t.Errorf("event log count = %d, want %d", n, workers)
	}
}

func TestPostAnalyticsWindows(t *testing.T) {
	svc, q, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, q)
	post := createTestPost(t, q, user.ID, "windows", model.PostStatusPublished)

	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.Local)
	svc.now = func() time.Time { return now }
	today := startOfDay(now)

	// Two today, one 3 days ago, one 20 days ago, one 40 days ago.
	insertView(t, q, post.ID, strPtr("1.1.1.1"), nil, today.Add(time.Hour))
	insertView(t, q, post.ID, strPtr("1.1.1.1"), nil, today.Add(2*time.Hour))
	insertView(t, q, post.ID, strPtr("2.2.2.2"), nil, today.AddDate(0, 0, -3).Add(time.Hour))
	insertView(t, q, post.ID, nil, nil, today.AddDate(0, 0, -20).Add(time.Hour))
	insertView(t, q, post.ID, nil, nil, today.AddDate(0, 0, -40))

	a, err := svc.PostAnalytics(ctx, post.ID)
	if err != nil {
		t.Fatalf("PostAnalytics: %v", err)
	}

	if a.ViewsToday != 2 {
		t.Errorf("ViewsToday = %d, want 2", a.ViewsToday)
	}
	if a.ViewsWeek != 3 {
		t.Errorf("ViewsWeek = %d, want 3", a.ViewsWeek)
	}
	if a.ViewsMonth != 4 {
		t.Errorf("ViewsMonth = %d, want 4", a.ViewsMonth)
	}
	// Two distinct addresses plus the no-address bucket.
	if a.UniqueViews != 3 {
		t.Errorf("UniqueViews = %d, want 3", a.UniqueViews)
	}
	// Counter untouched by direct inserts: totals come from view_count, not the log.
	if a.TotalViews != 0 {
		t.Errorf("TotalViews = %d, want 0", a.TotalViews)
	}

	// Daily series covers the 30-day window only and skips empty days.
	if len(a.ViewsByDay) != 3 {
		t.Fatalf("len(ViewsByDay) = %d, want 3", len(a.ViewsByDay))
	}
	last := a.ViewsByDay[len(a.ViewsByDay)-1]
	if last.Date != today.Format("2006-01-02") || last.Views != 2 {
		t.Errorf("last day = %+v, want %s with 2 views", last, today.Format("2006-01-02"))
	}
	for i := 1; i < len(a.ViewsByDay); i++ {
		if a.ViewsByDay[i-1].Date >= a.ViewsByDay[i].Date {
			t.Errorf("ViewsByDay not ascending: %q before %q",
				a.ViewsByDay[i-1].Date, a.ViewsByDay[i].Date)
		}
	}
}

func TestPostAnalyticsReferrers(t *testing.T) {
	svc, q, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, q)
	post := createTestPost(t, q, user.ID, "refs", model.PostStatusPublished)
	now := time.Now()

	insertView(t, q, post.ID, nil, strPtr("https://example.com/"), now)
	insertView(t, q, post.ID, nil, strPtr("https://example.com/"), now)
	insertView(t, q, post.ID, nil, strPtr(""), now)
	insertView(t, q, post.ID, nil, nil, now) // NULL referrer: excluded

	a, err := svc.PostAnalytics(ctx, post.ID)
	if err != nil {
		t.Fatalf("PostAnalytics: %v", err)
	}
	if len(a.TopReferrers) != 2 {
		t.Fatalf("len(TopReferrers) = %d, want 2", len(a.TopReferrers))
	}
	if a.TopReferrers[0].Referer != "https://example.com/" || a.TopReferrers[0].Count != 2 {
		t.Errorf("top referrer = %+v, want example.com with 2", a.TopReferrers[0])
	}
	// Empty string is a real bucket, reported under the Direct label.
	if a.TopReferrers[1].Referer != "Direct" || a.TopReferrers[1].Count != 1 {
		t.Errorf("second referrer = %+v, want Direct with 1", a.TopReferrers[1])
	}
}

func TestPostAnalyticsAnyStatus(t *testing.T) {
	svc, q, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, q)
	draft := createTestPost(t, q, user.ID, "draft-stats", model.PostStatusDraft)

	a, err := svc.PostAnalytics(ctx, draft.ID)
	if err != nil {
		t.Fatalf("PostAnalytics on draft: %v", err)
	}
	if a.Slug != "draft-stats" {
		t.Errorf("Slug = %q, want draft-stats", a.Slug)
	}
	if a.ViewsByDay == nil || a.TopReferrers == nil {
		t.Error("expected empty, non-nil slices for a post with no views")
	}

	if _, err := svc.PostAnalytics(ctx, 99999); !errors.Is(err, ErrNotFound) {
		t.Errorf("PostAnalytics(99999) error = %v, want ErrNotFound", err)
	}
}

func TestSiteAnalytics(t *testing.T) {
	svc, q, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, q)
	popular := createTestPost(t, q, user.ID, "popular", model.PostStatusPublished)
	other := createTestPost(t, q, user.ID, "other", model.PostStatusPublished)

	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.Local)
	svc.now = func() time.Time { return now }

	// Within the trailing 7*24h window even though it crosses a day boundary.
	insertView(t, q, popular.ID, strPtr("1.1.1.1"), strPtr("https://a.example/"), now.AddDate(0, 0, -7).Add(time.Hour))
	insertView(t, q, popular.ID, strPtr("1.1.1.1"), nil, now.Add(-time.Hour))
	insertView(t, q, other.ID, nil, strPtr(""), now.Add(-2*time.Hour))
	// Outside the window: counted in TotalViews only.
	insertView(t, q, other.ID, strPtr("2.2.2.2"), nil, now.AddDate(0, 0, -10))

	// Lifetime counters drive popularity, independent of the window.
	for i := 0; i < 3; i++ {
		if err := q.IncrementViewCount(ctx, popular.ID); err != nil {
			t.Fatalf("IncrementViewCount: %v", err)
		}
	}
	if err := q.IncrementViewCount(ctx, other.ID); err != nil {
		t.Fatalf("IncrementViewCount: %v", err)
	}

	a, err := svc.SiteAnalytics(ctx, 7)
	if err != nil {
		t.Fatalf("SiteAnalytics: %v", err)
	}

	if a.TotalViews != 4 {
		t.Errorf("TotalViews = %d, want 4", a.TotalViews)
	}
	if a.ViewsInPeriod != 3 {
		t.Errorf("ViewsInPeriod = %d, want 3", a.ViewsInPeriod)
	}
	// 1.1.1.1 plus the no-address bucket.
	if a.UniqueViews != 2 {
		t.Errorf("UniqueViews = %d, want 2", a.UniqueViews)
	}

	if len(a.PopularPosts) != 2 {
		t.Fatalf("len(PopularPosts) = %d, want 2", len(a.PopularPosts))
	}
	if a.PopularPosts[0].Slug != "popular" || a.PopularPosts[0].ViewCount != 3 {
		t.Errorf("PopularPosts[0] = %+v, want popular with 3", a.PopularPosts[0])
	}

	if len(a.TopReferrers) != 2 {
		t.Fatalf("len(TopReferrers) = %d, want 2", len(a.TopReferrers))
	}
	for _, r := range a.TopReferrers {
		if r.Referer != "https://a.example/" && r.Referer != "Direct" {
			t.Errorf("unexpected referrer %q", r.Referer)
		}
	}

	if len(a.ViewsByDay) == 0 {
		t.Fatal("expected a daily series")
	}
	var totalDaily int64
	for _, d := range a.ViewsByDay {
		totalDaily += d.Views
	}
	if totalDaily != a.ViewsInPeriod {
		t.Errorf("daily series sums to %d, want %d", totalDaily, a.ViewsInPeriod)
	}
}

func TestSiteAnalyticsDayUniqueSkipsNullAddresses(t *testing.T) {
	svc, q, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, q)
	post := createTestPost(t, q, user.ID, "anon", model.PostStatusPublished)

	now := time.Now()
	insertView(t, q, post.ID, nil, nil, now)
	insertView(t, q, post.ID, strPtr("1.1.1.1"), nil, now)

	a, err := svc.SiteAnalytics(ctx, 7)
	if err != nil {
		t.Fatalf("SiteAnalytics: %v", err)
	}
	// Window-level uniqueness buckets the anonymous view; the per-day
	// DISTINCT drops it. Both figures are correct on their own terms.
	if a.UniqueViews != 2 {
		t.Errorf("UniqueViews = %d, want 2", a.UniqueViews)
	}
	if len(a.ViewsByDay) != 1 {
		t.Fatalf("len(ViewsByDay) = %d, want 1", len(a.ViewsByDay))
	}
	if a.ViewsByDay[0].UniqueViews != 1 {
		t.Errorf("ViewsByDay[0].UniqueViews = %d, want 1", a.ViewsByDay[0].UniqueViews)
	}
}

func TestSiteAnalyticsDaysRange(t *testing.T) {
	svc, _, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()

	for _, days := range []int{0, -1, 366} {
		if _, err := svc.SiteAnalytics(ctx, days); !errors.Is(err, ErrDaysOutOfRange) {
			t.Errorf("SiteAnalytics(%d) error = %v, want ErrDaysOutOfRange", days, err)
		}
	}
	for _, days := range []int{1, 365} {
		if _, err := svc.SiteAnalytics(ctx, days); err != nil {
			t.Errorf("SiteAnalytics(%d) error = %v, want nil", days, err)
		}
	}
}

func TestDashboardStats(t *testing.T) {
	svc, q, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, q)
	first := createTestPost(t, q, user.ID, "first", model.PostStatusPublished)
	second := createTestPost(t, q, user.ID, "second", model.PostStatusPublished)
	createTestPost(t, q, user.ID, "unfinished", model.PostStatusDraft)

	if _, err := q.CreateTag(ctx, store.CreateTagParams{Name: "go", Slug: "go", Color: model.DefaultTagColor}); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}

	now := time.Date(2026, 3, 15, 18, 0, 0, 0, time.Local)
	svc.now = func() time.Time { return now }
	today := startOfDay(now)
	yesterday := today.AddDate(0, 0, -1)

	// Three views today (two on first, one on second), two yesterday, one
	// the day before yesterday (outside both windows).
	insertView(t, q, first.ID, nil, nil, today.Add(time.Hour))
	insertView(t, q, first.ID, nil, nil, today.Add(2*time.Hour))
	insertView(t, q, second.ID, nil, nil, today.Add(3*time.Hour))
	insertView(t, q, first.ID, nil, nil, yesterday.Add(time.Hour))
	insertView(t, q, second.ID, nil, nil, yesterday.Add(2*time.Hour))
	insertView(t, q, first.ID, nil, nil, yesterday.AddDate(0, 0, -1).Add(time.Hour))

	st, err := svc.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("DashboardStats: %v", err)
	}

	if st.ViewsToday != 3 {
		t.Errorf("ViewsToday = %d, want 3", st.ViewsToday)
	}
	if st.ViewsYesterday != 2 {
		t.Errorf("ViewsYesterday = %d, want 2", st.ViewsYesterday)
	}
	if st.GrowthPercent != 50 {
		t.Errorf("GrowthPercent = %v, want 50", st.GrowthPercent)
	}
	if st.PublishedPosts != 2 {
		t.Errorf("PublishedPosts = %d, want 2", st.PublishedPosts)
	}
	if st.TotalTags != 1 {
		t.Errorf("TotalTags = %d, want 1", st.TotalTags)
	}
	if st.TopPostToday == nil {
		t.Fatal("expected a top post")
	}
	if st.TopPostToday.Slug != "first" || st.TopPostToday.ViewsToday != 2 {
		t.Errorf("TopPostToday = %+v, want first with 2 views", st.TopPostToday)
	}
	// The lifetime figure is the denormalized counter, which direct event
	// inserts do not move.
	if st.TopPostToday.ViewCount != 0 {
		t.Errorf("TopPostToday.ViewCount = %d, want 0", st.TopPostToday.ViewCount)
	}
}

func TestDashboardStatsQuietDay(t *testing.T) {
	svc, q, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, q)
	post := createTestPost(t, q, user.ID, "quiet", model.PostStatusPublished)

	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.Local)
	svc.now = func() time.Time { return now }

	// Only old traffic: no views today or yesterday.
	insertView(t, q, post.ID, nil, nil, startOfDay(now).AddDate(0, 0, -5))

	st, err := svc.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("DashboardStats: %v", err)
	}
	if st.ViewsToday != 0 || st.ViewsYesterday != 0 {
		t.Errorf("views = %d/%d, want 0/0", st.ViewsToday, st.ViewsYesterday)
	}
	if st.GrowthPercent != 0 {
		t.Errorf("GrowthPercent = %v, want 0", st.GrowthPercent)
	}
	if st.TopPostToday != nil {
		t.Errorf("TopPostToday = %+v, want nil", st.TopPostToday)
	}
}

func TestGrowthPercent(t *testing.T) {
	tests := []struct {
		name             string
		today, yesterday int64
		want             float64
	}{
		{"both zero", 0, 0, 0},
		{"from zero", 5, 0, 100},
		{"to zero", 0, 4, -100},
		{"doubled", 10, 5, 100},
		{"halved", 5, 10, -50},
		{"rounded down", 2, 3, -33.33},
		{"rounded repeating", 1, 3, -66.67},
		{"small gain", 151, 150, 0.67},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := growthPercent(tt.today, tt.yesterday); got != tt.want {
				t.Errorf("growthPercent(%d, %d) = %v, want %v", tt.today, tt.yesterday, got, tt.want)
			}
		})
	}
}

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name    string
		ua      *string
		browser string
		device  string
	}{
		{"nil", nil, "", ""},
		{"empty", strPtr(""), "", ""},
		{"desktop chrome", strPtr("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"), "Chrome", "desktop"},
		{"mobile safari", strPtr("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"), "Safari", "mobile"},
		{"googlebot", strPtr("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"), "Googlebot", "bot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			browser, _, device := parseUserAgent(tt.ua)
			if browser != tt.browser || device != tt.device {
				t.Errorf("parseUserAgent() = %q/%q, want %q/%q", browser, device, tt.browser, tt.device)
			}
		})
	}
}
