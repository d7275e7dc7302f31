package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/inkpress/inkpress/internal/model"
)

// testDB creates a temporary test database with all migrations applied.
func testDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "inkpress-test-*.db")
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	dbPath := f.Name()
	_ = f.Close()

	db, err := NewDB(dbPath)
	if err != nil {
		_ = os.Remove(dbPath)
		t.Fatalf("NewDB: %v", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		_ = os.Remove(dbPath)
		t.Fatalf("Migrate: %v", err)
	}
	return db, func() {
		_ = db.Close()
		_ = os.Remove(dbPath)
	}
}

func createTestAuthor(t *testing.T, q *Queries) model.User {
	t.Helper()

	user, err := q.CreateUser(context.Background(), CreateUserParams{
		Email:        "author@example.com",
		PasswordHash: "hash",
		Role:         model.RoleEditor,
		Name:         "Author",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func TestTimeRoundTrip(t *testing.T) {
	// Sub-second precision is dropped by the canonical layout.
	in := time.Date(2026, 3, 14, 15, 9, 26, 535897932, time.UTC)
	out, err := ParseTime(FormatTime(in))
	if err != nil {
		t.Fatalf("ParseTime: %v", err)
	}
	want := in.Truncate(time.Second)
	if !out.Equal(want) {
		t.Errorf("round trip = %v, want %v", out, want)
	}
}

func TestCreateAndGetPost(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	q := New(db)
	author := createTestAuthor(t, q)

	post, err := q.CreatePost(ctx, CreatePostParams{
		Title:    "First Post",
		Slug:     "first-post",
		Body:     "Hello.",
		Status:   model.PostStatusDraft,
		AuthorID: author.ID,
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if post.ID == 0 {
		t.Error("post.ID should not be 0")
	}
	if post.ViewCount != 0 {
		t.Errorf("ViewCount = %d, want 0", post.ViewCount)
	}
	if post.PublishedAt.Valid {
		t.Error("draft should not have published_at")
	}

	bySlug, err := q.GetPostBySlug(ctx, "first-post")
	if err != nil {
		t.Fatalf("GetPostBySlug: %v", err)
	}
	if bySlug.ID != post.ID {
		t.Errorf("ID = %d, want %d", bySlug.ID, post.ID)
	}

	// Drafts are invisible to the published-only lookup.
	if _, err := q.GetPublishedPostByID(ctx, post.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetPublishedPostByID on draft = %v, want sql.ErrNoRows", err)
	}
}

func TestPostSlugExists(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	q := New(db)
	author := createTestAuthor(t, q)

	post, err := q.CreatePost(ctx, CreatePostParams{
		Title: "Taken", Slug: "taken", Body: "x",
		Status: model.PostStatusDraft, AuthorID: author.ID,
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	exists, err := q.PostSlugExists(ctx, "taken", 0)
	if err != nil {
		t.Fatalf("PostSlugExists: %v", err)
	}
	if !exists {
		t.Error("slug should be reported taken")
	}

	// The owning post is excluded when checking during an update.
	exists, err = q.PostSlugExists(ctx, "taken", post.ID)
	if err != nil {
		t.Fatalf("PostSlugExists: %v", err)
	}
	if exists {
		t.Error("slug should not conflict with its own post")
	}
}

func TestIncrementViewCount(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	q := New(db)
	author := createTestAuthor(t, q)

	post, err := q.CreatePost(ctx, CreatePostParams{
		Title: "Counted", Slug: "counted", Body: "x",
		Status: model.PostStatusPublished, AuthorID: author.ID,
		PublishedAt: sql.NullTime{Time: time.Now(), Valid: true},
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := q.IncrementViewCount(ctx, post.ID); err != nil {
			t.Fatalf("IncrementViewCount: %v", err)
		}
	}

	got, err := q.GetPostByID(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetPostByID: %v", err)
	}
	if got.ViewCount != 5 {
		t.Errorf("ViewCount = %d, want 5", got.ViewCount)
	}
}

func TestPublishDuePosts(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	q := New(db)
	author := createTestAuthor(t, q)
	now := time.Now()

	due, err := q.CreatePost(ctx, CreatePostParams{
		Title: "Due", Slug: "due", Body: "x",
		Status: model.PostStatusScheduled, AuthorID: author.ID,
		PublishedAt: sql.NullTime{Time: now.Add(-time.Hour), Valid: true},
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	future, err := q.CreatePost(ctx, CreatePostParams{
		Title: "Future", Slug: "future", Body: "x",
		Status: model.PostStatusScheduled, AuthorID: author.ID,
		PublishedAt: sql.NullTime{Time: now.Add(time.Hour), Valid: true},
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	n, err := q.PublishDuePosts(ctx, now)
	if err != nil {
		t.Fatalf("PublishDuePosts: %v", err)
	}
	if n != 1 {
		t.Errorf("published %d posts, want 1", n)
	}

	gotDue, err := q.GetPostByID(ctx, due.ID)
	if err != nil {
		t.Fatalf("GetPostByID: %v", err)
	}
	if gotDue.Status != model.PostStatusPublished {
		t.Errorf("due post status = %q, want published", gotDue.Status)
	}
	gotFuture, err := q.GetPostByID(ctx, future.ID)
	if err != nil {
		t.Fatalf("GetPostByID: %v", err)
	}
	if gotFuture.Status != model.PostStatusScheduled {
		t.Errorf("future post status = %q, want scheduled", gotFuture.Status)
	}
}

func TestSetPostTaxonomy(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	q := New(db)
	author := createTestAuthor(t, q)

	post, err := q.CreatePost(ctx, CreatePostParams{
		Title: "Tagged", Slug: "tagged", Body: "x",
		Status: model.PostStatusDraft, AuthorID: author.ID,
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	var tagIDs []int64
	for _, name := range []string{"go", "sqlite", "chi"} {
		tag, err := q.CreateTag(ctx, CreateTagParams{Name: name, Slug: name, Color: model.DefaultTagColor})
		if err != nil {
			t.Fatalf("CreateTag: %v", err)
		}
		tagIDs = append(tagIDs, tag.ID)
	}

	if err := q.SetPostTags(ctx, post.ID, tagIDs[:2]); err != nil {
		t.Fatalf("SetPostTags: %v", err)
	}
	tags, err := q.GetPostTags(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetPostTags: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("tags = %d, want 2", len(tags))
	}

	// Setting again replaces, not appends.
	if err := q.SetPostTags(ctx, post.ID, tagIDs[2:]); err != nil {
		t.Fatalf("SetPostTags: %v", err)
	}
	tags, err = q.GetPostTags(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetPostTags: %v", err)
	}
	if len(tags) != 1 || tags[0].Name != "chi" {
		t.Fatalf("tags after replace = %+v", tags)
	}

	// Deleting the post cascades the join rows.
	if err := q.DeletePost(ctx, post.ID); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	var n int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM post_tags WHERE post_id = ?`, post.ID).Scan(&n); err != nil {
		t.Fatalf("counting join rows: %v", err)
	}
	if n != 0 {
		t.Errorf("join rows after delete = %d, want 0", n)
	}
}

func TestUpsertSetting(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	q := New(db)

	first, err := q.UpsertSetting(ctx, UpsertSettingParams{Key: "site.title", Value: "One"})
	if err != nil {
		t.Fatalf("UpsertSetting: %v", err)
	}
	if first.Value != "One" {
		t.Errorf("Value = %q, want %q", first.Value, "One")
	}

	second, err := q.UpsertSetting(ctx, UpsertSettingParams{Key: "site.title", Value: "Two"})
	if err != nil {
		t.Fatalf("UpsertSetting (update): %v", err)
	}
	if second.Value != "Two" {
		t.Errorf("Value = %q, want %q", second.Value, "Two")
	}

	all, err := q.ListSettings(ctx)
	if err != nil {
		t.Fatalf("ListSettings: %v", err)
	}
	if all["site.title"] != "Two" {
		t.Errorf("ListSettings = %v", all)
	}
}

func TestUniqueViewGrouping(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	ctx := context.Background()
	q := New(db)
	author := createTestAuthor(t, q)

	post, err := q.CreatePost(ctx, CreatePostParams{
		Title: "Viewed", Slug: "viewed", Body: "x",
		Status: model.PostStatusPublished, AuthorID: author.ID,
		PublishedAt: sql.NullTime{Time: time.Now(), Valid: true},
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	now := time.Now()
	insert := func(id string, ip sql.NullString) {
		t.Helper()
		_, err := q.InsertPostView(ctx, InsertPostViewParams{
			ID: id, PostID: post.ID, IPAddress: ip, CreatedAt: now,
		})
		if err != nil {
			t.Fatalf("InsertPostView: %v", err)
		}
	}
	insert("v1", sql.NullString{String: "10.0.0.1", Valid: true})
	insert("v2", sql.NullString{String: "10.0.0.1", Valid: true})
	insert("v3", sql.NullString{String: "10.0.0.2", Valid: true})
	insert("v4", sql.NullString{})
	insert("v5", sql.NullString{})

	// Per-post uniqueness buckets NULL addresses together as one group.
	unique, err := q.CountUniqueViewsForPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("CountUniqueViewsForPost: %v", err)
	}
	if unique != 3 {
		t.Errorf("CountUniqueViewsForPost = %d, want 3", unique)
	}

	since := now.Add(-time.Minute)
	siteUnique, err := q.CountUniqueViewsSince(ctx, since)
	if err != nil {
		t.Fatalf("CountUniqueViewsSince: %v", err)
	}
	if siteUnique != 3 {
		t.Errorf("CountUniqueViewsSince = %d, want 3", siteUnique)
	}

	// The per-day site series uses COUNT(DISTINCT) instead, which drops the
	// NULL bucket entirely.
	days, err := q.SiteViewsByDay(ctx, since)
	if err != nil {
		t.Fatalf("SiteViewsByDay: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("days = %d, want 1", len(days))
	}
	if days[0].Views != 5 {
		t.Errorf("day views = %d, want 5", days[0].Views)
	}
	if days[0].UniqueViews != 2 {
		t.Errorf("day unique views = %d, want 2", days[0].UniqueViews)
	}
}

func TestTopViewedPostSinceEmpty(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	_, err := New(db).TopViewedPostSince(context.Background(), time.Now().AddDate(0, 0, -1))
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("TopViewedPostSince on empty log = %v, want sql.ErrNoRows", err)
	}
}
