package api

import (
	"net/http"

	"github.com/inkpress/inkpress/internal/analytics"
	"github.com/inkpress/inkpress/internal/store"
)

const (
	dashboardRecentPosts  = 5
	dashboardRecentEvents = 10
)

// DashboardEventResponse is an event log entry as shown on the dashboard.
type DashboardEventResponse struct {
	ID        int64  `json:"id"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// DashboardRecentPost is a recent post summary for the dashboard.
type DashboardRecentPost struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Slug       string   `json:"slug"`
	Status     string   `json:"status"`
	AuthorName string   `json:"author_name"`
	Categories []string `json:"categories,omitempty"`
	ViewCount  int64    `json:"view_count"`
	CreatedAt  string   `json:"created_at"`
}

// DashboardResponse is the combined payload for the admin dashboard.
type DashboardResponse struct {
	Stats        analytics.DashboardStats `json:"stats"`
	PostCounts   map[string]int64         `json:"post_counts"`
	RecentPosts  []DashboardRecentPost    `json:"recent_posts"`
	RecentEvents []DashboardEventResponse `json:"recent_events"`
}

// GetDashboardStats handles GET /api/v1/dashboard/stats.
func (h *Handler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analytics.DashboardStats(r.Context())
	if err != nil {
		h.logger.Error("dashboard stats failed", "error", err)
		WriteInternalError(w, "Failed to compute dashboard stats")
		return
	}
	WriteSuccess(w, stats, nil)
}

// GetDashboard handles GET /api/v1/dashboard. It bundles the headline stats
// with recent posts and recent event log entries.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.analytics.DashboardStats(ctx)
	if err != nil {
		h.logger.Error("dashboard stats failed", "error", err)
		WriteInternalError(w, "Failed to compute dashboard stats")
		return
	}

	postCounts, err := h.queries.CountPostsByStatus(ctx)
	if err != nil {
		h.logger.Error("post counts failed", "error", err)
		WriteInternalError(w, "Failed to count posts")
		return
	}

	recent, err := h.queries.RecentPosts(ctx, dashboardRecentPosts)
	if err != nil {
		h.logger.Error("recent posts failed", "error", err)
		WriteInternalError(w, "Failed to load recent posts")
		return
	}

	events, err := h.queries.ListRecentEvents(ctx, dashboardRecentEvents)
	if err != nil {
		h.logger.Error("recent events failed", "error", err)
		WriteInternalError(w, "Failed to load recent events")
		return
	}

	resp := DashboardResponse{
		Stats:        stats,
		PostCounts:   postCounts,
		RecentPosts:  make([]DashboardRecentPost, 0, len(recent)),
		RecentEvents: make([]DashboardEventResponse, 0, len(events)),
	}
	for _, rp := range recent {
		entry := DashboardRecentPost{
			ID:         rp.Post.ID,
			Title:      rp.Post.Title,
			Slug:       rp.Post.Slug,
			Status:     rp.Post.Status,
			AuthorName: rp.AuthorName,
			ViewCount:  rp.Post.ViewCount,
			CreatedAt:  rp.Post.CreatedAt.Format(store.TimeLayout),
		}
		if categories, err := h.queries.GetPostCategories(ctx, rp.Post.ID); err == nil {
			for _, c := range categories {
				entry.Categories = append(entry.Categories, c.Name)
			}
		}
		resp.RecentPosts = append(resp.RecentPosts, entry)
	}
	for _, ev := range events {
		resp.RecentEvents = append(resp.RecentEvents, DashboardEventResponse{
			ID:        ev.ID,
			Level:     ev.Level,
			Category:  ev.Category,
			Message:   ev.Message,
			CreatedAt: ev.CreatedAt.Format(store.TimeLayout),
		})
	}

	WriteSuccess(w, resp, nil)
}
