package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/inkpress/inkpress/internal/middleware"
)

// RouterConfig tunes the HTTP middleware stack.
type RouterConfig struct {
	// RateLimitRPS and RateLimitBurst bound anonymous request rates per IP.
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
}

// DefaultRouterConfig returns the production middleware settings.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		RateLimitRPS:   10.0,
		RateLimitBurst: 20,
		RequestTimeout: 30 * time.Second,
	}
}

// Router builds the chi router with all API routes mounted.
func (h *Handler) Router(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(chimw.GetHead)
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(h.sessions.LoadAndSave)
	r.Use(middleware.LoadUser(h.sessions, h.db))

	rateLimiter := middleware.NewGlobalRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	r.Get("/healthz", h.Status)
	r.Get("/feed.xml", h.Feed)
	r.Get("/feed/rss", h.Feed)

	r.Route("/api/v1", func(r chi.Router) {
		// Public surface. Rate limited per IP.
		r.Group(func(r chi.Router) {
			r.Use(rateLimiter.Middleware())

			r.Get("/status", h.Status)
			r.With(h.loginProt.Middleware()).Post("/auth/login", h.Login)
			r.Post("/auth/logout", h.Logout)

			r.Get("/posts", h.ListPosts)
			r.Get("/posts/{id}", h.GetPost)
			r.Get("/posts/slug/{slug}", h.GetPostBySlug)
			r.Post("/posts/{id}/views", h.RecordView)
			r.Get("/posts/{id}/comments", h.ListPostComments)
			r.Post("/posts/{id}/comments", h.CreateComment)

			r.Get("/categories", h.ListCategories)
			r.Get("/categories/slug/{slug}", h.GetCategoryBySlug)
			r.Get("/tags", h.ListTags)
			r.Get("/tags/slug/{slug}", h.GetTagBySlug)
			r.Get("/search", h.SearchPosts)
			r.Get("/settings/layout", h.GetLayoutConfig)
		})

		// Authenticated surface.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)

			r.Get("/auth/me", h.Me)

			r.Post("/posts", h.CreatePost)
			r.Put("/posts/{id}", h.UpdatePost)
			r.Post("/posts/{id}/publish", h.PublishPost)
			r.Delete("/posts/{id}", h.DeletePost)

			r.Get("/posts/{id}/analytics", h.GetPostAnalytics)
			r.Get("/dashboard", h.GetDashboard)
			r.Get("/dashboard/stats", h.GetDashboardStats)

			r.Post("/categories", h.CreateCategory)
			r.Put("/categories/{id}", h.UpdateCategory)
			r.Delete("/categories/{id}", h.DeleteCategory)
			r.Post("/tags", h.CreateTag)
			r.Put("/tags/{id}", h.UpdateTag)
			r.Delete("/tags/{id}", h.DeleteTag)

			r.Get("/comments", h.ListComments)
			r.Post("/comments/{id}/approve", h.ApproveComment)
			r.Delete("/comments/{id}", h.DeleteComment)
		})

		// Admin surface.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(middleware.RequireAdmin)

			r.Get("/analytics/site", h.GetSiteAnalytics)
			r.Get("/settings", h.ListSettings)
			r.Get("/settings/{key}", h.GetSetting)
			r.Put("/settings/layout", h.PutLayoutConfig)
			r.Put("/settings/{key}", h.PutSetting)
			r.Post("/search/rebuild", h.RebuildSearchIndex)
		})
	})

	return r
}
