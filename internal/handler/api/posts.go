package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/inkpress/inkpress/internal/middleware"
	"github.com/inkpress/inkpress/internal/model"
	"github.com/inkpress/inkpress/internal/render"
	"github.com/inkpress/inkpress/internal/store"
	"github.com/inkpress/inkpress/internal/util"
)

// PostResponse represents a post in API responses.
type PostResponse struct {
	ID              int64              `json:"id"`
	Title           string             `json:"title"`
	Slug            string             `json:"slug"`
	Body            string             `json:"body"`
	BodyHTML        string             `json:"body_html,omitempty"`
	Excerpt         string             `json:"excerpt,omitempty"`
	FeaturedImage   string             `json:"featured_image,omitempty"`
	Status          string             `json:"status"`
	AuthorID        int64              `json:"author_id"`
	ViewCount       int64              `json:"view_count"`
	MetaTitle       string             `json:"meta_title,omitempty"`
	MetaDescription string             `json:"meta_description,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	PublishedAt     *time.Time         `json:"published_at,omitempty"`
	Categories      []CategoryResponse `json:"categories,omitempty"`
	Tags            []TagResponse      `json:"tags,omitempty"`
}

// CreatePostRequest is the request body for creating a post.
type CreatePostRequest struct {
	Title           string  `json:"title"`
	Slug            string  `json:"slug,omitempty"`
	Body            string  `json:"body"`
	Excerpt         *string `json:"excerpt,omitempty"`
	FeaturedImage   *string `json:"featured_image,omitempty"`
	Status          string  `json:"status,omitempty"`
	MetaTitle       *string `json:"meta_title,omitempty"`
	MetaDescription *string `json:"meta_description,omitempty"`
	PublishedAt     *string `json:"published_at,omitempty"`
	CategoryIDs     []int64 `json:"category_ids,omitempty"`
	TagIDs          []int64 `json:"tag_ids,omitempty"`
}

// UpdatePostRequest is the request body for updating a post. Absent fields
// keep their current values.
type UpdatePostRequest struct {
	Title           *string  `json:"title,omitempty"`
	Slug            *string  `json:"slug,omitempty"`
	Body            *string  `json:"body,omitempty"`
	Excerpt         *string  `json:"excerpt,omitempty"`
	FeaturedImage   *string  `json:"featured_image,omitempty"`
	Status          *string  `json:"status,omitempty"`
	MetaTitle       *string  `json:"meta_title,omitempty"`
	MetaDescription *string  `json:"meta_description,omitempty"`
	PublishedAt     *string  `json:"published_at,omitempty"`
	CategoryIDs     *[]int64 `json:"category_ids,omitempty"`
	TagIDs          *[]int64 `json:"tag_ids,omitempty"`
}

func postToResponse(p model.Post) PostResponse {
	resp := PostResponse{
		ID:        p.ID,
		Title:     p.Title,
		Slug:      p.Slug,
		Body:      p.Body,
		Status:    p.Status,
		AuthorID:  p.AuthorID,
		ViewCount: p.ViewCount,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.Excerpt.Valid {
		resp.Excerpt = p.Excerpt.String
	}
	if p.FeaturedImage.Valid {
		resp.FeaturedImage = p.FeaturedImage.String
	}
	if p.MetaTitle.Valid {
		resp.MetaTitle = p.MetaTitle.String
	}
	if p.MetaDescription.Valid {
		resp.MetaDescription = p.MetaDescription.String
	}
	if p.PublishedAt.Valid {
		resp.PublishedAt = &p.PublishedAt.Time
	}
	return resp
}

// ListPosts handles GET /api/v1/posts.
// Public callers see published posts only; authenticated callers may filter
// by any status or list all.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := r.URL.Query().Get("status")
	include := r.URL.Query().Get("include")
	page := ParsePageParam(r)
	perPage := ParsePerPageParam(r, 20, 100)
	offset := (page - 1) * perPage

	authenticated := middleware.GetUser(r) != nil
	if !authenticated {
		if status != "" && status != model.PostStatusPublished {
			WriteForbidden(w, "Authentication required to view non-published posts")
			return
		}
		status = model.PostStatusPublished
	}
	if status != "" && !model.ValidPostStatus(status) {
		WriteBadRequest(w, "Unknown status", nil)
		return
	}

	posts, err := h.queries.ListPosts(ctx, store.ListPostsParams{
		Status: status,
		Limit:  int64(perPage),
		Offset: int64(offset),
	})
	if err != nil {
		h.logger.Error("list posts failed", "error", err)
		WriteInternalError(w, "Failed to list posts")
		return
	}
	total, err := h.queries.CountPosts(ctx, status)
	if err != nil {
		h.logger.Error("count posts failed", "error", err)
		WriteInternalError(w, "Failed to list posts")
		return
	}

	responses := make([]PostResponse, 0, len(posts))
	for _, p := range posts {
		resp := postToResponse(p)
		h.populatePostIncludes(ctx, &resp, p.ID, include)
		responses = append(responses, resp)
	}

	WriteSuccess(w, responses, &Meta{
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   pageCount(total, perPage),
	})
}

// GetPost handles GET /api/v1/posts/{id}. Unpublished posts are visible to
// authenticated users only and otherwise answered with 404.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, ok := h.requirePost(w, r)
	if !ok {
		return
	}
	if !post.IsPublished() && middleware.GetUser(r) == nil {
		WriteNotFound(w, "Post not found")
		return
	}

	resp := postToResponse(post)
	h.populatePostIncludes(r.Context(), &resp, post.ID, r.URL.Query().Get("include"))
	WriteSuccess(w, resp, nil)
}

// GetPostBySlug handles GET /api/v1/posts/slug/{slug}. The public read path:
// the body is also returned as rendered, sanitized HTML.
func (h *Handler) GetPostBySlug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		WriteBadRequest(w, "Slug is required", nil)
		return
	}

	post, err := h.queries.GetPostBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, "Post not found")
		} else {
			h.logger.Error("get post by slug failed", "slug", slug, "error", err)
			WriteInternalError(w, "Failed to retrieve post")
		}
		return
	}
	if !post.IsPublished() && middleware.GetUser(r) == nil {
		WriteNotFound(w, "Post not found")
		return
	}

	resp := postToResponse(post)
	if html, err := render.Markdown(post.Body); err == nil {
		resp.BodyHTML = html
	} else {
		h.logger.Warn("markdown render failed", "post_id", post.ID, "error", err)
	}
	h.populatePostIncludes(ctx, &resp, post.ID, "categories,tags")
	WriteSuccess(w, resp, nil)
}

// CreatePost handles POST /api/v1/posts.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(r)
	if user == nil {
		WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}

	validationErrors := make(map[string]string)
	if strings.TrimSpace(req.Title) == "" {
		validationErrors["title"] = "Title is required"
	}
	if req.Status == "" {
		req.Status = model.PostStatusDraft
	}
	if !model.ValidPostStatus(req.Status) {
		validationErrors["status"] = "Unknown status"
	}
	if req.Slug == "" {
		req.Slug = util.Slugify(req.Title)
	}
	if !util.IsValidSlug(req.Slug) {
		validationErrors["slug"] = "Slug may contain lowercase letters, digits, and hyphens only"
	}
	if len(validationErrors) > 0 {
		WriteValidationError(w, validationErrors)
		return
	}

	exists, err := h.queries.PostSlugExists(ctx, req.Slug, 0)
	if err != nil {
		WriteInternalError(w, "Failed to check slug")
		return
	}
	if exists {
		WriteValidationError(w, map[string]string{"slug": "Slug already exists"})
		return
	}

	params := store.CreatePostParams{
		Title:           req.Title,
		Slug:            req.Slug,
		Body:            req.Body,
		Excerpt:         util.NullStringFromPtr(req.Excerpt),
		FeaturedImage:   util.NullStringFromPtr(req.FeaturedImage),
		Status:          req.Status,
		AuthorID:        user.ID,
		MetaTitle:       util.NullStringFromPtr(req.MetaTitle),
		MetaDescription: util.NullStringFromPtr(req.MetaDescription),
	}

	publishedAt, ok := h.resolvePublishedAt(w, req.Status, req.PublishedAt, sql.NullTime{})
	if !ok {
		return
	}
	params.PublishedAt = publishedAt

	post, err := h.queries.CreatePost(ctx, params)
	if err != nil {
		h.logger.Error("create post failed", "error", err)
		WriteInternalError(w, "Failed to create post")
		return
	}

	if len(req.CategoryIDs) > 0 {
		if err := h.queries.SetPostCategories(ctx, post.ID, req.CategoryIDs); err != nil {
			h.logger.Warn("set post categories failed", "post_id", post.ID, "error", err)
		}
	}
	if len(req.TagIDs) > 0 {
		if err := h.queries.SetPostTags(ctx, post.ID, req.TagIDs); err != nil {
			h.logger.Warn("set post tags failed", "post_id", post.ID, "error", err)
		}
	}

	h.logger.Info("post created", "post_id", post.ID, "slug", post.Slug, "user_id", user.ID)

	resp := postToResponse(post)
	h.populatePostIncludes(ctx, &resp, post.ID, "categories,tags")
	WriteCreated(w, resp)
}

// UpdatePost handles PUT /api/v1/posts/{id}.
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	existing, ok := h.requirePost(w, r)
	if !ok {
		return
	}

	var req UpdatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}

	params := store.UpdatePostParams{
		ID:              existing.ID,
		Title:           existing.Title,
		Slug:            existing.Slug,
		Body:            existing.Body,
		Excerpt:         existing.Excerpt,
		FeaturedImage:   existing.FeaturedImage,
		Status:          existing.Status,
		MetaTitle:       existing.MetaTitle,
		MetaDescription: existing.MetaDescription,
		PublishedAt:     existing.PublishedAt,
	}

	if req.Title != nil {
		params.Title = *req.Title
	}
	if req.Slug != nil {
		if !util.IsValidSlug(*req.Slug) {
			WriteValidationError(w, map[string]string{"slug": "Slug may contain lowercase letters, digits, and hyphens only"})
			return
		}
		exists, err := h.queries.PostSlugExists(ctx, *req.Slug, existing.ID)
		if err != nil {
			WriteInternalError(w, "Failed to check slug")
			return
		}
		if exists {
			WriteValidationError(w, map[string]string{"slug": "Slug already exists"})
			return
		}
		params.Slug = *req.Slug
	}
	if req.Body != nil {
		params.Body = *req.Body
	}
	if req.Excerpt != nil {
		params.Excerpt = util.NullStringFromValue(*req.Excerpt)
	}
	if req.FeaturedImage != nil {
		params.FeaturedImage = util.NullStringFromValue(*req.FeaturedImage)
	}
	if req.Status != nil {
		if !model.ValidPostStatus(*req.Status) {
			WriteValidationError(w, map[string]string{"status": "Unknown status"})
			return
		}
		params.Status = *req.Status
	}
	if req.MetaTitle != nil {
		params.MetaTitle = util.NullStringFromValue(*req.MetaTitle)
	}
	if req.MetaDescription != nil {
		params.MetaDescription = util.NullStringFromValue(*req.MetaDescription)
	}

	publishedAt, ok := h.resolvePublishedAt(w, params.Status, req.PublishedAt, params.PublishedAt)
	if !ok {
		return
	}
	params.PublishedAt = publishedAt

	post, err := h.queries.UpdatePost(ctx, params)
	if err != nil {
		h.logger.Error("update post failed", "post_id", existing.ID, "error", err)
		WriteInternalError(w, "Failed to update post")
		return
	}

	if req.CategoryIDs != nil {
		if err := h.queries.SetPostCategories(ctx, post.ID, *req.CategoryIDs); err != nil {
			h.logger.Warn("set post categories failed", "post_id", post.ID, "error", err)
		}
	}
	if req.TagIDs != nil {
		if err := h.queries.SetPostTags(ctx, post.ID, *req.TagIDs); err != nil {
			h.logger.Warn("set post tags failed", "post_id", post.ID, "error", err)
		}
	}

	resp := postToResponse(post)
	h.populatePostIncludes(ctx, &resp, post.ID, "categories,tags")
	WriteSuccess(w, resp, nil)
}

// PublishPost handles POST /api/v1/posts/{id}/publish.
func (h *Handler) PublishPost(w http.ResponseWriter, r *http.Request) {
	post, ok := h.requirePost(w, r)
	if !ok {
		return
	}
	if post.IsPublished() {
		WriteSuccess(w, postToResponse(post), nil)
		return
	}

	published, err := h.queries.PublishPost(r.Context(), post.ID)
	if err != nil {
		h.logger.Error("publish post failed", "post_id", post.ID, "error", err)
		WriteInternalError(w, "Failed to publish post")
		return
	}
	h.logger.Info("post published", "post_id", published.ID, "slug", published.Slug)
	WriteSuccess(w, postToResponse(published), nil)
}

// DeletePost handles DELETE /api/v1/posts/{id}. Comments and taxonomy join
// rows cascade; view events are retained.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	post, ok := h.requirePost(w, r)
	if !ok {
		return
	}
	if err := h.queries.DeletePost(r.Context(), post.ID); err != nil {
		h.logger.Error("delete post failed", "post_id", post.ID, "error", err)
		WriteInternalError(w, "Failed to delete post")
		return
	}
	h.logger.Info("post deleted", "post_id", post.ID, "slug", post.Slug)
	w.WriteHeader(http.StatusNoContent)
}

// resolvePublishedAt derives the published_at value from an explicit request
// value, falling back to now for posts entering the published state without
// a timestamp. Scheduled posts must carry a future publish time.
func (h *Handler) resolvePublishedAt(w http.ResponseWriter, status string, raw *string, current sql.NullTime) (sql.NullTime, bool) {
	if raw != nil {
		if *raw == "" {
			current = sql.NullTime{}
		} else {
			t, err := time.Parse(time.RFC3339, *raw)
			if err != nil {
				WriteValidationError(w, map[string]string{"published_at": "Invalid date format. Use RFC3339 (e.g., 2026-01-01T00:00:00Z)"})
				return sql.NullTime{}, false
			}
			current = sql.NullTime{Time: t, Valid: true}
		}
	}

	switch status {
	case model.PostStatusPublished:
		if !current.Valid {
			current = sql.NullTime{Time: time.Now(), Valid: true}
		}
	case model.PostStatusScheduled:
		if !current.Valid {
			WriteValidationError(w, map[string]string{"published_at": "Scheduled posts require a publish time"})
			return sql.NullTime{}, false
		}
	}
	return current, true
}

func (h *Handler) populatePostIncludes(ctx context.Context, resp *PostResponse, postID int64, include string) {
	for _, inc := range strings.Split(include, ",") {
		switch strings.TrimSpace(inc) {
		case "categories":
			categories, err := h.queries.GetPostCategories(ctx, postID)
			if err != nil {
				continue
			}
			resp.Categories = make([]CategoryResponse, 0, len(categories))
			for _, c := range categories {
				resp.Categories = append(resp.Categories, categoryToResponse(c))
			}
		case "tags":
			tags, err := h.queries.GetPostTags(ctx, postID)
			if err != nil {
				continue
			}
			resp.Tags = make([]TagResponse, 0, len(tags))
			for _, t := range tags {
				resp.Tags = append(resp.Tags, tagToResponse(t))
			}
		}
	}
}

// requirePost parses the post ID from the URL and fetches the post,
// writing the error response on failure.
func (h *Handler) requirePost(w http.ResponseWriter, r *http.Request) (model.Post, bool) {
	id, err := ParseIDParam(r)
	if err != nil {
		WriteBadRequest(w, "Invalid post ID", nil)
		return model.Post{}, false
	}

	post, err := h.queries.GetPostByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, "Post not found")
		} else {
			WriteInternalError(w, "Failed to retrieve post")
		}
		return model.Post{}, false
	}
	return post, true
}
