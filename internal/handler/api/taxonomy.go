package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/inkpress/inkpress/internal/model"
	"github.com/inkpress/inkpress/internal/store"
	"github.com/inkpress/inkpress/internal/util"
)

// CategoryResponse represents a category in API responses.
type CategoryResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	PostCount   int64     `json:"post_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TagResponse represents a tag in API responses.
type TagResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color"`
	PostCount   int64     `json:"post_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TaxonomyRequest is the request body for creating or updating a category
// or tag.
type TaxonomyRequest struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       string  `json:"color,omitempty"` // tags only
}

func categoryToResponse(c model.Category) CategoryResponse {
	resp := CategoryResponse{
		ID:        c.ID,
		Name:      c.Name,
		Slug:      c.Slug,
		CreatedAt: c.CreatedAt,
	}
	if c.Description.Valid {
		resp.Description = c.Description.String
	}
	return resp
}

func tagToResponse(t model.Tag) TagResponse {
	resp := TagResponse{
		ID:        t.ID,
		Name:      t.Name,
		Slug:      t.Slug,
		Color:     t.Color,
		CreatedAt: t.CreatedAt,
	}
	if t.Description.Valid {
		resp.Description = t.Description.String
	}
	return resp
}

// validateTaxonomyRequest fills in a derived slug and checks the shared
// name/slug rules. Returns false after writing the response on failure.
func validateTaxonomyRequest(w http.ResponseWriter, req *TaxonomyRequest) bool {
	if strings.TrimSpace(req.Name) == "" {
		WriteValidationError(w, map[string]string{"name": "Name is required"})
		return false
	}
	if req.Slug == "" {
		req.Slug = util.Slugify(req.Name)
	}
	if !util.IsValidSlug(req.Slug) {
		WriteValidationError(w, map[string]string{"slug": "Slug may contain lowercase letters, digits, and hyphens only"})
		return false
	}
	return true
}

// ListCategories handles GET /api/v1/categories. Each category carries its
// post count.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	categories, err := h.queries.ListCategories(ctx)
	if err != nil {
		h.logger.Error("list categories failed", "error", err)
		WriteInternalError(w, "Failed to list categories")
		return
	}

	responses := make([]CategoryResponse, 0, len(categories))
	for _, c := range categories {
		resp := categoryToResponse(c)
		if count, err := h.queries.CountPostsForCategory(ctx, c.ID); err == nil {
			resp.PostCount = count
		}
		responses = append(responses, resp)
	}
	WriteSuccess(w, responses, nil)
}

// CategoryWithPostsResponse is a category with its published posts.
type CategoryWithPostsResponse struct {
	CategoryResponse
	Posts []PostResponse `json:"posts"`
}

// TagWithPostsResponse is a tag with its published posts.
type TagWithPostsResponse struct {
	TagResponse
	Posts []PostResponse `json:"posts"`
}

// taxonomyPostLimit caps the posts returned on taxonomy detail pages.
const taxonomyPostLimit = 20

// GetCategoryBySlug handles GET /api/v1/categories/slug/{slug}. Public; the
// category comes with its published posts, newest first.
func (h *Handler) GetCategoryBySlug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	category, err := h.queries.GetCategoryBySlug(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, "Category not found")
		} else {
			WriteInternalError(w, "Failed to retrieve category")
		}
		return
	}

	posts, err := h.queries.ListPublishedPostsForCategory(ctx, category.ID, taxonomyPostLimit)
	if err != nil {
		h.logger.Error("category posts failed", "category_id", category.ID, "error", err)
		WriteInternalError(w, "Failed to list category posts")
		return
	}

	resp := CategoryWithPostsResponse{
		CategoryResponse: categoryToResponse(category),
		Posts:            make([]PostResponse, 0, len(posts)),
	}
	resp.PostCount = int64(len(posts))
	for _, p := range posts {
		resp.Posts = append(resp.Posts, postToResponse(p))
	}
	WriteSuccess(w, resp, nil)
}

// GetTagBySlug handles GET /api/v1/tags/slug/{slug}. Public; the tag comes
// with its published posts, newest first.
func (h *Handler) GetTagBySlug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tag, err := h.queries.GetTagBySlug(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, "Tag not found")
		} else {
			WriteInternalError(w, "Failed to retrieve tag")
		}
		return
	}

	posts, err := h.queries.ListPublishedPostsForTag(ctx, tag.ID, taxonomyPostLimit)
	if err != nil {
		h.logger.Error("tag posts failed", "tag_id", tag.ID, "error", err)
		WriteInternalError(w, "Failed to list tag posts")
		return
	}

	resp := TagWithPostsResponse{
		TagResponse: tagToResponse(tag),
		Posts:       make([]PostResponse, 0, len(posts)),
	}
	resp.PostCount = int64(len(posts))
	for _, p := range posts {
		resp.Posts = append(resp.Posts, postToResponse(p))
	}
	WriteSuccess(w, resp, nil)
}

// CreateCategory handles POST /api/v1/categories.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req TaxonomyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	if !validateTaxonomyRequest(w, &req) {
		return
	}

	exists, err := h.queries.CategorySlugExists(ctx, req.Slug, 0)
	if err != nil {
		WriteInternalError(w, "Failed to check slug")
		return
	}
	if exists {
		WriteValidationError(w, map[string]string{"slug": "Slug already exists"})
		return
	}

	category, err := h.queries.CreateCategory(ctx, store.CreateCategoryParams{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: util.NullStringFromPtr(req.Description),
	})
	if err != nil {
		h.logger.Error("create category failed", "error", err)
		WriteInternalError(w, "Failed to create category")
		return
	}
	WriteCreated(w, categoryToResponse(category))
}

// UpdateCategory handles PUT /api/v1/categories/{id}.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := ParseIDParam(r)
	if err != nil {
		WriteBadRequest(w, "Invalid category ID", nil)
		return
	}
	existing, err := h.queries.GetCategoryByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, "Category not found")
		} else {
			WriteInternalError(w, "Failed to retrieve category")
		}
		return
	}

	var req TaxonomyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	if !validateTaxonomyRequest(w, &req) {
		return
	}

	exists, err := h.queries.CategorySlugExists(ctx, req.Slug, existing.ID)
	if err != nil {
		WriteInternalError(w, "Failed to check slug")
		return
	}
	if exists {
		WriteValidationError(w, map[string]string{"slug": "Slug already exists"})
		return
	}

	description := existing.Description
	if req.Description != nil {
		description = util.NullStringFromValue(*req.Description)
	}
	category, err := h.queries.UpdateCategory(ctx, store.UpdateCategoryParams{
		ID:          existing.ID,
		Name:        req.Name,
		Slug:        req.Slug,
		Description: description,
	})
	if err != nil {
		h.logger.Error("update category failed", "category_id", existing.ID, "error", err)
		WriteInternalError(w, "Failed to update category")
		return
	}
	WriteSuccess(w, categoryToResponse(category), nil)
}

// DeleteCategory handles DELETE /api/v1/categories/{id}. Posts keep their
// other categories; the join rows cascade.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIDParam(r)
	if err != nil {
		WriteBadRequest(w, "Invalid category ID", nil)
		return
	}
	if _, err := h.queries.GetCategoryByID(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, "Category not found")
		} else {
			WriteInternalError(w, "Failed to retrieve category")
		}
		return
	}
	if err := h.queries.DeleteCategory(r.Context(), id); err != nil {
		h.logger.Error("delete category failed", "category_id", id, "error", err)
		WriteInternalError(w, "Failed to delete category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTags handles GET /api/v1/tags. ?popular=true returns only tags with
// published posts, ranked by use.
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.URL.Query().Get("popular") == "true" {
		perPage := ParsePerPageParam(r, 20, 100)
		popular, err := h.queries.PopularTags(ctx, int64(perPage))
		if err != nil {
			h.logger.Error("list popular tags failed", "error", err)
			WriteInternalError(w, "Failed to list tags")
			return
		}
		responses := make([]TagResponse, 0, len(popular))
		for _, p := range popular {
			resp := tagToResponse(p.Tag)
			resp.PostCount = p.PostCount
			responses = append(responses, resp)
		}
		WriteSuccess(w, responses, nil)
		return
	}

	tags, err := h.queries.ListTags(ctx)
	if err != nil {
		h.logger.Error("list tags failed", "error", err)
		WriteInternalError(w, "Failed to list tags")
		return
	}
	responses := make([]TagResponse, 0, len(tags))
	for _, t := range tags {
		resp := tagToResponse(t)
		if count, err := h.queries.CountPostsForTag(ctx, t.ID); err == nil {
			resp.PostCount = count
		}
		responses = append(responses, resp)
	}
	WriteSuccess(w, responses, nil)
}

// CreateTag handles POST /api/v1/tags.
func (h *Handler) CreateTag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req TaxonomyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	if !validateTaxonomyRequest(w, &req) {
		return
	}
	if req.Color == "" {
		req.Color = model.DefaultTagColor
	}

	exists, err := h.queries.TagSlugExists(ctx, req.Slug, 0)
	if err != nil {
		WriteInternalError(w, "Failed to check slug")
		return
	}
	if exists {
		WriteValidationError(w, map[string]string{"slug": "Slug already exists"})
		return
	}

	tag, err := h.queries.CreateTag(ctx, store.CreateTagParams{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: util.NullStringFromPtr(req.Description),
		Color:       req.Color,
	})
	if err != nil {
		h.logger.Error("create tag failed", "error", err)
		WriteInternalError(w, "Failed to create tag")
		return
	}
	WriteCreated(w, tagToResponse(tag))
}

// UpdateTag handles PUT /api/v1/tags/{id}.
func (h *Handler) UpdateTag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := ParseIDParam(r)
	if err != nil {
		WriteBadRequest(w, "Invalid tag ID", nil)
		return
	}
	existing, err := h.queries.GetTagByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, "Tag not found")
		} else {
			WriteInternalError(w, "Failed to retrieve tag")
		}
		return
	}

	var req TaxonomyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	if !validateTaxonomyRequest(w, &req) {
		return
	}

	exists, err := h.queries.TagSlugExists(ctx, req.Slug, existing.ID)
	if err != nil {
		WriteInternalError(w, "Failed to check slug")
		return
	}
	if exists {
		WriteValidationError(w, map[string]string{"slug": "Slug already exists"})
		return
	}

	description := existing.Description
	if req.Description != nil {
		description = util.NullStringFromValue(*req.Description)
	}
	color := existing.Color
	if req.Color != "" {
		color = req.Color
	}
	tag, err := h.queries.UpdateTag(ctx, store.UpdateTagParams{
		ID:          existing.ID,
		Name:        req.Name,
		Slug:        req.Slug,
		Description: description,
		Color:       color,
	})
	if err != nil {
		h.logger.Error("update tag failed", "tag_id", existing.ID, "error", err)
		WriteInternalError(w, "Failed to update tag")
		return
	}
	WriteSuccess(w, tagToResponse(tag), nil)
}

// DeleteTag handles DELETE /api/v1/tags/{id}.
func (h *Handler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIDParam(r)
	if err != nil {
		WriteBadRequest(w, "Invalid tag ID", nil)
		return
	}
	if _, err := h.queries.GetTagByID(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, "Tag not found")
		} else {
			WriteInternalError(w, "Failed to retrieve tag")
		}
		return
	}
	if err := h.queries.DeleteTag(r.Context(), id); err != nil {
		h.logger.Error("delete tag failed", "tag_id", id, "error", err)
		WriteInternalError(w, "Failed to delete tag")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
