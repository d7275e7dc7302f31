package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/inkpress/inkpress/internal/middleware"
	"github.com/inkpress/inkpress/internal/model"
	"github.com/inkpress/inkpress/internal/service"
)

const (
	defaultSearchPerPage = 20
	maxSearchPerPage     = 100
)

// SearchPosts handles GET /api/v1/search. Anonymous callers only see
// published posts; authenticated callers can filter by ?status= or search
// across all statuses.
func (h *Handler) SearchPosts(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		WriteBadRequest(w, "Missing search query", map[string]string{"q": "required"})
		return
	}

	status := r.URL.Query().Get("status")
	if middleware.GetUser(r) == nil {
		status = model.PostStatusPublished
	} else if status != "" && !model.ValidPostStatus(status) {
		WriteBadRequest(w, "Invalid status filter", map[string]string{"status": status})
		return
	}

	page := ParsePageParam(r)
	perPage := ParsePerPageParam(r, defaultSearchPerPage, maxSearchPerPage)

	params := service.SearchParams{
		Query:  query,
		Status: status,
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			WriteBadRequest(w, "Invalid category_id filter", map[string]string{"category_id": raw})
			return
		}
		params.CategoryID = id
	}
	if raw := r.URL.Query().Get("author_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			WriteBadRequest(w, "Invalid author_id filter", map[string]string{"author_id": raw})
			return
		}
		params.AuthorID = id
	}
	if raw := r.URL.Query().Get("published_from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteBadRequest(w, "Invalid published_from date, use RFC3339", map[string]string{"published_from": raw})
			return
		}
		params.PublishedFrom = t
	}
	if raw := r.URL.Query().Get("published_to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteBadRequest(w, "Invalid published_to date, use RFC3339", map[string]string{"published_to": raw})
			return
		}
		params.PublishedTo = t
	}

	results, total, err := h.search.SearchPosts(r.Context(), params)
	if err != nil {
		h.logger.Error("search failed", "query", query, "error", err)
		WriteInternalError(w, "Search failed")
		return
	}

	WriteSuccess(w, results, &Meta{
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   pageCount(total, perPage),
	})
}

// RebuildSearchIndex handles POST /api/v1/search/rebuild. Admin only; drops
// and repopulates the full-text index from the posts table.
func (h *Handler) RebuildSearchIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.search.RebuildIndex(r.Context()); err != nil {
		h.logger.Error("search index rebuild failed", "error", err)
		WriteInternalError(w, "Failed to rebuild search index")
		return
	}
	h.logger.Info("search index rebuilt", "category", "system")
	WriteSuccess(w, map[string]string{"status": "rebuilt"}, nil)
}
