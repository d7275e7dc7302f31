package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/inkpress/inkpress/internal/analytics"
	"github.com/inkpress/inkpress/internal/util"
)

// RecordViewResponse acknowledges a recorded view.
type RecordViewResponse struct {
	ViewID string `json:"view_id"`
	PostID int64  `json:"post_id"`
}

// RecordView handles POST /api/v1/posts/{id}/views. Public; the view event
// is built from the request itself, clients send no body. Drafts and unknown
// IDs both come back 404 so probing the endpoint reveals nothing.
func (h *Handler) RecordView(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIDParam(r)
	if err != nil {
		WriteBadRequest(w, "Invalid post ID", nil)
		return
	}

	in := analytics.RecordViewInput{PostID: id}
	if ua := r.UserAgent(); ua != "" {
		in.UserAgent = &ua
	}
	if ip := util.RealIP(r); ip != "" {
		in.IPAddress = &ip
	}
	if ref := r.Referer(); ref != "" {
		in.Referer = &ref
	}

	view, err := h.analytics.RecordView(r.Context(), in)
	if err != nil {
		if errors.Is(err, analytics.ErrNotFoundOrUnpublished) {
			WriteNotFound(w, "Post not found")
			return
		}
		h.logger.Error("record view failed", "post_id", id, "error", err)
		WriteInternalError(w, "Failed to record view")
		return
	}

	WriteCreated(w, RecordViewResponse{ViewID: view.ID, PostID: view.PostID})
}

// GetPostAnalytics handles GET /api/v1/posts/{id}/analytics.
func (h *Handler) GetPostAnalytics(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIDParam(r)
	if err != nil {
		WriteBadRequest(w, "Invalid post ID", nil)
		return
	}

	stats, err := h.analytics.PostAnalytics(r.Context(), id)
	if err != nil {
		if errors.Is(err, analytics.ErrNotFound) {
			WriteNotFound(w, "Post not found")
			return
		}
		h.logger.Error("post analytics failed", "post_id", id, "error", err)
		WriteInternalError(w, "Failed to compute post analytics")
		return
	}

	WriteSuccess(w, stats, nil)
}

// GetSiteAnalytics handles GET /api/v1/analytics/site. The ?days= parameter
// defaults to 30 and must be between 1 and 365.
func (h *Handler) GetSiteAnalytics(w http.ResponseWriter, r *http.Request) {
	days := analytics.DefaultDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			WriteBadRequest(w, "Invalid days parameter", nil)
			return
		}
		days = parsed
	}

	stats, err := h.analytics.SiteAnalytics(r.Context(), days)
	if err != nil {
		if errors.Is(err, analytics.ErrDaysOutOfRange) {
			WriteBadRequest(w, "Days must be between 1 and 365", map[string]string{
				"days": strconv.Itoa(days),
			})
			return
		}
		h.logger.Error("site analytics failed", "days", days, "error", err)
		WriteInternalError(w, "Failed to compute site analytics")
		return
	}

	WriteSuccess(w, stats, nil)
}
