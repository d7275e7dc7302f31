package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/inkpress/inkpress/internal/service"
)

// maxLayoutConfigBytes caps the layout configuration blob.
const maxLayoutConfigBytes = 64 * 1024

// SettingRequest is the request body for writing a setting.
type SettingRequest struct {
	Value       string  `json:"value"`
	Description *string `json:"description,omitempty"`
}

// SettingResponse represents a single setting.
type SettingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ListSettings handles GET /api/v1/settings.
func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.All(r.Context())
	if err != nil {
		h.logger.Error("list settings failed", "error", err)
		WriteInternalError(w, "Failed to list settings")
		return
	}
	WriteSuccess(w, settings, nil)
}

// GetSetting handles GET /api/v1/settings/{key}.
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := settingKeyParam(r)
	if key == "" {
		WriteBadRequest(w, "Invalid setting key", nil)
		return
	}

	value, err := h.settings.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, service.ErrSettingNotFound) {
			WriteNotFound(w, "Setting not found")
			return
		}
		h.logger.Error("get setting failed", "key", key, "error", err)
		WriteInternalError(w, "Failed to retrieve setting")
		return
	}
	WriteSuccess(w, SettingResponse{Key: key, Value: value}, nil)
}

// PutSetting handles PUT /api/v1/settings/{key}.
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	key := settingKeyParam(r)
	if key == "" {
		WriteBadRequest(w, "Invalid setting key", nil)
		return
	}

	var req SettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}

	var description sql.NullString
	if req.Description != nil {
		description = sql.NullString{String: *req.Description, Valid: true}
	}
	setting, err := h.settings.Set(r.Context(), key, req.Value, description)
	if err != nil {
		h.logger.Error("set setting failed", "key", key, "error", err)
		WriteInternalError(w, "Failed to save setting")
		return
	}

	h.logger.Info("setting updated", "category", "config", "key", key)
	WriteSuccess(w, SettingResponse{Key: setting.Key, Value: setting.Value}, nil)
}

// GetLayoutConfig handles GET /api/v1/settings/layout. Public so the site
// frontend can render itself; the blob defaults to "{}".
func (h *Handler) GetLayoutConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.settings.LayoutConfig(r.Context())
	if err != nil {
		h.logger.Error("layout config read failed", "error", err)
		WriteInternalError(w, "Failed to retrieve layout configuration")
		return
	}
	WriteSuccess(w, json.RawMessage(cfg), nil)
}

// PutLayoutConfig handles PUT /api/v1/settings/layout. The body is stored
// verbatim after a JSON validity check.
func (h *Handler) PutLayoutConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLayoutConfigBytes+1))
	if err != nil {
		WriteBadRequest(w, "Failed to read request body", nil)
		return
	}
	if len(body) > maxLayoutConfigBytes {
		WriteBadRequest(w, "Layout configuration is too large", nil)
		return
	}
	if !json.Valid(body) {
		WriteBadRequest(w, "Layout configuration must be valid JSON", nil)
		return
	}

	setting, err := h.settings.SetLayoutConfig(r.Context(), string(body))
	if err != nil {
		h.logger.Error("layout config write failed", "error", err)
		WriteInternalError(w, "Failed to save layout configuration")
		return
	}

	h.logger.Info("layout configuration updated", "category", "config")
	WriteSuccess(w, json.RawMessage(setting.Value), nil)
}

// settingKeyParam extracts and validates the {key} URL parameter. Keys are
// lowercase dotted identifiers like "site.title".
func settingKeyParam(r *http.Request) string {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" || len(key) > 128 {
		return ""
	}
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '.', c == '_', c == '-':
		default:
			return ""
		}
	}
	return key
}
