package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/inkpress/inkpress/internal/middleware"
	"github.com/inkpress/inkpress/internal/model"
	"github.com/inkpress/inkpress/internal/store"
)

// maxCommentLength caps comment bodies.
const maxCommentLength = 5000

// CommentResponse represents a comment in API responses. The author email is
// only included for moderators.
type CommentResponse struct {
	ID          int64  `json:"id"`
	PostID      int64  `json:"post_id"`
	AuthorName  string `json:"author_name"`
	AuthorEmail string `json:"author_email,omitempty"`
	Body        string `json:"body"`
	Approved    bool   `json:"approved"`
	CreatedAt   string `json:"created_at"`
}

// CreateCommentRequest is the request body for posting a comment.
type CreateCommentRequest struct {
	AuthorName  string `json:"author_name"`
	AuthorEmail string `json:"author_email"`
	Body        string `json:"body"`
}

func commentToResponse(c model.Comment, includeEmail bool) CommentResponse {
	resp := CommentResponse{
		ID:         c.ID,
		PostID:     c.PostID,
		AuthorName: c.AuthorName,
		Body:       c.Body,
		Approved:   c.Approved,
		CreatedAt:  c.CreatedAt.Format(store.TimeLayout),
	}
	if includeEmail {
		resp.AuthorEmail = c.AuthorEmail
	}
	return resp
}

// ListPostComments handles GET /api/v1/posts/{id}/comments. Public; only
// approved comments are returned.
func (h *Handler) ListPostComments(w http.ResponseWriter, r *http.Request) {
	post, ok := h.requirePost(w, r)
	if !ok {
		return
	}
	if !post.IsPublished() && middleware.GetUser(r) == nil {
		WriteNotFound(w, "Post not found")
		return
	}

	comments, err := h.queries.ListApprovedComments(r.Context(), post.ID)
	if err != nil {
		h.logger.Error("list comments failed", "post_id", post.ID, "error", err)
		WriteInternalError(w, "Failed to list comments")
		return
	}

	responses := make([]CommentResponse, 0, len(comments))
	for _, c := range comments {
		responses = append(responses, commentToResponse(c, false))
	}
	WriteSuccess(w, responses, nil)
}

// CreateComment handles POST /api/v1/posts/{id}/comments. Public; the
// comment starts unapproved and waits for moderation. Comments may only be
// posted on published posts.
func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := ParseIDParam(r)
	if err != nil {
		WriteBadRequest(w, "Invalid post ID", nil)
		return
	}
	if _, err := h.queries.GetPublishedPostByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, "Post not found")
		} else {
			WriteInternalError(w, "Failed to retrieve post")
		}
		return
	}

	var req CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}

	validationErrors := make(map[string]string)
	if strings.TrimSpace(req.AuthorName) == "" {
		validationErrors["author_name"] = "Name is required"
	}
	if _, err := mail.ParseAddress(req.AuthorEmail); err != nil {
		validationErrors["author_email"] = "A valid email address is required"
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		validationErrors["body"] = "Comment body is required"
	} else if len(body) > maxCommentLength {
		validationErrors["body"] = "Comment is too long"
	}
	if len(validationErrors) > 0 {
		WriteValidationError(w, validationErrors)
		return
	}

	comment, err := h.queries.CreateComment(ctx, store.CreateCommentParams{
		PostID:      id,
		AuthorName:  strings.TrimSpace(req.AuthorName),
		AuthorEmail: req.AuthorEmail,
		Body:        body,
	})
	if err != nil {
		h.logger.Error("create comment failed", "post_id", id, "error", err)
		WriteInternalError(w, "Failed to create comment")
		return
	}

	h.logger.Info("comment submitted for moderation", "comment_id", comment.ID, "post_id", id)
	WriteCreated(w, commentToResponse(comment, false))
}

// ListComments handles GET /api/v1/comments. Moderation view;
// ?pending=true narrows to unapproved comments.
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	pendingOnly := r.URL.Query().Get("pending") == "true"

	comments, err := h.queries.ListComments(r.Context(), pendingOnly)
	if err != nil {
		h.logger.Error("list comments failed", "error", err)
		WriteInternalError(w, "Failed to list comments")
		return
	}

	responses := make([]CommentResponse, 0, len(comments))
	for _, c := range comments {
		responses = append(responses, commentToResponse(c, true))
	}
	WriteSuccess(w, responses, nil)
}

// ApproveComment handles POST /api/v1/comments/{id}/approve.
func (h *Handler) ApproveComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := ParseIDParam(r)
	if err != nil {
		WriteBadRequest(w, "Invalid comment ID", nil)
		return
	}
	if _, err := h.queries.GetCommentByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, "Comment not found")
		} else {
			WriteInternalError(w, "Failed to retrieve comment")
		}
		return
	}

	if err := h.queries.ApproveComment(ctx, id); err != nil {
		h.logger.Error("approve comment failed", "comment_id", id, "error", err)
		WriteInternalError(w, "Failed to approve comment")
		return
	}

	comment, err := h.queries.GetCommentByID(ctx, id)
	if err != nil {
		WriteInternalError(w, "Failed to retrieve comment")
		return
	}
	WriteSuccess(w, commentToResponse(comment, true), nil)
}

// DeleteComment handles DELETE /api/v1/comments/{id}.
func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIDParam(r)
	if err != nil {
		WriteBadRequest(w, "Invalid comment ID", nil)
		return
	}
	if _, err := h.queries.GetCommentByID(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, "Comment not found")
		} else {
			WriteInternalError(w, "Failed to retrieve comment")
		}
		return
	}
	if err := h.queries.DeleteComment(r.Context(), id); err != nil {
		h.logger.Error("delete comment failed", "comment_id", id, "error", err)
		WriteInternalError(w, "Failed to delete comment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
