package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/inkpress/inkpress/internal/auth"
	"github.com/inkpress/inkpress/internal/middleware"
	"github.com/inkpress/inkpress/internal/model"
)

// LoginRequest is the request body for POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse represents a user in API responses. The password hash never
// leaves the server.
type UserResponse struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login_at,omitempty"`
}

func userToResponse(u model.User) UserResponse {
	resp := UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
	if u.LastLoginAt.Valid {
		resp.LastLogin = &u.LastLoginAt.Time
	}
	return resp
}

// Login handles POST /api/v1/auth/login. Invalid email and invalid password
// produce the same error so the endpoint cannot be used to enumerate
// accounts.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	if req.Email == "" || req.Password == "" {
		WriteValidationError(w, map[string]string{
			"email":    "Email is required",
			"password": "Password is required",
		})
		return
	}

	if locked, remaining := h.loginProt.IsAccountLocked(req.Email); locked {
		WriteError(w, http.StatusTooManyRequests, "account_locked",
			fmt.Sprintf("Account temporarily locked. Try again in %s.", remaining.Round(time.Second)), nil)
		return
	}

	user, err := h.queries.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			h.logger.Error("login lookup failed", "error", err)
			WriteInternalError(w, "Login failed")
			return
		}
		h.loginProt.RecordFailedAttempt(req.Email)
		WriteUnauthorized(w, "Invalid email or password")
		return
	}

	match, err := auth.CheckPassword(req.Password, user.PasswordHash)
	if err != nil {
		h.logger.Error("password check failed", "error", err)
		WriteInternalError(w, "Login failed")
		return
	}
	if !match {
		if locked, duration := h.loginProt.RecordFailedAttempt(req.Email); locked {
			WriteError(w, http.StatusTooManyRequests, "account_locked",
				fmt.Sprintf("Too many failed attempts. Account locked for %s.", duration), nil)
			return
		}
		WriteUnauthorized(w, "Invalid email or password")
		return
	}

	h.loginProt.RecordSuccessfulLogin(req.Email)

	// New session token on privilege change.
	if err := h.sessions.RenewToken(ctx); err != nil {
		h.logger.Error("session renew failed", "error", err)
		WriteInternalError(w, "Login failed")
		return
	}
	h.sessions.Put(ctx, middleware.SessionKeyUserID, user.ID)

	if err := h.queries.TouchLastLogin(ctx, user.ID); err != nil {
		h.logger.Warn("failed to update last login", "user_id", user.ID, "error", err)
	}

	h.logger.Info("user logged in", "user_id", user.ID, "email", user.Email)
	WriteSuccess(w, userToResponse(user), nil)
}

// Logout handles POST /api/v1/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if err := h.sessions.Destroy(r.Context()); err != nil {
		h.logger.Error("session destroy failed", "error", err)
		WriteInternalError(w, "Logout failed")
		return
	}
	if user != nil {
		h.logger.Info("user logged out", "user_id", user.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if user == nil {
		WriteUnauthorized(w, "Not authenticated")
		return
	}
	WriteSuccess(w, userToResponse(*user), nil)
}
