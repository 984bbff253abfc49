package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
	"github.com/aryan0dhankhar/tenantauth/internal/security/middleware"
	"github.com/aryan0dhankhar/tenantauth/internal/service"
)

const (
	// RefreshCookieName is the cookie carrying the refresh token
	RefreshCookieName = "jid"
	// RefreshCookiePath limits the cookie to the refresh endpoint
	RefreshCookiePath = "/user/refresh-token"
)

// UserHandler serves the end-user endpoints
type UserHandler struct {
	auth         *service.AuthService
	cookieSecure bool
	refreshTTL   time.Duration
	logger       *slog.Logger
}

// NewUserHandler creates a new user handler. refreshTTL sets the refresh
// cookie's Max-Age.
func NewUserHandler(authService *service.AuthService, cookieSecure bool, refreshTTL time.Duration, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{
		auth:         authService,
		cookieSecure: cookieSecure,
		refreshTTL:   refreshTTL,
		logger:       logger,
	}
}

// SignupRequest accepts the API key in the body as an alternative to the
// X-API-Key header
type SignupRequest struct {
	service.CreateUserInput
	APIKey string `json:"apiKey"`
}

type SigninRequest struct {
	service.SigninInput
	APIKey string `json:"apiKey"`
}

type UserResponse struct {
	User *domain.User `json:"user"`
}

type UsersResponse struct {
	Users []*domain.User `json:"users"`
}

// Signup handles POST /user/signup
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.auth.Signup(r.Context(), apiKeyFrom(r, req.APIKey), req.CreateUserInput)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserResponse{User: user})
}

// Signin handles POST /user/signin. The refresh token only travels in the
// jid cookie.
func (h *UserHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	pair, err := h.auth.Signin(r.Context(), apiKeyFrom(r, req.APIKey), req.SigninInput)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, pair)
}

// RefreshToken handles POST /user/refresh-token
func (h *UserHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing refresh token"})
		return
	}

	pair, err := h.auth.Refresh(r.Context(), r.Header.Get(middleware.APIKeyHeader), cookie.Value)
	if err != nil {
		if errors.Is(err, domain.ErrSessionRevoked) {
			h.clearRefreshCookie(w)
		}
		writeError(w, r, h.logger, err)
		return
	}
	h.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, pair)
}

// Logout handles POST /user/logout. Missing or stale refresh tokens are
// not an error.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var token string
	if cookie, err := r.Cookie(RefreshCookieName); err == nil {
		token = cookie.Value
	}

	h.clearRefreshCookie(w)
	if err := h.auth.Logout(r.Context(), r.Header.Get(middleware.APIKeyHeader), token); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// Me handles GET /user/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.CurrentUser(r.Context(), middleware.GetClaimsFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: user})
}

// UpdateProfile handles PUT /user/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateProfileInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), middleware.GetClaimsFromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: user})
}

// ChangePassword handles POST /user/change-password. The caller's session
// ends, so the refresh cookie is cleared as well.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req service.ChangePasswordInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.auth.ChangePassword(r.Context(), middleware.GetClaimsFromContext(r.Context()), req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "password changed"})
}

// List handles GET /user/list (admin only)
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.ListUsers(r.Context(), middleware.GetClaimsFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if users == nil {
		users = []*domain.User{}
	}
	writeJSON(w, http.StatusOK, UsersResponse{Users: users})
}

func (h *UserHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     RefreshCookiePath,
		MaxAge:   int(h.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *UserHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     RefreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// apiKeyFrom prefers the X-API-Key header over a key sent in the body
func apiKeyFrom(r *http.Request, bodyKey string) string {
	if key := r.Header.Get(middleware.APIKeyHeader); key != "" {
		return key
	}
	return bodyKey
}
