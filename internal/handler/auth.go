package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/lost-and-found/internal/middleware" // request identity helpers
	"github.com/iliyamo/lost-and-found/internal/model"      // user and role types
	"github.com/iliyamo/lost-and-found/internal/service"    // account store
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth *service.AuthStore
}

func NewAuthHandler(a *service.AuthStore) *AuthHandler {
	return &AuthHandler{Auth: a}
}

// ----- DTOs -----

type registerReq struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	FullName string     `json:"full_name"`
	Role     model.Role `json:"role"` // 2 User | 3 Student | 4 Faculty; 0 means User
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type profileReq struct {
	FullName string `json:"full_name"`
}
type passwordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type authResp struct {
	User    *model.User `json:"user"`
	Access  tokenPart   `json:"access"`
	Refresh tokenPart   `json:"refresh"`
}

func sessionResp(s *service.Session) authResp {
	return authResp{
		User:    s.User,
		Access:  tokenPart{Token: s.AccessToken, Expires: s.AccessExpires},
		Refresh: tokenPart{Token: s.RefreshToken, Expires: s.RefreshExpires}, // raw back to client
	}
}

// Register: create the account and return tokens immediately. Admin
// accounts cannot be self-registered.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	if req.Role == model.RoleAdmin && !middleware.IsPrivileged(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "admin accounts require the service key"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	if _, err := h.Auth.Register(ctx, req.Email, req.Password, req.FullName, req.Role); err != nil {
		return fail(c, err, "create user failed")
	}
	sess, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return fail(c, err, "issue tokens failed")
	}
	return c.JSON(http.StatusCreated, sessionResp(sess))
}

// Login: verify and return a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	sess, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return fail(c, err, "login failed")
	}
	return c.JSON(http.StatusOK, sessionResp(sess))
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	sess, err := h.Auth.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return fail(c, err, "refresh failed")
	}
	return c.JSON(http.StatusOK, sessionResp(sess))
}

// Logout: revoke the given refresh token. No access token is needed.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Auth.Logout(ctx, strings.TrimSpace(req.RefreshToken)); err != nil {
		return fail(c, err, "logout failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated user's record.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.Auth.GetUser(ctx, middleware.UserID(c))
	if err != nil {
		return fail(c, err, "load user failed")
	}
	return c.JSON(http.StatusOK, u)
}

// UpdateProfile changes the caller's display name.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	var req profileReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.Auth.UpdateProfile(ctx, middleware.UserID(c), req.FullName)
	if err != nil {
		return fail(c, err, "update profile failed")
	}
	return c.JSON(http.StatusOK, u)
}

// ChangePassword verifies the current password before storing the new one.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req passwordReq
	if err := c.Bind(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "current_password/new_password required"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Auth.ChangePassword(ctx, middleware.UserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		return fail(c, err, "change password failed")
	}
	return c.NoContent(http.StatusNoContent)
}
