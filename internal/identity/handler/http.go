// Package handler maps the /auth HTTP endpoints onto the identity services.
package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"session-auth/backend/internal/platform/apperror"
	"session-auth/backend/internal/server/middleware"
	sessiondomain "session-auth/backend/internal/session/domain"
)

var errMalformedBody = fmt.Errorf("%w: malformed request body", apperror.ErrMissingParams)

// AuthService is the login / refresh / logout orchestration.
type AuthService interface {
	Login(ctx context.Context, email, password string, meta sessiondomain.ClientMeta) (*sessiondomain.DeviceSession, error)
	Refresh(ctx context.Context, refreshToken string) (*sessiondomain.DeviceSession, error)
	Logout(ctx context.Context, refreshToken string) error
}

// PasswordResetter resets a forgotten password.
type PasswordResetter interface {
	Reset(ctx context.Context, email, host string) error
}

// PasswordChanger replaces the password of an authenticated user.
type PasswordChanger interface {
	Change(ctx context.Context, userID, current, next string) error
}

// AuthHandler serves /auth/*.
type AuthHandler struct {
	auth   AuthService
	reset  PasswordResetter
	change PasswordChanger
}

// NewAuthHandler returns the /auth handler.
func NewAuthHandler(auth AuthService, reset PasswordResetter, change PasswordChanger) *AuthHandler {
	return &AuthHandler{auth: auth, reset: reset, change: change}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type passwordRecoveryRequest struct {
	Email string `json:"email"`
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// bind decodes the JSON body into dst. A malformed body counts as missing params.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.WriteError(c, errMalformedBody)
		return false
	}
	return true
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	meta, _ := middleware.ClientMetaFromContext(c.Request.Context())
	sess, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, meta)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken})
}

// Refresh handles POST /auth/refresh. Only a new access token is returned.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshTokenRequest
	if !bind(c, &req) {
		return
	}
	sess, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{AccessToken: sess.AccessToken})
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshTokenRequest
	if !bind(c, &req) {
		return
	}
	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// PasswordRecovery handles POST /auth/password-recovery. The request Host is
// quoted in the recovery mail.
func (h *AuthHandler) PasswordRecovery(c *gin.Context) {
	var req passwordRecoveryRequest
	if !bind(c, &req) {
		return
	}
	if err := h.reset.Reset(c.Request.Context(), req.Email, c.Request.Host); err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// PasswordChange handles POST /auth/password-change. Requires the session guard.
func (h *AuthHandler) PasswordChange(c *gin.Context) {
	sess, ok := middleware.SessionFromContext(c.Request.Context())
	if !ok {
		middleware.WriteError(c, apperror.ErrNotAuthenticated)
		return
	}
	var req passwordChangeRequest
	if !bind(c, &req) {
		return
	}
	if err := h.change.Change(c.Request.Context(), sess.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		middleware.WriteError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
