// Package handler serves the /users endpoints.
package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"session-auth/backend/internal/platform/apperror"
	"session-auth/backend/internal/server/middleware"
	"session-auth/backend/internal/user/domain"
)

var errUserGone = fmt.Errorf("%w: user no longer exists", apperror.ErrNotAuthenticated)

// UserReader loads users by id.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Handler serves /users/*.
type Handler struct {
	users UserReader
}

// NewHandler returns the /users handler.
func NewHandler(users UserReader) *Handler {
	return &Handler{users: users}
}

// Me handles GET /users/me: the profile of the session's user with the session's grants.
func (h *Handler) Me(c *gin.Context) {
	sess, ok := middleware.SessionFromContext(c.Request.Context())
	if !ok {
		middleware.WriteError(c, apperror.ErrNotAuthenticated)
		return
	}
	user, err := h.users.GetByID(c.Request.Context(), sess.UserID)
	if err != nil {
		middleware.WriteError(c, apperror.Server(fmt.Errorf("get user %s: %w", sess.UserID, err)))
		return
	}
	if user == nil {
		middleware.WriteError(c, errUserGone)
		return
	}
	c.JSON(http.StatusOK, user.Profile(sess.Grants))
}
