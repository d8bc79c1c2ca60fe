// Package handler serves the audit trail of the signed-in user.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"session-auth/backend/internal/audit/domain"
	"session-auth/backend/internal/platform/apperror"
	"session-auth/backend/internal/server/middleware"
)

const (
	defaultLimit = 50
	maxLimit     = 200
	listTimeout  = 5 * time.Second
)

var errBadLimit = fmt.Errorf("%w: limit must be an integer between 1 and %d", apperror.ErrBadParams, maxLimit)

// EventLister reads audit events of one user, newest first.
type EventLister interface {
	ListByUser(ctx context.Context, userID string, limit int64) ([]*domain.AuthEvent, error)
}

// Handler serves /users/me/events.
type Handler struct {
	events EventLister
}

// NewHandler returns the audit handler.
func NewHandler(events EventLister) *Handler {
	return &Handler{events: events}
}

// ListMine handles GET /users/me/events?limit=N: the latest auth events of the session's user.
func (h *Handler) ListMine(c *gin.Context) {
	sess, ok := middleware.SessionFromContext(c.Request.Context())
	if !ok {
		middleware.WriteError(c, apperror.ErrNotAuthenticated)
		return
	}
	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLimit {
			middleware.WriteError(c, errBadLimit)
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), listTimeout)
	defer cancel()
	events, err := h.events.ListByUser(ctx, sess.UserID, int64(limit))
	if err != nil {
		middleware.WriteError(c, apperror.Server(fmt.Errorf("list audit events of %s: %w", sess.UserID, err)))
		return
	}
	if events == nil {
		events = []*domain.AuthEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
