// Package middleware holds the gin middleware of the HTTP API: request logging,
// the session guard, route grant policy and the shared error responder.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"session-auth/backend/internal/platform/apperror"
	"session-auth/backend/internal/platform/logger"
	"session-auth/backend/internal/policy/engine"
	sessiondomain "session-auth/backend/internal/session/domain"
)

const bearerPrefix = "bearer "

var (
	errMissingToken = fmt.Errorf("%w: missing or invalid authorization", apperror.ErrNotAuthenticated)
	errNoGrant      = fmt.Errorf("%w: route requires a grant the session lacks", apperror.ErrNotAuthorized)
)

// SessionAuthenticator resolves an access token to its live session.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*sessiondomain.DeviceSession, error)
}

// Authenticate returns the session guard. It reads "Bearer <token>" from header,
// resolves the session and stores it in the request context. Any failure aborts
// the chain; the guarded handler never runs.
func Authenticate(sessions SessionAuthenticator, header string) gin.HandlerFunc {
	if header == "" {
		header = "Authorization"
	}
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader(header))
		if token == "" {
			WriteError(c, errMissingToken)
			return
		}
		sess, err := sessions.Authenticate(c.Request.Context(), token)
		if err != nil {
			WriteError(c, err)
			return
		}
		ctx := WithSession(c.Request.Context(), sess)
		ctx = logger.ToContext(ctx, logger.FromContext(ctx).With(
			zap.String("user_id", sess.UserID),
			zap.String("session_id", sess.ID),
		))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// extractBearer returns the token of a "Bearer <token>" value, or "" if missing or malformed.
// The scheme is case-insensitive.
func extractBearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

// RequireGrants evaluates the route grant policy for the session set by
// Authenticate. Deny is 403; a policy failure is 500.
func RequireGrants(evaluator engine.Evaluator, route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := SessionFromContext(c.Request.Context())
		if !ok {
			WriteError(c, errMissingToken)
			return
		}
		allowed, err := evaluator.Authorize(c.Request.Context(), route, sess.Grants)
		if err != nil {
			WriteError(c, apperror.Server(err))
			return
		}
		if !allowed {
			WriteError(c, errNoGrant)
			return
		}
		c.Next()
	}
}

// WriteError aborts the request with the status of err's kind and a generic
// body. Server errors are logged with their cause.
func WriteError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperror.PublicMessage(err)})
}
