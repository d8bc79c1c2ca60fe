// Package handler serves the readiness endpoint.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"session-auth/backend/internal/platform/logger"
)

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SessionPinger checks the session store.
type SessionPinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks that the policy engine evaluates (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the dependencies probed by the health check. Nil dependencies are skipped.
type Deps struct {
	DB       Pinger
	Sessions SessionPinger
	Policy   PolicyChecker
	// Timeout bounds the whole check; zero means 3s.
	Timeout time.Duration
}

// Handler serves GET /healthcheck.
type Handler struct {
	deps    Deps
	started time.Time
	nowF    func() time.Time
}

// NewHandler returns a health handler; uptime is measured from now.
func NewHandler(deps Deps) *Handler {
	if deps.Timeout <= 0 {
		deps.Timeout = 3 * time.Second
	}
	return &Handler{deps: deps, started: time.Now(), nowF: time.Now}
}

// HealthCheck returns {status, uptime}, or 503 {status:"unavailable"} when a dependency fails.
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deps.Timeout)
	defer cancel()

	if name, err := h.check(ctx); err != nil {
		logger.FromContext(ctx).Warn("health check failed", zap.String("dependency", name), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": h.nowF().Sub(h.started).Truncate(time.Second).String(),
	})
}

func (h *Handler) check(ctx context.Context) (string, error) {
	if h.deps.DB != nil {
		if err := h.deps.DB.PingContext(ctx); err != nil {
			return "postgres", err
		}
	}
	if h.deps.Sessions != nil {
		if err := h.deps.Sessions.Ping(ctx); err != nil {
			return "session_store", err
		}
	}
	if h.deps.Policy != nil {
		if err := h.deps.Policy.HealthCheck(ctx); err != nil {
			return "policy", err
		}
	}
	return "", nil
}
