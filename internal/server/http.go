// Package server builds the HTTP router: middleware chain and route table.
package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	audithandler "session-auth/backend/internal/audit/handler"
	healthhandler "session-auth/backend/internal/health/handler"
	identityhandler "session-auth/backend/internal/identity/handler"
	"session-auth/backend/internal/platform/apperror"
	"session-auth/backend/internal/policy/engine"
	"session-auth/backend/internal/server/middleware"
	userhandler "session-auth/backend/internal/user/handler"
)

// Deps holds the services behind the HTTP API.
type Deps struct {
	// Auth serves login, refresh and logout.
	Auth identityhandler.AuthService
	// PasswordReset and PasswordChange serve the password endpoints.
	PasswordReset  identityhandler.PasswordResetter
	PasswordChange identityhandler.PasswordChanger
	// Sessions resolves access tokens for the session guard.
	Sessions middleware.SessionAuthenticator
	// Users loads the profile for /users/me.
	Users userhandler.UserReader
	// AuditEvents serves /users/me/events. If nil, the route is not mounted.
	AuditEvents audithandler.EventLister
	// Policy evaluates route grant requirements on guarded routes. If nil, guarded routes only require a session.
	Policy engine.Evaluator
	// Health lists the dependencies probed by /healthcheck.
	Health healthhandler.Deps
	// Logger is the request logger. If nil, requests are not logged.
	Logger *zap.Logger
	// APIRoot is the path prefix of every route; empty means "/".
	APIRoot string
	// SessionHeader is the header carrying the bearer token; empty means Authorization.
	SessionHeader string
	// ServiceName names the server in traces; empty disables tracing middleware.
	ServiceName string
}

// NewRouter returns the gin engine serving the API.
//
// Routes (relative to APIRoot):
//   - POST /auth/login, /auth/refresh, /auth/logout, /auth/password-recovery
//   - POST /auth/password-change (guarded)
//   - GET  /users/me (guarded)
//   - GET  /users/me/events (guarded, only with AuditEvents)
//   - GET  /healthcheck
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		middleware.WriteError(c, apperror.Server(fmt.Errorf("panic: %v", recovered)))
	}))
	if deps.ServiceName != "" {
		r.Use(otelgin.Middleware(deps.ServiceName))
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	root := deps.APIRoot
	if root == "" {
		root = "/"
	}
	api := r.Group(root)

	guarded := func(route string) []gin.HandlerFunc {
		chain := []gin.HandlerFunc{middleware.Authenticate(deps.Sessions, deps.SessionHeader)}
		if deps.Policy != nil {
			chain = append(chain, middleware.RequireGrants(deps.Policy, route))
		}
		return chain
	}

	auth := identityhandler.NewAuthHandler(deps.Auth, deps.PasswordReset, deps.PasswordChange)
	authGroup := api.Group("/auth")
	authGroup.POST("/login", auth.Login)
	authGroup.POST("/refresh", auth.Refresh)
	authGroup.POST("/logout", auth.Logout)
	authGroup.POST("/password-recovery", auth.PasswordRecovery)
	authGroup.POST("/password-change", append(guarded("POST /auth/password-change"), auth.PasswordChange)...)

	users := userhandler.NewHandler(deps.Users)
	api.GET("/users/me", append(guarded("GET /users/me"), users.Me)...)
	if deps.AuditEvents != nil {
		events := audithandler.NewHandler(deps.AuditEvents)
		api.GET("/users/me/events", append(guarded("GET /users/me/events"), events.ListMine)...)
	}

	api.GET("/healthcheck", healthhandler.NewHandler(deps.Health).HealthCheck)
	return r
}
