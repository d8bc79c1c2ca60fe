package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"session-auth/backend/internal/platform/apperror"
	sessiondomain "session-auth/backend/internal/session/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*sessiondomain.DeviceSession
	err      error
	calls    int
}

func (f *fakeSessions) Authenticate(ctx context.Context, accessToken string) (*sessiondomain.DeviceSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[accessToken]
	if !ok {
		return nil, errors.Join(apperror.ErrNotAuthenticated, errors.New("unknown token"))
	}
	return s, nil
}

type fakeEvaluator struct {
	allowed bool
	err     error
	route   string
	grants  []string
}

func (f *fakeEvaluator) Authorize(ctx context.Context, route string, grants []string) (bool, error) {
	f.route, f.grants = route, grants
	return f.allowed, f.err
}

func newGuardedRouter(sessions SessionAuthenticator, header string, extra ...gin.HandlerFunc) (*gin.Engine, *bool) {
	reached := false
	r := gin.New()
	chain := append([]gin.HandlerFunc{Authenticate(sessions, header)}, extra...)
	chain = append(chain, func(c *gin.Context) {
		reached = true
		sess, ok := SessionFromContext(c.Request.Context())
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": sess.UserID})
	})
	r.GET("/users/me", chain...)
	return r, &reached
}

func TestAuthenticate_RejectsBeforeHandler(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*sessiondomain.DeviceSession{
		"good": {ID: "s1", UserID: "u1"},
	}}
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic good"},
		{"scheme only", "Bearer "},
		{"no separator", "Bearergood"},
		{"unknown token", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, reached := newGuardedRouter(sessions, "")
			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"not authenticated"}`, w.Body.String())
			assert.False(t, *reached, "handler must not run")
		})
	}
}

func TestAuthenticate_Success(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*sessiondomain.DeviceSession{
		"good": {ID: "s1", UserID: "u1"},
	}}
	for _, header := range []string{"Bearer good", "bearer good", "BEARER   good  "} {
		r, reached := newGuardedRouter(sessions, "")
		req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, "header %q", header)
		assert.JSONEq(t, `{"user_id":"u1"}`, w.Body.String())
		assert.True(t, *reached)
	}
}

func TestAuthenticate_CustomHeader(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*sessiondomain.DeviceSession{
		"good": {ID: "s1", UserID: "u1"},
	}}
	r, _ := newGuardedRouter(sessions, "X-Session")

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("X-Session", "Bearer good")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticate_StoreErrorIs500(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sessions := &fakeSessions{err: apperror.Server(errors.New("mongo: no reachable servers"))}

	reached := false
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/users/me", Authenticate(sessions, ""), func(c *gin.Context) { reached = true })

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"server error"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "mongo")
	assert.False(t, reached)
	require.Equal(t, 1, logs.FilterMessage("request failed").Len())
}

func TestRequireGrants(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*sessiondomain.DeviceSession{
		"good": {ID: "s1", UserID: "u1", Grants: []string{"users.read"}},
	}}
	tests := []struct {
		name     string
		eval     *fakeEvaluator
		wantCode int
	}{
		{"allowed", &fakeEvaluator{allowed: true}, http.StatusOK},
		{"denied", &fakeEvaluator{allowed: false}, http.StatusForbidden},
		{"policy error", &fakeEvaluator{err: errors.New("rego: undefined")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, reached := newGuardedRouter(sessions, "", RequireGrants(tt.eval, "GET /users/me"))
			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			req.Header.Set("Authorization", "Bearer good")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantCode == http.StatusOK, *reached)
			assert.Equal(t, "GET /users/me", tt.eval.route)
			assert.Equal(t, []string{"users.read"}, tt.eval.grants)
		})
	}
}

func TestRequireGrants_WithoutSession(t *testing.T) {
	r := gin.New()
	r.GET("/x", RequireGrants(&fakeEvaluator{allowed: true}, "GET /x"), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExtractBearer(t *testing.T) {
	tests := map[string]string{
		"":                "",
		"Bearer":          "",
		"Bearer abc":      "abc",
		"bEaReR abc":      "abc",
		"  Bearer  abc  ": "abc",
		"Token abc":       "",
	}
	for in, want := range tests {
		if got := extractBearer(in); got != want {
			t.Errorf("extractBearer(%q) = %q, want %q", in, got, want)
		}
	}
}
