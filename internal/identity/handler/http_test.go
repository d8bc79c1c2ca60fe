package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-auth/backend/internal/platform/apperror"
	"session-auth/backend/internal/server/middleware"
	sessiondomain "session-auth/backend/internal/session/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuth struct {
	mu        sync.Mutex
	err       error
	email     string
	password  string
	meta      sessiondomain.ClientMeta
	refreshed string
	loggedOut string
}

func (f *fakeAuth) Login(ctx context.Context, email, password string, meta sessiondomain.ClientMeta) (*sessiondomain.DeviceSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.email, f.password, f.meta = email, password, meta
	if f.err != nil {
		return nil, f.err
	}
	return &sessiondomain.DeviceSession{ID: "s1", UserID: "u1", AccessToken: "acc", RefreshToken: "ref"}, nil
}

func (f *fakeAuth) Refresh(ctx context.Context, refreshToken string) (*sessiondomain.DeviceSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = refreshToken
	if f.err != nil {
		return nil, f.err
	}
	return &sessiondomain.DeviceSession{ID: "s1", UserID: "u1", AccessToken: "acc2", RefreshToken: refreshToken}, nil
}

func (f *fakeAuth) Logout(ctx context.Context, refreshToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = refreshToken
	return f.err
}

type fakePasswords struct {
	mu      sync.Mutex
	err     error
	email   string
	host    string
	userID  string
	current string
	next    string
}

func (f *fakePasswords) Reset(ctx context.Context, email, host string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.email, f.host = email, host
	return f.err
}

func (f *fakePasswords) Change(ctx context.Context, userID, current, next string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userID, f.current, f.next = userID, current, next
	return f.err
}

// withSession stands in for the session guard.
func withSession(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := middleware.WithSession(c.Request.Context(), &sessiondomain.DeviceSession{ID: "s1", UserID: userID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func newRouter(auth *fakeAuth, pw *fakePasswords, guard ...gin.HandlerFunc) *gin.Engine {
	h := NewAuthHandler(auth, pw, pw)
	r := gin.New()
	r.Use(middleware.RequestLogger(nil))
	g := r.Group("/auth")
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)
	g.POST("/logout", h.Logout)
	g.POST("/password-recovery", h.PasswordRecovery)
	g.POST("/password-change", append(guard, h.PasswordChange)...)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLogin_ReturnsTokenPair(t *testing.T) {
	auth := &fakeAuth{}
	w := post(newRouter(auth, &fakePasswords{}), "/auth/login", `{"email":"ada@example.com","password":"pw"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"access_token":"acc","refresh_token":"ref"}`, w.Body.String())
	assert.Equal(t, "ada@example.com", auth.email)
	assert.Equal(t, "pw", auth.password)
	assert.Equal(t, "handler-test", auth.meta.UserAgent)
}

func TestRefresh_ReturnsAccessTokenOnly(t *testing.T) {
	auth := &fakeAuth{}
	w := post(newRouter(auth, &fakePasswords{}), "/auth/refresh", `{"refresh_token":"ref"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"access_token":"acc2"}`, w.Body.String())
	assert.Equal(t, "ref", auth.refreshed)
}

func TestLogout(t *testing.T) {
	auth := &fakeAuth{}
	w := post(newRouter(auth, &fakePasswords{}), "/auth/logout", `{"refresh_token":"ref"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ref", auth.loggedOut)
}

func TestMalformedBodyIsMissingParams(t *testing.T) {
	r := newRouter(&fakeAuth{}, &fakePasswords{}, withSession("u1"))
	for _, path := range []string{"/auth/login", "/auth/refresh", "/auth/logout", "/auth/password-recovery", "/auth/password-change"} {
		w := post(r, path, `{"email":`)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.JSONEq(t, `{"error":"missing params"}`, w.Body.String(), path)
	}
}

func TestErrorKindsMapToStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"missing", apperror.ErrMissingParams, http.StatusBadRequest, `{"error":"missing params"}`},
		{"bad", apperror.ErrBadParams, http.StatusBadRequest, `{"error":"bad params"}`},
		{"unauthenticated", apperror.ErrNotAuthenticated, http.StatusUnauthorized, `{"error":"not authenticated"}`},
		{"blocked", apperror.ErrNotAuthorized, http.StatusForbidden, `{"error":"not authorized"}`},
		{"server", apperror.Server(errors.New("pq: relation does not exist")), http.StatusInternalServerError, `{"error":"server error"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(newRouter(&fakeAuth{err: tt.err}, &fakePasswords{}), "/auth/login", `{"email":"a","password":"b"}`)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestPasswordRecovery_UsesRequestHost(t *testing.T) {
	pw := &fakePasswords{}
	req := httptest.NewRequest(http.MethodPost, "/auth/password-recovery", strings.NewReader(`{"email":"ada@example.com"}`))
	req.Host = "auth.example.com"
	w := httptest.NewRecorder()
	newRouter(&fakeAuth{}, pw).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ada@example.com", pw.email)
	assert.Equal(t, "auth.example.com", pw.host)
}

func TestPasswordChange(t *testing.T) {
	pw := &fakePasswords{}
	w := post(newRouter(&fakeAuth{}, pw, withSession("u7")), "/auth/password-change",
		`{"current_password":"Old.Pass1","new_password":"New.Pass2"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u7", pw.userID)
	assert.Equal(t, "Old.Pass1", pw.current)
	assert.Equal(t, "New.Pass2", pw.next)
}

func TestPasswordChange_WithoutSession(t *testing.T) {
	pw := &fakePasswords{}
	w := post(newRouter(&fakeAuth{}, pw), "/auth/password-change", `{"current_password":"a","new_password":"b"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, pw.userID)
}
