package middleware

import (
	"context"

	sessiondomain "session-auth/backend/internal/session/domain"
)

type contextKey struct{ name string }

var (
	sessionKey    = contextKey{"session"}
	clientMetaKey = contextKey{"client_meta"}
)

// WithSession returns a context carrying the authenticated session.
func WithSession(ctx context.Context, s *sessiondomain.DeviceSession) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session set by Authenticate and true if set; otherwise nil, false.
func SessionFromContext(ctx context.Context) (*sessiondomain.DeviceSession, bool) {
	s, ok := ctx.Value(sessionKey).(*sessiondomain.DeviceSession)
	return s, ok && s != nil
}

// WithClientMeta returns a context carrying the caller's address and user agent.
func WithClientMeta(ctx context.Context, meta sessiondomain.ClientMeta) context.Context {
	return context.WithValue(ctx, clientMetaKey, meta)
}

// ClientMetaFromContext returns the client metadata and true if set.
func ClientMetaFromContext(ctx context.Context) (sessiondomain.ClientMeta, bool) {
	meta, ok := ctx.Value(clientMetaKey).(sessiondomain.ClientMeta)
	return meta, ok
}

// ClientIP returns the caller's address from ctx, or "" when unknown. It satisfies audit.IPExtractor.
func ClientIP(ctx context.Context) string {
	meta, _ := ClientMetaFromContext(ctx)
	return meta.IPAddress
}
