package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"session-auth/backend/internal/audit/domain"
	auditrepo "session-auth/backend/internal/audit/repository"
	"session-auth/backend/internal/platform/logger"
)

// defaultWriteTimeout bounds one audit insert.
const defaultWriteTimeout = 3 * time.Second

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event. Used by the auth flows.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, action, userID, sessionID, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         *zap.Logger
	nowF        func() time.Time
	timeout     time.Duration
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log *zap.Logger) *Logger {
	return &Logger{
		repo:        repo,
		ipExtractor: ipExtractor,
		log:         logger.OrNop(log),
		nowF:        func() time.Time { return time.Now().UTC() },
		timeout:     defaultWriteTimeout,
	}
}

// LogEvent writes one audit entry. Best-effort: errors are logged and not returned.
// The insert gets its own deadline and is not cut short by the caller's cancellation.
func (l *Logger) LogEvent(ctx context.Context, action, userID, sessionID, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := ""
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if ip == "" {
		ip = "unknown"
	}
	entry := &domain.AuthEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		Action:    action,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: l.nowF(),
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()
	if err := l.repo.Create(writeCtx, entry); err != nil {
		l.log.Warn("audit: failed to log event",
			zap.String("action", action),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
