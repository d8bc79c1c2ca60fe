// Package service implements the device session lifecycle: issue, refresh, revoke and authenticate.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"session-auth/backend/internal/platform/apperror"
	"session-auth/backend/internal/security"
	"session-auth/backend/internal/session/domain"
	"session-auth/backend/internal/session/repository"
)

// maxTokenAttempts bounds regeneration after a token hash collision.
const maxTokenAttempts = 3

var (
	// ErrUnknownSession is returned when a refresh or access token does not resolve to a live session.
	ErrUnknownSession = fmt.Errorf("%w: unknown or expired session", apperror.ErrNotAuthenticated)
	// ErrTokenCollision is returned when fresh tokens kept colliding with stored ones.
	ErrTokenCollision = errors.New("could not generate a unique session token")
)

// GrantResolver resolves the grants of a user.
type GrantResolver interface {
	Resolve(ctx context.Context, userID string) ([]string, error)
}

// AccessTokens issues and validates access tokens.
type AccessTokens interface {
	IssueAccess(sessionID, userID string) (token string, jti string, expiresAt time.Time, err error)
	ValidateAccess(token string) (*security.AccessClaims, error)
}

// Config bounds the lifetimes and I/O of a Manager.
type Config struct {
	// SessionTTL is how long a session and its refresh token live.
	SessionTTL time.Duration
	// StoreTimeout bounds each session store and grant lookup; zero disables.
	StoreTimeout time.Duration
}

// Manager is the only writer of device sessions.
type Manager struct {
	store      repository.Repository
	grants     GrantResolver
	tokens     AccessTokens
	cfg        Config
	nowF       func() time.Time
	newRefresh func() (string, error)
}

// NewManager returns a Manager persisting to store.
func NewManager(store repository.Repository, grants GrantResolver, tokens AccessTokens, cfg Config) *Manager {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 168 * time.Hour
	}
	return &Manager{
		store:      store,
		grants:     grants,
		tokens:     tokens,
		cfg:        cfg,
		nowF:       func() time.Time { return time.Now().UTC() },
		newRefresh: security.NewRefreshToken,
	}
}

func (m *Manager) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.cfg.StoreTimeout)
}

// Create starts a session for userID: resolves grants, issues a fresh token
// pair and persists it. The returned session carries the plaintext tokens.
func (m *Manager) Create(ctx context.Context, userID string, meta domain.ClientMeta) (*domain.DeviceSession, error) {
	grantCtx, cancel := m.bounded(ctx)
	grants, err := m.grants.Resolve(grantCtx, userID)
	cancel()
	if err != nil {
		return nil, apperror.Server(fmt.Errorf("resolve grants: %w", err))
	}

	now := m.nowF()
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		s := &domain.DeviceSession{
			ID:        uuid.NewString(),
			UserID:    userID,
			Grants:    grants,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			ExpiresAt: now.Add(m.cfg.SessionTTL),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := m.issueAccess(s); err != nil {
			return nil, err
		}
		refresh, err := m.newRefresh()
		if err != nil {
			return nil, apperror.Server(fmt.Errorf("generate refresh token: %w", err))
		}
		s.RefreshToken = refresh
		s.RefreshTokenHash = security.HashToken(refresh)

		storeCtx, cancel := m.bounded(ctx)
		err = m.store.Create(storeCtx, s)
		cancel()
		if errors.Is(err, repository.ErrDuplicateToken) {
			continue
		}
		if err != nil {
			return nil, apperror.Server(fmt.Errorf("create session: %w", err))
		}
		return s, nil
	}
	return nil, apperror.Server(ErrTokenCollision)
}

// issueAccess sets a new access token, its hash and expiry on s.
func (m *Manager) issueAccess(s *domain.DeviceSession) error {
	token, _, exp, err := m.tokens.IssueAccess(s.ID, s.UserID)
	if err != nil {
		return apperror.Server(fmt.Errorf("issue access token: %w", err))
	}
	s.AccessToken = token
	s.AccessTokenHash = security.HashToken(token)
	s.AccessExpiresAt = exp
	return nil
}

// GetByRefreshToken returns the live session for refreshToken, or nil.
func (m *Manager) GetByRefreshToken(ctx context.Context, refreshToken string) (*domain.DeviceSession, error) {
	if refreshToken == "" {
		return nil, nil
	}
	ctx, cancel := m.bounded(ctx)
	defer cancel()
	s, err := m.store.GetByRefreshHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		return nil, apperror.Server(fmt.Errorf("get session: %w", err))
	}
	if s == nil || s.Expired(m.nowF()) {
		return nil, nil
	}
	return s, nil
}

// Refresh reissues the access token of the session owning refreshToken. The
// refresh token is kept. With regradeGrants the grant snapshot is re-resolved,
// otherwise it is left as is. Unknown, expired or concurrently revoked
// sessions yield ErrUnknownSession.
func (m *Manager) Refresh(ctx context.Context, refreshToken string, regradeGrants bool) (*domain.DeviceSession, error) {
	s, err := m.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrUnknownSession
	}
	if regradeGrants {
		grantCtx, cancel := m.bounded(ctx)
		grants, err := m.grants.Resolve(grantCtx, s.UserID)
		cancel()
		if err != nil {
			return nil, apperror.Server(fmt.Errorf("resolve grants: %w", err))
		}
		s.Grants = grants
	}

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		if err := m.issueAccess(s); err != nil {
			return nil, err
		}
		s.UpdatedAt = m.nowF()

		storeCtx, cancel := m.bounded(ctx)
		err = m.store.Update(storeCtx, s)
		cancel()
		switch {
		case errors.Is(err, repository.ErrDuplicateToken):
			continue
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrUnknownSession
		case err != nil:
			return nil, apperror.Server(fmt.Errorf("update session: %w", err))
		}
		s.RefreshToken = refreshToken
		return s, nil
	}
	return nil, apperror.Server(ErrTokenCollision)
}

// Revoke deletes the session owning refreshToken and reports how many
// sessions were removed: 1 the first time, 0 afterwards.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) (int64, error) {
	if refreshToken == "" {
		return 0, nil
	}
	ctx, cancel := m.bounded(ctx)
	defer cancel()
	n, err := m.store.DeleteByRefreshHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		return 0, apperror.Server(fmt.Errorf("delete session: %w", err))
	}
	return n, nil
}

// Authenticate resolves a bearer access token into its live session. The
// token must be validly signed, unexpired and still the session's current
// access token.
func (m *Manager) Authenticate(ctx context.Context, accessToken string) (*domain.DeviceSession, error) {
	if accessToken == "" {
		return nil, ErrUnknownSession
	}
	claims, err := m.tokens.ValidateAccess(accessToken)
	if err != nil {
		return nil, ErrUnknownSession
	}
	ctx, cancel := m.bounded(ctx)
	defer cancel()
	s, err := m.store.GetByAccessHash(ctx, security.HashToken(accessToken))
	if err != nil {
		return nil, apperror.Server(fmt.Errorf("get session: %w", err))
	}
	now := m.nowF()
	if s == nil || s.ID != claims.SessionID || s.UserID != claims.Subject || s.Expired(now) || s.AccessExpired(now) {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// Ping checks the session store.
func (m *Manager) Ping(ctx context.Context) error {
	ctx, cancel := m.bounded(ctx)
	defer cancel()
	return m.store.Ping(ctx)
}
