package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"session-auth/backend/internal/platform/apperror"
	sessiondomain "session-auth/backend/internal/session/domain"
	"session-auth/backend/internal/telemetry"
	userdomain "session-auth/backend/internal/user/domain"
)

// Sentinel errors for the auth flows. Each wraps an apperror kind; handlers map the kind to a status.
var (
	ErrMissingCredentials  = fmt.Errorf("%w: email and password are required", apperror.ErrMissingParams)
	ErrMissingRefreshToken = fmt.Errorf("%w: refresh token is required", apperror.ErrMissingParams)
	ErrInvalidCredentials  = fmt.Errorf("%w: invalid credentials", apperror.ErrNotAuthenticated)
	ErrInvalidRefreshToken = fmt.Errorf("%w: invalid or expired refresh token", apperror.ErrNotAuthenticated)
	ErrUserBlocked         = fmt.Errorf("%w: user is blocked", apperror.ErrNotAuthorized)
)

// UserReader is the minimal user repository needed by the auth service.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
}

// SessionManager is the session lifecycle the auth service drives.
type SessionManager interface {
	Create(ctx context.Context, userID string, meta sessiondomain.ClientMeta) (*sessiondomain.DeviceSession, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (*sessiondomain.DeviceSession, error)
	Refresh(ctx context.Context, refreshToken string, regradeGrants bool) (*sessiondomain.DeviceSession, error)
	Revoke(ctx context.Context, refreshToken string) (int64, error)
}

// PasswordVerifier checks a plaintext password against a stored hash.
type PasswordVerifier interface {
	Verify(plaintext, storedHash string) (bool, error)
}

// defaultStoreTimeout bounds user-store calls when no timeout is configured.
const defaultStoreTimeout = 5 * time.Second

// AuthConfig holds the auth service policy.
type AuthConfig struct {
	// UpdateGrantsOnRefresh re-resolves the grant snapshot on every refresh.
	UpdateGrantsOnRefresh bool
	// StoreTimeout bounds each user-store call; zero means 5s.
	StoreTimeout time.Duration
}

// withStoreTimeout derives the context for one store call.
func withStoreTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, d)
}

// AuthService implements email/password login, refresh, and logout.
type AuthService struct {
	users     UserReader
	sessions  SessionManager
	verifier  PasswordVerifier
	cfg       AuthConfig
	obs       Observers
	dummyHash string
}

// NewAuthService returns an AuthService with the given dependencies. When
// verifier can also hash, a throwaway hash is prepared so that logins for
// unknown emails cost one comparison like any other login.
func NewAuthService(users UserReader, sessions SessionManager, verifier PasswordVerifier, cfg AuthConfig, obs Observers) *AuthService {
	s := &AuthService{
		users:    users,
		sessions: sessions,
		verifier: verifier,
		cfg:      cfg,
		obs:      obs,
	}
	if h, ok := verifier.(interface{ Hash(string) (string, error) }); ok {
		if hash, err := h.Hash(uuid.NewString()); err == nil {
			s.dummyHash = hash
		}
	}
	return s
}

func (s *AuthService) getByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.users.GetByEmail(ctx, email)
}

func (s *AuthService) getByID(ctx context.Context, id string) (*userdomain.User, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.users.GetByID(ctx, id)
}

// Login authenticates with email/password and starts a device session. The
// returned session carries the plaintext access and refresh tokens.
// Unknown users and wrong passwords are indistinguishable; a blocked user with
// the right password is ErrUserBlocked.
func (s *AuthService) Login(ctx context.Context, email, password string, meta sessiondomain.ClientMeta) (*sessiondomain.DeviceSession, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	user, err := s.getByEmail(ctx, email)
	if err != nil {
		return nil, apperror.Server(fmt.Errorf("get user: %w", err))
	}
	if user == nil {
		if s.dummyHash != "" {
			_, _ = s.verifier.Verify(password, s.dummyHash)
		}
		s.loginFailed(ctx, "", meta, "unknown_user")
		return nil, ErrInvalidCredentials
	}
	ok, err := s.verifier.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, apperror.Server(fmt.Errorf("verify password of user %s: %w", user.ID, err))
	}
	if !ok {
		s.loginFailed(ctx, user.ID, meta, "wrong_password")
		return nil, ErrInvalidCredentials
	}
	if user.Blocked {
		s.loginFailed(ctx, user.ID, meta, "blocked")
		return nil, ErrUserBlocked
	}
	sess, err := s.sessions.Create(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}
	s.obs.succeeded(ctx, telemetry.EventLogin, user.ID, sess.ID, map[string]string{"user_agent": meta.UserAgent})
	return sess, nil
}

func (s *AuthService) loginFailed(ctx context.Context, userID string, meta sessiondomain.ClientMeta, reason string) {
	s.obs.failed(ctx, telemetry.EventLogin)
	s.obs.audited(ctx, telemetry.EventLoginFailure, userID, "", map[string]string{"reason": reason, "user_agent": meta.UserAgent})
	s.obs.logger().Info("login rejected", zap.String("user_id", userID), zap.String("reason", reason))
}

// Refresh issues a new access token for the session owning refreshToken. The
// refresh token itself stays valid. Blocked users get ErrUserBlocked and the
// session is left untouched.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*sessiondomain.DeviceSession, error) {
	if refreshToken == "" {
		return nil, ErrMissingRefreshToken
	}
	sess, err := s.sessions.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		s.obs.failed(ctx, telemetry.EventRefresh)
		return nil, ErrInvalidRefreshToken
	}
	user, err := s.getByID(ctx, sess.UserID)
	if err != nil {
		return nil, apperror.Server(fmt.Errorf("get user: %w", err))
	}
	if user == nil {
		s.obs.failed(ctx, telemetry.EventRefresh)
		return nil, ErrInvalidRefreshToken
	}
	if user.Blocked {
		s.obs.failed(ctx, telemetry.EventRefresh)
		return nil, ErrUserBlocked
	}
	refreshed, err := s.sessions.Refresh(ctx, refreshToken, s.cfg.UpdateGrantsOnRefresh)
	if err != nil {
		return nil, err
	}
	s.obs.succeeded(ctx, telemetry.EventRefresh, refreshed.UserID, refreshed.ID, nil)
	return refreshed, nil
}

// Logout revokes the session owning refreshToken. Logging out twice with the
// same token yields ErrInvalidRefreshToken the second time.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return ErrMissingRefreshToken
	}
	sess, err := s.sessions.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	removed, err := s.sessions.Revoke(ctx, refreshToken)
	if err != nil {
		return err
	}
	if removed == 0 {
		s.obs.failed(ctx, telemetry.EventLogout)
		return ErrInvalidRefreshToken
	}
	var userID, sessionID string
	if sess != nil {
		userID, sessionID = sess.UserID, sess.ID
	}
	s.obs.succeeded(ctx, telemetry.EventLogout, userID, sessionID, nil)
	return nil
}
