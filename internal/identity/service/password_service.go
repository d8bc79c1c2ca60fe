package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"session-auth/backend/internal/db"
	"session-auth/backend/internal/mail"
	"session-auth/backend/internal/platform/apperror"
	"session-auth/backend/internal/security"
	"session-auth/backend/internal/telemetry"
	userdomain "session-auth/backend/internal/user/domain"
	userrepo "session-auth/backend/internal/user/repository"
)

// generatedPasswordLength is the length of passwords issued by a reset.
const generatedPasswordLength = 12

var (
	ErrMissingEmail      = fmt.Errorf("%w: email is required", apperror.ErrMissingParams)
	ErrMissingPasswords  = fmt.Errorf("%w: current and new password are required", apperror.ErrMissingParams)
	ErrUnknownUser       = fmt.Errorf("%w: unknown user", apperror.ErrNotAuthenticated)
	ErrWrongPassword     = fmt.Errorf("%w: current password does not match", apperror.ErrNotAuthorized)
	ErrPasswordUnchanged = fmt.Errorf("%w: new password equals the current one", apperror.ErrBadParams)
	ErrPasswordPolicy    = fmt.Errorf("%w: new password does not meet the policy", apperror.ErrBadParams)
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(plaintext, storedHash string) (bool, error)
}

// ResetConfig bounds the external calls of a reset.
type ResetConfig struct {
	// MailTimeout bounds the send; zero means 15s.
	MailTimeout time.Duration
	// StoreTimeout bounds the row lock and the password update; zero means 5s.
	StoreTimeout time.Duration
}

// PasswordResetService resets a forgotten password: a generated password is
// stored and mailed to the user inside one transaction.
type PasswordResetService struct {
	uow      userrepo.UnitOfWork
	hasher   PasswordHasher
	sender   mail.Sender
	cfg      ResetConfig
	obs      Observers
	generate func() (string, error)
}

// NewPasswordResetService returns a reset workflow.
func NewPasswordResetService(uow userrepo.UnitOfWork, hasher PasswordHasher, sender mail.Sender, cfg ResetConfig, obs Observers) *PasswordResetService {
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = 15 * time.Second
	}
	return &PasswordResetService{
		uow:      uow,
		hasher:   hasher,
		sender:   sender,
		cfg:      cfg,
		obs:      obs,
		generate: func() (string, error) { return security.GeneratePassword(generatedPasswordLength) },
	}
}

// Reset replaces the password of the user owning email and mails the new one,
// mentioning host as the origin of the request. The user row is locked for the
// duration; the new hash is committed only when the mail was accepted. Unknown
// users are ErrUnknownUser and blocked users ErrUserBlocked, both without any write.
func (s *PasswordResetService) Reset(ctx context.Context, email, host string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrMissingEmail
	}
	var userID string
	err := s.uow.Do(ctx, func(ctx context.Context, users userrepo.Repository) error {
		lockCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
		user, err := users.LockByEmail(lockCtx, email)
		cancel()
		if err != nil {
			return apperror.Server(fmt.Errorf("lock user: %w", err))
		}
		if user == nil {
			return ErrUnknownUser
		}
		if user.Blocked {
			return ErrUserBlocked
		}
		userID = user.ID

		password, err := s.generate()
		if err != nil {
			return apperror.Server(fmt.Errorf("generate password: %w", err))
		}
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return apperror.Server(fmt.Errorf("hash password: %w", err))
		}
		updateCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
		err = users.UpdatePasswordHash(updateCtx, user.ID, hash)
		cancel()
		if err != nil {
			return apperror.Server(fmt.Errorf("update password: %w", err))
		}
		return s.send(ctx, user, password, host)
	})
	if err != nil {
		if errors.Is(err, db.ErrRollback) {
			s.obs.logger().Error("password reset: rollback failed", zap.String("user_id", userID), zap.Error(err))
		}
		s.obs.failed(ctx, telemetry.EventPasswordReset)
		return apperror.Server(err)
	}
	s.obs.succeeded(ctx, telemetry.EventPasswordReset, userID, "", map[string]string{"host": host})
	return nil
}

func (s *PasswordResetService) send(ctx context.Context, user *userdomain.User, password, host string) error {
	msg, err := mail.RecoveryMessage(mail.RecoveryData{
		Name:     user.Name,
		Email:    user.Email,
		Password: password,
		Host:     host,
	})
	if err != nil {
		return apperror.Server(fmt.Errorf("render recovery mail: %w", err))
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.MailTimeout)
	defer cancel()
	if err := s.sender.Send(sendCtx, msg); err != nil {
		return apperror.Server(fmt.Errorf("send recovery mail: %w", err))
	}
	return nil
}

// PasswordStore is the user persistence the change workflow needs.
type PasswordStore interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// PasswordChangeService lets an authenticated user replace their password.
type PasswordChangeService struct {
	users        PasswordStore
	hasher       PasswordHasher
	storeTimeout time.Duration
	obs          Observers
}

// NewPasswordChangeService returns a change workflow. storeTimeout bounds each
// user-store call; zero means 5s.
func NewPasswordChangeService(users PasswordStore, hasher PasswordHasher, storeTimeout time.Duration, obs Observers) *PasswordChangeService {
	return &PasswordChangeService{users: users, hasher: hasher, storeTimeout: storeTimeout, obs: obs}
}

// Change replaces the password of userID after checking current. Existing
// sessions stay valid.
func (s *PasswordChangeService) Change(ctx context.Context, userID, current, next string) error {
	if current == "" || next == "" {
		return ErrMissingPasswords
	}
	if userID == "" {
		return ErrUnknownUser
	}
	getCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	user, err := s.users.GetByID(getCtx, userID)
	cancel()
	if err != nil {
		return apperror.Server(fmt.Errorf("get user: %w", err))
	}
	if user == nil {
		return ErrUnknownUser
	}
	if user.Blocked {
		s.obs.failed(ctx, telemetry.EventPasswordChange)
		return ErrUserBlocked
	}
	ok, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return apperror.Server(fmt.Errorf("verify password of user %s: %w", user.ID, err))
	}
	if !ok {
		s.obs.failed(ctx, telemetry.EventPasswordChange)
		return ErrWrongPassword
	}
	if next == current {
		return ErrPasswordUnchanged
	}
	if err := security.ValidatePassword(next); err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordPolicy, err)
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return apperror.Server(fmt.Errorf("hash password: %w", err))
	}
	updateCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	err = s.users.UpdatePasswordHash(updateCtx, user.ID, hash)
	cancel()
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return ErrUnknownUser
		}
		return apperror.Server(fmt.Errorf("update password: %w", err))
	}
	s.obs.succeeded(ctx, telemetry.EventPasswordChange, user.ID, "", nil)
	return nil
}
