package repository

import (
	"context"
	"errors"

	"session-auth/backend/internal/session/domain"
)

var (
	// ErrDuplicateToken is returned by Create when the access or refresh token hash is already stored.
	ErrDuplicateToken = errors.New("session token already exists")
	// ErrNotFound is returned by Update when the session no longer exists.
	ErrNotFound = errors.New("session not found")
)

// Repository defines persistence for device sessions. Lookups return (nil, nil)
// when nothing matches. Implementations must keep refresh token hashes unique.
type Repository interface {
	Create(ctx context.Context, s *domain.DeviceSession) error
	GetByAccessHash(ctx context.Context, accessHash string) (*domain.DeviceSession, error)
	GetByRefreshHash(ctx context.Context, refreshHash string) (*domain.DeviceSession, error)
	// Update replaces the access token hash, grants and timestamps of an existing session.
	Update(ctx context.Context, s *domain.DeviceSession) error
	// DeleteByRefreshHash removes the matching session and reports how many were removed (0 or 1).
	DeleteByRefreshHash(ctx context.Context, refreshHash string) (int64, error)
	Ping(ctx context.Context) error
}
