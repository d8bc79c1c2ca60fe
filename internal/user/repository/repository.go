package repository

import (
	"context"

	"session-auth/backend/internal/user/domain"
)

// Repository defines persistence for users and their grants. Lookups return
// (nil, nil) when the user does not exist or is deleted.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// LockByEmail is GetByEmail that also locks the row until the surrounding transaction ends.
	LockByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	ListGrantCodes(ctx context.Context, userID string) ([]string, error)
}

// UnitOfWork runs fn against a Repository bound to a single transaction.
// fn returning an error rolls the transaction back; nil commits it.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, users Repository) error) error
}
