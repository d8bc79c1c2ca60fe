package repository

import (
	"context"

	"session-auth/backend/internal/audit/domain"
)

// Repository defines persistence for audit events.
type Repository interface {
	Create(ctx context.Context, e *domain.AuthEvent) error
	ListByUser(ctx context.Context, userID string, limit int64) ([]*domain.AuthEvent, error)
}
