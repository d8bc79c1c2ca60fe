package repository

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"session-auth/backend/internal/user/domain"
)

// MemoryRepository is an in-memory Repository and UnitOfWork used by tests and local tooling.
// Do serializes units of work and restores the previous user set when fn fails.
type MemoryRepository struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	users  map[string]domain.User
	grants map[string][]string
	nowF   func() time.Time
}

// NewMemoryRepository returns an empty in-memory user store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:  make(map[string]domain.User),
		grants: make(map[string][]string),
		nowF:   func() time.Time { return time.Now().UTC() },
	}
}

// Put stores u and replaces its grants.
func (r *MemoryRepository) Put(u domain.User, grants ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
	r.grants[u.ID] = slices.Clone(grants)
}

// SetGrants replaces the grants of userID.
func (r *MemoryRepository) SetGrants(userID string, grants ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[userID] = slices.Clone(grants)
}

// GetByID returns the user for id, or nil if not found or deleted.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok || u.Deleted {
		return nil, nil
	}
	return &u, nil
}

// GetByEmail returns the user with the given email (case-insensitive), or nil.
func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if !u.Deleted && strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, nil
}

// LockByEmail is GetByEmail; Do already serializes units of work.
func (r *MemoryRepository) LockByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.GetByEmail(ctx, email)
}

// UpdatePasswordHash replaces the stored hash. Returns ErrNotFound when no live user matches.
func (r *MemoryRepository) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || u.Deleted {
		return ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = r.nowF()
	r.users[userID] = u
	return nil
}

// ListGrantCodes returns the grants of userID, sorted. Empty when none.
func (r *MemoryRepository) ListGrantCodes(ctx context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := slices.Clone(r.grants[userID])
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return out, nil
}

// Do runs fn against r; when fn fails the users are restored to their state before Do.
func (r *MemoryRepository) Do(ctx context.Context, fn func(ctx context.Context, users Repository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.RLock()
	snapshot := make(map[string]domain.User, len(r.users))
	for k, v := range r.users {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	if err := fn(ctx, r); err != nil {
		r.mu.Lock()
		r.users = snapshot
		r.mu.Unlock()
		return err
	}
	if err := ctx.Err(); err != nil {
		r.mu.Lock()
		r.users = snapshot
		r.mu.Unlock()
		return err
	}
	return nil
}
