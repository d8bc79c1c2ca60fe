package repository

import (
	"context"
	"sync"
	"time"

	"session-auth/backend/internal/session/domain"
)

// MemoryRepository is an in-memory Repository. Expired sessions are dropped on read.
// Used by tests and by SESSION_STORE=memory in development.
type MemoryRepository struct {
	mu        sync.RWMutex
	byID      map[string]*domain.DeviceSession
	byAccess  map[string]string
	byRefresh map[string]string
	nowF      func() time.Time
}

// NewMemoryRepository returns an empty in-memory session store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[string]*domain.DeviceSession),
		byAccess:  make(map[string]string),
		byRefresh: make(map[string]string),
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// Create stores s. Returns ErrDuplicateToken if either token hash is taken.
func (r *MemoryRepository) Create(ctx context.Context, s *domain.DeviceSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byRefresh[s.RefreshTokenHash]; ok {
		return ErrDuplicateToken
	}
	if _, ok := r.byAccess[s.AccessTokenHash]; ok {
		return ErrDuplicateToken
	}
	r.byID[s.ID] = s.Clone()
	r.byAccess[s.AccessTokenHash] = s.ID
	r.byRefresh[s.RefreshTokenHash] = s.ID
	return nil
}

// GetByAccessHash returns the session whose current access token hashes to accessHash.
func (r *MemoryRepository) GetByAccessHash(ctx context.Context, accessHash string) (*domain.DeviceSession, error) {
	return r.get(r.byAccess, accessHash), nil
}

// GetByRefreshHash returns the session whose refresh token hashes to refreshHash.
func (r *MemoryRepository) GetByRefreshHash(ctx context.Context, refreshHash string) (*domain.DeviceSession, error) {
	return r.get(r.byRefresh, refreshHash), nil
}

func (r *MemoryRepository) get(index map[string]string, hash string) *domain.DeviceSession {
	r.mu.RLock()
	id, ok := index[hash]
	var s *domain.DeviceSession
	if ok {
		s = r.byID[id]
	}
	r.mu.RUnlock()
	if s == nil {
		return nil
	}
	if s.Expired(r.nowF()) {
		r.mu.Lock()
		r.remove(s)
		r.mu.Unlock()
		return nil
	}
	return s.Clone()
}

// Update replaces the stored access token hash, grants and timestamps.
func (r *MemoryRepository) Update(ctx context.Context, s *domain.DeviceSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[s.ID]
	if !ok {
		return ErrNotFound
	}
	if s.AccessTokenHash != cur.AccessTokenHash {
		if _, taken := r.byAccess[s.AccessTokenHash]; taken {
			return ErrDuplicateToken
		}
		delete(r.byAccess, cur.AccessTokenHash)
		r.byAccess[s.AccessTokenHash] = s.ID
	}
	next := s.Clone()
	next.RefreshTokenHash = cur.RefreshTokenHash
	next.UserID = cur.UserID
	next.CreatedAt = cur.CreatedAt
	r.byID[s.ID] = next
	return nil
}

// DeleteByRefreshHash removes the matching session; 0 when none matched.
func (r *MemoryRepository) DeleteByRefreshHash(ctx context.Context, refreshHash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRefresh[refreshHash]
	if !ok {
		return 0, nil
	}
	r.remove(r.byID[id])
	return 1, nil
}

// remove deletes s and its indexes. Caller holds the write lock.
func (r *MemoryRepository) remove(s *domain.DeviceSession) {
	if s == nil {
		return
	}
	if cur, ok := r.byID[s.ID]; ok {
		delete(r.byAccess, cur.AccessTokenHash)
		delete(r.byRefresh, cur.RefreshTokenHash)
		delete(r.byID, s.ID)
	}
}

// Ping always succeeds.
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
