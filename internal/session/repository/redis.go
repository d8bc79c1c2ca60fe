package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"session-auth/backend/internal/session/domain"
)

const (
	sessionKeyPrefix = "session:"
	accessKeyPrefix  = "session:access:"
	refreshKeyPrefix = "session:refresh:"
)

// RedisRepository stores each session as JSON under session:<id> with two index
// keys (access and refresh hash -> id). Every key expires with the session.
// Refresh uniqueness relies on SETNX; single-use deletion relies on GETDEL.
type RedisRepository struct {
	client redis.Cmdable
	nowF   func() time.Time
}

// NewRedisRepository returns a session repository over client.
func NewRedisRepository(client redis.Cmdable) *RedisRepository {
	return &RedisRepository{
		client: client,
		nowF:   func() time.Time { return time.Now().UTC() },
	}
}

// Create stores s. Returns ErrDuplicateToken when either token hash is taken.
// A failed write removes the index keys already set.
func (r *RedisRepository) Create(ctx context.Context, s *domain.DeviceSession) error {
	ttl := s.ExpiresAt.Sub(r.nowF())
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", s.ID)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	refreshKey := refreshKeyPrefix + s.RefreshTokenHash
	accessKey := accessKeyPrefix + s.AccessTokenHash
	ok, err := r.client.SetNX(ctx, refreshKey, s.ID, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicateToken
	}
	ok, err = r.client.SetNX(ctx, accessKey, s.ID, ttl).Result()
	if err == nil && !ok {
		err = ErrDuplicateToken
	}
	if err != nil {
		return r.undo(ctx, err, refreshKey)
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+s.ID, data, ttl).Err(); err != nil {
		return r.undo(ctx, err, refreshKey, accessKey)
	}
	return nil
}

// undo deletes keys after a failed Create and returns cause, joined with the
// delete error if there was one.
func (r *RedisRepository) undo(ctx context.Context, cause error, keys ...string) error {
	if err := r.client.Del(context.WithoutCancel(ctx), keys...).Err(); err != nil {
		return errors.Join(cause, fmt.Errorf("remove index keys: %w", err))
	}
	return cause
}

// GetByAccessHash returns the session for accessHash, or nil.
func (r *RedisRepository) GetByAccessHash(ctx context.Context, accessHash string) (*domain.DeviceSession, error) {
	s, err := r.lookup(ctx, accessKeyPrefix+accessHash)
	if err != nil || s == nil {
		return nil, err
	}
	if s.AccessTokenHash != accessHash {
		// stale index left behind by a rotation
		return nil, nil
	}
	return s, nil
}

// GetByRefreshHash returns the session for refreshHash, or nil.
func (r *RedisRepository) GetByRefreshHash(ctx context.Context, refreshHash string) (*domain.DeviceSession, error) {
	s, err := r.lookup(ctx, refreshKeyPrefix+refreshHash)
	if err != nil || s == nil {
		return nil, err
	}
	if s.RefreshTokenHash != refreshHash {
		return nil, nil
	}
	return s, nil
}

func (r *RedisRepository) lookup(ctx context.Context, indexKey string) (*domain.DeviceSession, error) {
	id, err := r.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.load(ctx, id)
}

func (r *RedisRepository) load(ctx context.Context, id string) (*domain.DeviceSession, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s domain.DeviceSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Expired(r.nowF()) {
		return nil, nil
	}
	return &s, nil
}

// Update replaces the access token hash, grants and timestamps of s.ID.
func (r *RedisRepository) Update(ctx context.Context, s *domain.DeviceSession) error {
	cur, err := r.load(ctx, s.ID)
	if err != nil {
		return err
	}
	if cur == nil {
		return ErrNotFound
	}
	ttl := cur.ExpiresAt.Sub(r.nowF())
	if ttl <= 0 {
		return ErrNotFound
	}
	if s.AccessTokenHash != cur.AccessTokenHash {
		ok, err := r.client.SetNX(ctx, accessKeyPrefix+s.AccessTokenHash, s.ID, ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return ErrDuplicateToken
		}
		r.client.Del(ctx, accessKeyPrefix+cur.AccessTokenHash)
	}
	next := cur.Clone()
	next.AccessTokenHash = s.AccessTokenHash
	next.Grants = s.Grants
	next.AccessExpiresAt = s.AccessExpiresAt
	next.UpdatedAt = s.UpdatedAt
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}
	// SET XX: a concurrent delete wins and the update reports not found.
	ok, err := r.client.SetXX(ctx, sessionKeyPrefix+s.ID, data, redis.KeepTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		r.client.Del(ctx, accessKeyPrefix+s.AccessTokenHash)
		return ErrNotFound
	}
	return nil
}

// DeleteByRefreshHash removes the session for refreshHash. GETDEL on the
// refresh index makes exactly one concurrent caller observe a count of 1.
func (r *RedisRepository) DeleteByRefreshHash(ctx context.Context, refreshHash string) (int64, error) {
	id, err := r.client.GetDel(ctx, refreshKeyPrefix+refreshHash).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	keys := []string{sessionKeyPrefix + id}
	if s, err := r.load(ctx, id); err == nil && s != nil {
		keys = append(keys, accessKeyPrefix+s.AccessTokenHash)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return 1, err
	}
	return 1, nil
}

// Ping checks the server is reachable.
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
