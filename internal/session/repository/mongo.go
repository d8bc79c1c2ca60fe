package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"session-auth/backend/internal/session/domain"
)

// MongoRepository stores device sessions as documents. Token hash uniqueness
// and expiry are enforced by indexes created in EnsureIndexes.
type MongoRepository struct {
	coll *mongo.Collection
	nowF func() time.Time
}

// NewMongoRepository returns a session repository over db.collection.
func NewMongoRepository(db *mongo.Database, collection string) *MongoRepository {
	return &MongoRepository{
		coll: db.Collection(collection),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the unique token hash indexes and the TTL index on expiresAt.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "refreshTokenHash", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("refresh_token_hash_unique"),
		},
		{
			Keys:    bson.D{{Key: "accessTokenHash", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("access_token_hash_unique"),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetName("user_id"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_at_ttl"),
		},
	})
	return err
}

// Create inserts s. Returns ErrDuplicateToken on a token hash collision.
func (r *MongoRepository) Create(ctx context.Context, s *domain.DeviceSession) error {
	_, err := r.coll.InsertOne(ctx, s)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateToken
	}
	return err
}

// GetByAccessHash returns the live session for accessHash, or nil.
func (r *MongoRepository) GetByAccessHash(ctx context.Context, accessHash string) (*domain.DeviceSession, error) {
	return r.findOne(ctx, bson.M{"accessTokenHash": accessHash})
}

// GetByRefreshHash returns the live session for refreshHash, or nil.
func (r *MongoRepository) GetByRefreshHash(ctx context.Context, refreshHash string) (*domain.DeviceSession, error) {
	return r.findOne(ctx, bson.M{"refreshTokenHash": refreshHash})
}

// findOne filters out expired documents the TTL monitor has not removed yet.
func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*domain.DeviceSession, error) {
	filter["expiresAt"] = bson.M{"$gt": r.nowF()}
	var s domain.DeviceSession
	err := r.coll.FindOne(ctx, filter).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Update sets the access token hash, grants and timestamps of s.ID.
func (r *MongoRepository) Update(ctx context.Context, s *domain.DeviceSession) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": s.ID}, bson.M{"$set": bson.M{
		"accessTokenHash": s.AccessTokenHash,
		"grants":          s.Grants,
		"accessExpiresAt": s.AccessExpiresAt,
		"updatedAt":       s.UpdatedAt,
	}})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateToken
	}
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByRefreshHash removes the session for refreshHash and reports the count.
func (r *MongoRepository) DeleteByRefreshHash(ctx context.Context, refreshHash string) (int64, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"refreshTokenHash": refreshHash})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Ping checks the primary is reachable.
func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}
