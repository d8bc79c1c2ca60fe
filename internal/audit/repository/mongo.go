package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"session-auth/backend/internal/audit/domain"
)

// MongoRepository appends audit events to a collection.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository returns an audit repository over db.collection.
func NewMongoRepository(db *mongo.Database, collection string) *MongoRepository {
	return &MongoRepository{coll: db.Collection(collection)}
}

// EnsureIndexes creates the per-user, newest-first lookup index.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
		Options: options.Index().SetName("user_created"),
	})
	return err
}

// Create inserts e.
func (r *MongoRepository) Create(ctx context.Context, e *domain.AuthEvent) error {
	_, err := r.coll.InsertOne(ctx, e)
	return err
}

// ListByUser returns up to limit events of userID, newest first.
func (r *MongoRepository) ListByUser(ctx context.Context, userID string, limit int64) ([]*domain.AuthEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domain.AuthEvent
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
