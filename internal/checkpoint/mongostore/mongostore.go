// Package mongostore is a durable checkpoint.Store backed by MongoDB,
// grounded on features/session/mongo/store.go's thin adapter pattern: a
// small wrapper translating the checkpoint.Store contract onto
// collection-level Find/ReplaceOne/DeleteOne calls.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/a2arun/agentnode/internal/a2atypes"
	"github.com/a2arun/agentnode/internal/checkpoint"
)

// doc is the on-disk document shape. ExpiresAt is indexed with a MongoDB
// TTL index (expireAfterSeconds: 0) so expiry is enforced server-side,
// matching the Redis backend's TTL semantics without application polling.
type doc struct {
	Key       string             `bson:"_id"`
	Checkpoint a2atypes.Checkpoint `bson:"checkpoint"`
	ExpiresAt *time.Time          `bson:"expiresAt,omitempty"`
}

// Store implements checkpoint.Store against a MongoDB collection.
type Store struct {
	coll *mongo.Collection
}

// New constructs a Store over the given collection. It does not create
// the TTL index on "expiresAt"; EnsureIndexes does, and cmd/agentnode
// calls it at startup.
func New(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

// EnsureIndexes creates the TTL index used for expiry. Safe to call
// repeatedly; idempotent per the Mongo driver's CreateOne semantics.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("mongostore: ensure ttl index: %w", err)
	}
	return nil
}

// Put implements checkpoint.Store.
func (s *Store) Put(ctx context.Context, key string, cp a2atypes.Checkpoint, ttl time.Duration) error {
	d := doc{Key: key, Checkpoint: cp}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		d.ExpiresAt = &exp
	}
	_, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: key}}, d, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: replace %s: %w", key, err)
	}
	return nil
}

// Get implements checkpoint.Store.
func (s *Store) Get(ctx context.Context, key string) (a2atypes.Checkpoint, bool, error) {
	var d doc
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return a2atypes.Checkpoint{}, false, nil
	}
	if err != nil {
		return a2atypes.Checkpoint{}, false, fmt.Errorf("mongostore: find %s: %w", key, err)
	}
	if d.ExpiresAt != nil && time.Now().After(*d.ExpiresAt) {
		return a2atypes.Checkpoint{}, false, nil
	}
	return d.Checkpoint, true, nil
}

// Delete implements checkpoint.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: key}})
	if err != nil {
		return fmt.Errorf("mongostore: delete %s: %w", key, err)
	}
	return nil
}

// List implements checkpoint.Store.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$regex", Value: "^" + prefix}}}}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: find prefix %s: %w", prefix, err)
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var d doc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("mongostore: decode: %w", err)
		}
		out = append(out, d.Key)
	}
	return out, cur.Err()
}

var _ checkpoint.Store = (*Store)(nil)
