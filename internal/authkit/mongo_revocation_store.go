package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoRevokedCollectionName = "revoked_tokens"

var errNilMongoDatabase = errors.New("mongo.nil_database")

type revokedTokenDocument struct {
	Fingerprint string    `bson:"_id"`
	ExpiresAt   time.Time `bson:"expires_at"`
	CreatedAt   time.Time `bson:"created_at"`
}

// MongoRevocationStore persists revocation records in MongoDB.
// A TTL index on expires_at lets the server prune expired records.
type MongoRevocationStore struct {
	collection *mongo.Collection
}

// NewMongoRevocationStore ensures indexes and returns the store.
func NewMongoRevocationStore(ctx context.Context, database *mongo.Database) (*MongoRevocationStore, error) {
	if database == nil {
		return nil, fmt.Errorf("revocation_store.new.mongo: %w", errNilMongoDatabase)
	}
	collection := database.Collection(mongoRevokedCollectionName)
	expiryIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}
	if _, err := collection.Indexes().CreateOne(ctx, expiryIndex); err != nil {
		return nil, fmt.Errorf("revocation_store.indexes.mongo: %w", err)
	}
	return &MongoRevocationStore{collection: collection}, nil
}

// Insert upserts with $setOnInsert so an existing record is never modified.
func (store *MongoRevocationStore) Insert(ctx context.Context, record RevocationRecord) error {
	if strings.TrimSpace(record.Fingerprint) == "" {
		return fmt.Errorf("revocation_store.insert.mongo: %w", ErrEmptyToken)
	}
	filter := bson.M{"_id": record.Fingerprint}
	update := bson.M{"$setOnInsert": bson.M{
		"expires_at": record.ExpiresAt.UTC(),
		"created_at": record.CreatedAt.UTC(),
	}}
	_, err := store.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("revocation_store.insert.mongo: %w", err)
	}
	return nil
}

// Exists reports whether a document exists for the fingerprint.
func (store *MongoRevocationStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	var document revokedTokenDocument
	err := store.collection.FindOne(ctx, bson.M{"_id": fingerprint}).Decode(&document)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("revocation_store.exists.mongo: %w", err)
	}
	return true, nil
}

// Prune deletes expired documents without waiting for the TTL monitor.
func (store *MongoRevocationStore) Prune(ctx context.Context, now time.Time) (int64, error) {
	result, err := store.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": now.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("revocation_store.prune.mongo: %w", err)
	}
	return result.DeletedCount, nil
}
