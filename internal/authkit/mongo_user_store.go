package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoUsersCollectionName = "users"

type userDocument struct {
	ID          string    `bson:"_id"`
	Email       string    `bson:"email"`
	DisplayName string    `bson:"display_name,omitempty"`
	FirstName   string    `bson:"first_name,omitempty"`
	LastName    string    `bson:"last_name,omitempty"`
	Picture     string    `bson:"picture,omitempty"`
	Provider    string    `bson:"provider"`
	Plan        string    `bson:"plan"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (document userDocument) toUser() User {
	return User{
		ID:          document.ID,
		Email:       document.Email,
		DisplayName: document.DisplayName,
		FirstName:   document.FirstName,
		LastName:    document.LastName,
		Picture:     document.Picture,
		Provider:    ProviderType(document.Provider),
		Plan:        document.Plan,
		CreatedAt:   document.CreatedAt,
		UpdatedAt:   document.UpdatedAt,
	}
}

// MongoUserStore persists canonical users in MongoDB with a unique email index.
type MongoUserStore struct {
	collection *mongo.Collection
	clock      Clock
}

// NewMongoUserStore ensures the unique email index and returns the store.
func NewMongoUserStore(ctx context.Context, database *mongo.Database, clock Clock) (*MongoUserStore, error) {
	if database == nil {
		return nil, fmt.Errorf("user_store.new.mongo: %w", errNilMongoDatabase)
	}
	collection := database.Collection(mongoUsersCollectionName)
	emailIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := collection.Indexes().CreateOne(ctx, emailIndex); err != nil {
		return nil, fmt.Errorf("user_store.indexes.mongo: %w", err)
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &MongoUserStore{collection: collection, clock: clock}, nil
}

// FindByEmail returns the user registered under userEmail.
func (store *MongoUserStore) FindByEmail(ctx context.Context, userEmail string) (User, error) {
	return store.findOne(ctx, bson.M{"email": normalizeEmail(userEmail)})
}

// FindByID returns the user with the application id.
func (store *MongoUserStore) FindByID(ctx context.Context, applicationUserID string) (User, error) {
	return store.findOne(ctx, bson.M{"_id": applicationUserID})
}

func (store *MongoUserStore) findOne(ctx context.Context, filter bson.M) (User, error) {
	var document userDocument
	err := store.collection.FindOne(ctx, filter).Decode(&document)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("user_store.find.mongo: %w", err)
	}
	return document.toUser(), nil
}

// ExistsEmail reports whether userEmail already has a user.
func (store *MongoUserStore) ExistsEmail(ctx context.Context, userEmail string) (bool, error) {
	count, err := store.collection.CountDocuments(ctx, bson.M{"email": normalizeEmail(userEmail)}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("user_store.exists.mongo: %w", err)
	}
	return count > 0, nil
}

// Create inserts a new user; the unique index turns a concurrent insert into ErrUserEmailTaken.
func (store *MongoUserStore) Create(ctx context.Context, profile NewUser) (User, error) {
	userEmail := normalizeEmail(profile.Email)
	if userEmail == "" {
		return User{}, ErrMalformedProfile
	}
	now := store.clock.Now().UTC()
	document := userDocument{
		ID:          uuid.NewString(),
		Email:       userEmail,
		DisplayName: profile.DisplayName,
		FirstName:   profile.FirstName,
		LastName:    profile.LastName,
		Picture:     profile.Picture,
		Provider:    string(profile.Provider),
		Plan:        DefaultPlan,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := store.collection.InsertOne(ctx, document); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return User{}, ErrUserEmailTaken
		}
		return User{}, fmt.Errorf("user_store.create.mongo: %w", err)
	}
	return document.toUser(), nil
}
