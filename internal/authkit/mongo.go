package authkit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const defaultMongoDatabase = "fedauth"

// OpenMongo connects to a mongodb:// URL and returns the database named in its path.
func OpenMongo(ctx context.Context, mongoURL string) (*mongo.Database, error) {
	parsed, parseErr := connstring.ParseAndValidate(mongoURL)
	if parseErr != nil {
		return nil, fmt.Errorf("mongo.parse_url: %w", parseErr)
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, connectErr := mongo.Connect(connectCtx, options.Client().ApplyURI(mongoURL))
	if connectErr != nil {
		return nil, fmt.Errorf("mongo.connect: %w", connectErr)
	}
	if pingErr := client.Ping(connectCtx, nil); pingErr != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.ping: %w", pingErr)
	}
	databaseName := strings.TrimSpace(parsed.Database)
	if databaseName == "" {
		databaseName = defaultMongoDatabase
	}
	return client.Database(databaseName), nil
}
