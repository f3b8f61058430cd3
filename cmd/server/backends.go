package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tyemirov/fedauth/internal/authkit"
	"github.com/tyemirov/fedauth/internal/authkitpg"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var errUnsupportedStoreScheme = errors.New("config.unsupported_store_scheme")

// backends opens user and revocation stores by URL scheme and shares
// connections when both stores point at the same URL.
type backends struct {
	logger    *zap.Logger
	databases map[string]*authkit.Database
	mongoDBs  map[string]*mongo.Database
	closers   []func()
}

func newBackends(logger *zap.Logger) *backends {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &backends{
		logger:    logger,
		databases: make(map[string]*authkit.Database),
		mongoDBs:  make(map[string]*mongo.Database),
	}
}

// Close releases every opened connection in reverse order.
func (opened *backends) Close() {
	for index := len(opened.closers) - 1; index >= 0; index-- {
		opened.closers[index]()
	}
	opened.closers = nil
}

func (opened *backends) openUserStore(ctx context.Context, databaseURL string, clock authkit.Clock) (authkit.UserStore, error) {
	scheme, schemeErr := storeScheme(databaseURL)
	if schemeErr != nil {
		return nil, schemeErr
	}
	switch scheme {
	case "":
		opened.logger.Info("using in-memory user store", zap.String("code", "users.store.memory"))
		return authkit.NewMemoryUserStore(clock), nil
	case "mongodb", "mongodb+srv":
		database, err := opened.openMongo(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		opened.logger.Info("using mongodb user store", zap.String("code", "users.store.mongo"))
		return authkit.NewMongoUserStore(ctx, database, clock)
	case "postgres", "postgresql", "sqlite", "sqlite3":
		database, err := opened.openGorm(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		opened.logger.Info("using database user store",
			zap.String("code", "users.store.database"),
			zap.String("driver", database.DriverLabel))
		return authkit.NewDatabaseUserStore(ctx, database, clock)
	default:
		return nil, fmt.Errorf("%w: database_url scheme %q", errUnsupportedStoreScheme, scheme)
	}
}

func (opened *backends) openRevocationStore(ctx context.Context, storeURL string, clock authkit.Clock) (authkit.RevocationStore, error) {
	scheme, schemeErr := storeScheme(storeURL)
	if schemeErr != nil {
		return nil, schemeErr
	}
	switch scheme {
	case "":
		opened.logger.Warn("using in-memory revocation store; revocations are not shared across instances",
			zap.String("code", "revocation.store.memory"))
		return authkit.NewMemoryRevocationStore(), nil
	case "redis", "rediss":
		client, err := authkit.OpenRedis(ctx, storeURL)
		if err != nil {
			return nil, err
		}
		opened.closers = append(opened.closers, func() { _ = client.Close() })
		opened.logger.Info("using redis revocation store", zap.String("code", "revocation.store.redis"))
		return authkit.NewRedisRevocationStore(client, clock)
	case "mongodb", "mongodb+srv":
		database, err := opened.openMongo(ctx, storeURL)
		if err != nil {
			return nil, err
		}
		opened.logger.Info("using mongodb revocation store", zap.String("code", "revocation.store.mongo"))
		return authkit.NewMongoRevocationStore(ctx, database)
	case "postgres", "postgresql":
		pool, err := authkitpg.BuildPool(ctx, storeURL)
		if err != nil {
			return nil, err
		}
		opened.closers = append(opened.closers, pool.Close)
		if schemaErr := authkitpg.EnsureSchema(ctx, pool); schemaErr != nil {
			return nil, schemaErr
		}
		opened.logger.Info("using postgres revocation store", zap.String("code", "revocation.store.pgx"))
		return authkitpg.NewPostgresRevocationStore(pool), nil
	case "sqlite", "sqlite3":
		database, err := opened.openGorm(ctx, storeURL)
		if err != nil {
			return nil, err
		}
		opened.logger.Info("using database revocation store",
			zap.String("code", "revocation.store.database"),
			zap.String("driver", database.DriverLabel))
		return authkit.NewDatabaseRevocationStore(ctx, database)
	default:
		return nil, fmt.Errorf("%w: revocation_store_url scheme %q", errUnsupportedStoreScheme, scheme)
	}
}

func (opened *backends) openGorm(ctx context.Context, databaseURL string) (*authkit.Database, error) {
	if database, found := opened.databases[databaseURL]; found {
		return database, nil
	}
	database, err := authkit.OpenDatabase(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	opened.databases[databaseURL] = database
	opened.closers = append(opened.closers, func() { _ = database.Close() })
	return database, nil
}

func (opened *backends) openMongo(ctx context.Context, mongoURL string) (*mongo.Database, error) {
	if database, found := opened.mongoDBs[mongoURL]; found {
		return database, nil
	}
	database, err := authkit.OpenMongo(ctx, mongoURL)
	if err != nil {
		return nil, err
	}
	opened.mongoDBs[mongoURL] = database
	opened.closers = append(opened.closers, func() { _ = database.Client().Disconnect(context.Background()) })
	return database, nil
}

// revocationStoreURL falls back to the user database when no dedicated store is configured.
func revocationStoreURL(settings runtimeSettings) string {
	if settings.RevocationStoreURL != "" {
		return settings.RevocationStoreURL
	}
	return settings.DatabaseURL
}

func storeScheme(storeURL string) (string, error) {
	trimmed := strings.TrimSpace(storeURL)
	if trimmed == "" {
		return "", nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("config.parse_store_url: %w", err)
	}
	if parsed.Scheme == "" {
		return "", fmt.Errorf("%w: missing scheme", errUnsupportedStoreScheme)
	}
	return strings.ToLower(parsed.Scheme), nil
}
