package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisRevokedPrefix = "revoked:"
	// Records for already-expired tokens are kept briefly so the revoke is still observable.
	redisMinimumRetention = time.Minute
)

var errNilRedisClient = errors.New("revocation_store.redis.nil_client")

// RedisRevocationStore keeps one key per revoked token, expiring with the token.
type RedisRevocationStore struct {
	client *redis.Client
	clock  Clock
}

// OpenRedis parses a redis:// URL and returns a connected client.
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, parseErr := redis.ParseURL(redisURL)
	if parseErr != nil {
		return nil, fmt.Errorf("redis.parse_url: %w", parseErr)
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.ping: %w", err)
	}
	return client, nil
}

// NewRedisRevocationStore wraps a connected client.
func NewRedisRevocationStore(client *redis.Client, clock Clock) (*RedisRevocationStore, error) {
	if client == nil {
		return nil, errNilRedisClient
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &RedisRevocationStore{client: client, clock: clock}, nil
}

// Insert sets the key only if absent, with a TTL running to the token's expiry.
func (store *RedisRevocationStore) Insert(ctx context.Context, record RevocationRecord) error {
	if strings.TrimSpace(record.Fingerprint) == "" {
		return fmt.Errorf("revocation_store.insert.redis: %w", ErrEmptyToken)
	}
	ttl := record.ExpiresAt.Sub(store.clock.Now())
	if ttl < redisMinimumRetention {
		ttl = redisMinimumRetention
	}
	if err := store.client.SetNX(ctx, redisRevokedPrefix+record.Fingerprint, record.CreatedAt.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("revocation_store.insert.redis: %w", err)
	}
	return nil
}

// Exists reports whether the key is present.
func (store *RedisRevocationStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	count, err := store.client.Exists(ctx, redisRevokedPrefix+fingerprint).Result()
	if err != nil {
		return false, fmt.Errorf("revocation_store.exists.redis: %w", err)
	}
	return count > 0, nil
}

// Prune is a no-op: Redis expires keys on its own.
func (store *RedisRevocationStore) Prune(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
