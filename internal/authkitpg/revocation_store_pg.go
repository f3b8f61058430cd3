package authkitpg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tyemirov/fedauth/internal/authkit"
)

// PostgresRevocationStore persists revocation records in PostgreSQL through pgx.
type PostgresRevocationStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRevocationStore constructs a Postgres store. Call EnsureSchema first.
func NewPostgresRevocationStore(pool *pgxpool.Pool) *PostgresRevocationStore {
	if pool == nil {
		panic("pgx pool is required")
	}
	return &PostgresRevocationStore{pool: pool}
}

// Insert records the fingerprint; an existing row is left untouched.
func (store *PostgresRevocationStore) Insert(ctx context.Context, record authkit.RevocationRecord) error {
	if strings.TrimSpace(record.Fingerprint) == "" {
		return fmt.Errorf("revocation_store.insert.pgx: %w", authkit.ErrEmptyToken)
	}
	_, err := store.pool.Exec(ctx, `
INSERT INTO revoked_tokens (token_fingerprint, expires_at, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (token_fingerprint) DO NOTHING
`, record.Fingerprint, record.ExpiresAt.UTC(), record.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("revocation_store.insert.pgx: %w", err)
	}
	return nil
}

// Exists reports whether a row exists for the fingerprint.
func (store *PostgresRevocationStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	row := store.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_fingerprint = $1)
`, fingerprint)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("revocation_store.exists.pgx: %w", err)
	}
	return exists, nil
}

// Prune deletes rows that expired before now.
func (store *PostgresRevocationStore) Prune(ctx context.Context, now time.Time) (int64, error) {
	tag, err := store.pool.Exec(ctx, `
DELETE FROM revoked_tokens WHERE expires_at < $1
`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("revocation_store.prune.pgx: %w", err)
	}
	return tag.RowsAffected(), nil
}
