package authkit

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RevocationRecord marks one credential as invalidated before its natural expiry.
// Fingerprint is derived from the token text; the bearer value itself is never persisted.
type RevocationRecord struct {
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// RevocationStore is the durable backing for revocation records.
// Insert must be insert-if-absent and visible to Exists in every process once it returns.
type RevocationStore interface {
	Insert(ctx context.Context, record RevocationRecord) error
	Exists(ctx context.Context, fingerprint string) (bool, error)
	Prune(ctx context.Context, now time.Time) (int64, error)
}

// Revocations records and answers revocation of raw credentials.
type Revocations struct {
	store RevocationStore
	clock Clock
}

// NewRevocations wraps a backing store.
func NewRevocations(store RevocationStore, clock Clock) *Revocations {
	if store == nil {
		panic("revocation store is required")
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &Revocations{store: store, clock: clock}
}

// Revoke records the token until its own expiry. Revoking an already-revoked token succeeds.
// The signature is not verified: expired or suspect tokens can still be revoked.
func (revocations *Revocations) Revoke(ctx context.Context, token string) error {
	expiresAt, decodeErr := decodeExpiry(token)
	if decodeErr != nil {
		return fmt.Errorf("revocation.revoke: %w", decodeErr)
	}
	record := RevocationRecord{
		Fingerprint: TokenFingerprint(token),
		ExpiresAt:   expiresAt,
		CreatedAt:   revocations.clock.Now().UTC(),
	}
	if err := revocations.store.Insert(ctx, record); err != nil {
		return fmt.Errorf("revocation.revoke: %w", err)
	}
	return nil
}

// IsRevoked reports whether the exact token string was revoked.
func (revocations *Revocations) IsRevoked(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}
	revoked, err := revocations.store.Exists(ctx, TokenFingerprint(token))
	if err != nil {
		return false, fmt.Errorf("revocation.is_revoked: %w", err)
	}
	return revoked, nil
}

// Prune removes records whose expiry has passed.
func (revocations *Revocations) Prune(ctx context.Context) (int64, error) {
	removed, err := revocations.store.Prune(ctx, revocations.clock.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revocation.prune: %w", err)
	}
	return removed, nil
}

// TokenFingerprint returns the storage key for a token.
func TokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func decodeExpiry(token string) (time.Time, error) {
	if strings.TrimSpace(token) == "" {
		return time.Time{}, ErrEmptyToken
	}
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrTokenNotDecodable, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp", ErrTokenNotDecodable)
	}
	return claims.ExpiresAt.Time.UTC(), nil
}
