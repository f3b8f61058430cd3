package authkit

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNonceNotFound indicates the supplied state value was never issued or was already consumed.
	ErrNonceNotFound = errors.New("nonce_store.not_found")
	// ErrNonceExpired indicates the state value expired before the provider redirected back.
	ErrNonceExpired = errors.New("nonce_store.expired")
)

const nonceTokenSize = 32

// NonceStore issues one-time values that bind an OAuth redirect to its callback.
type NonceStore interface {
	// Issue creates a new value valid for the configured TTL.
	Issue(ctx context.Context) (string, error)
	// Consume validates and invalidates an issued value.
	Consume(ctx context.Context, nonce string) error
}

// MemoryNonceStore keeps issued values in process memory.
type MemoryNonceStore struct {
	mutex   sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	clock   Clock
}

// NewMemoryNonceStore constructs an in-memory NonceStore with the provided TTL.
func NewMemoryNonceStore(ttl time.Duration, clock Clock) *MemoryNonceStore {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &MemoryNonceStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		clock:   clock,
	}
}

// Issue creates a random URL-safe value.
func (store *MemoryNonceStore) Issue(ctx context.Context) (string, error) {
	buffer := make([]byte, nonceTokenSize)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("nonce_store.issue: %w", err)
	}
	nonce := base64.RawURLEncoding.EncodeToString(buffer)
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	store.entries[nonce] = store.clock.Now().Add(store.ttl)
	return nonce, nil
}

// Consume removes the value; a second Consume of the same value fails.
func (store *MemoryNonceStore) Consume(ctx context.Context, nonce string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	expiry, ok := store.entries[nonce]
	if !ok {
		store.purgeExpiredLocked()
		return ErrNonceNotFound
	}
	delete(store.entries, nonce)
	expired := store.clock.Now().After(expiry)
	store.purgeExpiredLocked()
	if expired {
		return ErrNonceExpired
	}
	return nil
}

func (store *MemoryNonceStore) purgeExpiredLocked() {
	if len(store.entries) == 0 {
		return
	}
	now := store.clock.Now()
	for nonce, expiry := range store.entries {
		if now.After(expiry) {
			delete(store.entries, nonce)
		}
	}
}
