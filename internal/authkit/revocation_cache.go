package authkit

import (
	"context"
	"sync"
	"time"
)

// CachedRevocationStore remembers positive Exists answers for a bounded TTL.
// Revocation is monotonic, so a cached "revoked" can never admit a revoked token.
// Negative answers always go to the backing store, which keeps a completed
// revoke visible to every instance immediately.
// Expired entries are swept at most once per TTL from Insert and Exists.
type CachedRevocationStore struct {
	backing RevocationStore
	ttl     time.Duration
	clock   Clock

	mutex     sync.Mutex
	revoked   map[string]time.Time
	lastSweep time.Time
}

// NewCachedRevocationStore wraps backing; a non-positive ttl returns backing unchanged.
func NewCachedRevocationStore(backing RevocationStore, ttl time.Duration, clock Clock) RevocationStore {
	if ttl <= 0 {
		return backing
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &CachedRevocationStore{
		backing:   backing,
		ttl:       ttl,
		clock:     clock,
		revoked:   make(map[string]time.Time),
		lastSweep: clock.Now(),
	}
}

// Insert writes through to the backing store before caching.
func (store *CachedRevocationStore) Insert(ctx context.Context, record RevocationRecord) error {
	if err := store.backing.Insert(ctx, record); err != nil {
		return err
	}
	store.remember(record.Fingerprint)
	return nil
}

// Exists serves cached positives and consults the backing store otherwise.
func (store *CachedRevocationStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	now := store.clock.Now()
	store.mutex.Lock()
	store.sweepLocked(now)
	cachedUntil, cached := store.revoked[fingerprint]
	if cached && now.After(cachedUntil) {
		delete(store.revoked, fingerprint)
		cached = false
	}
	store.mutex.Unlock()
	if cached {
		return true, nil
	}
	exists, err := store.backing.Exists(ctx, fingerprint)
	if err != nil {
		return false, err
	}
	if exists {
		store.remember(fingerprint)
	}
	return exists, nil
}

// Prune clears stale cache entries and prunes the backing store.
func (store *CachedRevocationStore) Prune(ctx context.Context, now time.Time) (int64, error) {
	store.mutex.Lock()
	store.deleteExpiredLocked(now)
	store.mutex.Unlock()
	return store.backing.Prune(ctx, now)
}

func (store *CachedRevocationStore) remember(fingerprint string) {
	now := store.clock.Now()
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.sweepLocked(now)
	store.revoked[fingerprint] = now.Add(store.ttl)
}

// sweepLocked drops expired entries once a full TTL has passed since the last sweep.
func (store *CachedRevocationStore) sweepLocked(now time.Time) {
	if now.Before(store.lastSweep.Add(store.ttl)) {
		return
	}
	store.deleteExpiredLocked(now)
}

func (store *CachedRevocationStore) deleteExpiredLocked(now time.Time) {
	for fingerprint, cachedUntil := range store.revoked {
		if now.After(cachedUntil) {
			delete(store.revoked, fingerprint)
		}
	}
	store.lastSweep = now
}
