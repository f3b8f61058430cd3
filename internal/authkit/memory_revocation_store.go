package authkit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryRevocationStore is an in-memory store intended for tests and single-instance dev runs.
type MemoryRevocationStore struct {
	mutex   sync.RWMutex
	records map[string]RevocationRecord
}

// NewMemoryRevocationStore creates an empty in-memory revocation store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{records: make(map[string]RevocationRecord)}
}

// Insert stores the record unless one already exists for the fingerprint.
func (store *MemoryRevocationStore) Insert(ctx context.Context, record RevocationRecord) error {
	if strings.TrimSpace(record.Fingerprint) == "" {
		return ErrEmptyToken
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, exists := store.records[record.Fingerprint]; exists {
		return nil
	}
	store.records[record.Fingerprint] = record
	return nil
}

// Exists reports whether the fingerprint was recorded.
func (store *MemoryRevocationStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	_, exists := store.records[fingerprint]
	return exists, nil
}

// Prune deletes records that expired before now.
func (store *MemoryRevocationStore) Prune(ctx context.Context, now time.Time) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	var removed int64
	for fingerprint, record := range store.records {
		if record.ExpiresAt.Before(now) {
			delete(store.records, fingerprint)
			removed++
		}
	}
	return removed, nil
}
