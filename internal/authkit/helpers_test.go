package authkit

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type manualClock struct {
	mutex   sync.Mutex
	current time.Time
}

func (clock *manualClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.current
}

func (clock *manualClock) Advance(duration time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.current = clock.current.Add(duration)
}

func newManualClock() *manualClock {
	return &manualClock{current: time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func testTokenConfig() TokenConfig {
	return TokenConfig{
		Issuer:        "fedauth-test",
		AccessSecret:  []byte("access-secret-for-tests"),
		AccessTTL:     15 * time.Minute,
		RefreshSecret: []byte("refresh-secret-for-tests"),
		RefreshTTL:    7 * 24 * time.Hour,
	}
}

func openTestDatabase(t *testing.T) *Database {
	t.Helper()
	database, err := OpenDatabase(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "fedauth.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

type sessionFixture struct {
	clock       *manualClock
	users       *MemoryUserStore
	revocations *Revocations
	store       *MemoryRevocationStore
	issuer      *TokenIssuer
	verifier    *TokenVerifier
	metrics     *CounterMetrics
	controller  *SessionController
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	clock := newManualClock()
	users := NewMemoryUserStore(clock)
	store := NewMemoryRevocationStore()
	revocations := NewRevocations(store, clock)
	issuer, err := NewTokenIssuer(testTokenConfig(), clock)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	verifier, err := NewTokenVerifier(testTokenConfig(), revocations, clock)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	metrics := NewCounterMetrics()
	logger := zaptest.NewLogger(t)
	controller, err := NewSessionController(SessionDependencies{
		Resolver:    NewIdentityResolver(users, logger),
		Issuer:      issuer,
		Verifier:    verifier,
		Revocations: revocations,
		Users:       users,
		Metrics:     metrics,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return &sessionFixture{
		clock:       clock,
		users:       users,
		revocations: revocations,
		store:       store,
		issuer:      issuer,
		verifier:    verifier,
		metrics:     metrics,
		controller:  controller,
	}
}

func googleProfile(email string) ProviderProfile {
	return GoogleProfileOf(GoogleProfile{
		GivenName:  "Ada",
		FamilyName: "Lovelace",
		Emails:     []string{email},
		Photos:     []string{"https://example.com/ada.png"},
	})
}

func lineProfile(email string) ProviderProfile {
	return LineProfileOf(LineProfile{
		UserID:      "U-line",
		Email:       email,
		DisplayName: "Ada L.",
		PictureURL:  "https://profile.line-scdn.net/ada",
	})
}

func (store *MemoryRevocationStore) recordCount() int {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	return len(store.records)
}

func (store *MemoryUserStore) userCount() int {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	return len(store.byID)
}

// newWallAlignedClock starts near real time so backends that expire records
// on their own, such as Mongo TTL indexes, keep them for the test's duration.
func newWallAlignedClock() *manualClock {
	return &manualClock{current: time.Now().UTC().Truncate(time.Second)}
}
