package authkit

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryUserStore keeps canonical users in process memory for tests and local runs.
type MemoryUserStore struct {
	mutex   sync.RWMutex
	clock   Clock
	byID    map[string]User
	byEmail map[string]string
}

// NewMemoryUserStore constructs an empty store.
func NewMemoryUserStore(clock Clock) *MemoryUserStore {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &MemoryUserStore{
		clock:   clock,
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

// FindByEmail returns the user registered under userEmail.
func (store *MemoryUserStore) FindByEmail(ctx context.Context, userEmail string) (User, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	userID, found := store.byEmail[normalizeEmail(userEmail)]
	if !found {
		return User{}, ErrUserNotFound
	}
	return store.byID[userID], nil
}

// FindByID returns the user with the application id.
func (store *MemoryUserStore) FindByID(ctx context.Context, applicationUserID string) (User, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	user, found := store.byID[applicationUserID]
	if !found {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

// ExistsEmail reports whether userEmail already has a user.
func (store *MemoryUserStore) ExistsEmail(ctx context.Context, userEmail string) (bool, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	_, found := store.byEmail[normalizeEmail(userEmail)]
	return found, nil
}

// Create registers a new user; the email must be unused.
func (store *MemoryUserStore) Create(ctx context.Context, profile NewUser) (User, error) {
	userEmail := normalizeEmail(profile.Email)
	if userEmail == "" {
		return User{}, ErrMalformedProfile
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, taken := store.byEmail[userEmail]; taken {
		return User{}, ErrUserEmailTaken
	}
	now := store.clock.Now().UTC()
	user := User{
		ID:          uuid.NewString(),
		Email:       userEmail,
		DisplayName: profile.DisplayName,
		FirstName:   profile.FirstName,
		LastName:    profile.LastName,
		Picture:     profile.Picture,
		Provider:    profile.Provider,
		Plan:        DefaultPlan,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	store.byID[user.ID] = user
	store.byEmail[userEmail] = user.ID
	return user, nil
}

func normalizeEmail(userEmail string) string {
	return strings.ToLower(strings.TrimSpace(userEmail))
}
