package authkit

import (
	"context"
	"time"
)

// DefaultPlan is assigned to users created on first login.
const DefaultPlan = "free"

// User is the canonical application user, federated across providers by email.
type User struct {
	ID          string
	Email       string
	DisplayName string
	FirstName   string
	LastName    string
	Picture     string
	Provider    ProviderType
	Plan        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewUser carries the profile fields used to create a canonical user.
type NewUser struct {
	Email       string
	DisplayName string
	FirstName   string
	LastName    string
	Picture     string
	Provider    ProviderType
}

// UserStore persists canonical users. Email uniqueness is enforced by the store:
// Create returns ErrUserEmailTaken when the email already has a user.
type UserStore interface {
	FindByEmail(ctx context.Context, userEmail string) (User, error)
	FindByID(ctx context.Context, applicationUserID string) (User, error)
	ExistsEmail(ctx context.Context, userEmail string) (bool, error)
	Create(ctx context.Context, profile NewUser) (User, error)
}
