package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ProviderType names the identity provider that authenticated a user.
type ProviderType string

const (
	ProviderGoogle ProviderType = "google"
	ProviderLine   ProviderType = "line"
)

// GoogleProfile mirrors the Google profile shape: split name, email and photo lists.
type GoogleProfile struct {
	GivenName  string
	FamilyName string
	Emails     []string
	Photos     []string
}

// LineProfile mirrors the LINE profile shape: a single display name and picture URL.
type LineProfile struct {
	UserID      string
	Email       string
	DisplayName string
	PictureURL  string
}

// ProviderProfile is a verified provider payload tagged with its provider.
// Exactly one of Google or Line is set, matching Provider.
type ProviderProfile struct {
	Provider ProviderType
	Google   *GoogleProfile
	Line     *LineProfile
}

// GoogleProfileOf tags a Google payload.
func GoogleProfileOf(profile GoogleProfile) ProviderProfile {
	return ProviderProfile{Provider: ProviderGoogle, Google: &profile}
}

// LineProfileOf tags a LINE payload.
func LineProfileOf(profile LineProfile) ProviderProfile {
	return ProviderProfile{Provider: ProviderLine, Line: &profile}
}

// normalize dispatches on the provider tag and returns the creation fields.
func (profile ProviderProfile) normalize() (NewUser, error) {
	var normalized NewUser
	switch profile.Provider {
	case ProviderGoogle:
		if profile.Google == nil {
			return NewUser{}, fmt.Errorf("%w: google payload missing", ErrMalformedProfile)
		}
		normalized = NewUser{
			Email:     firstNonEmpty(profile.Google.Emails),
			FirstName: strings.TrimSpace(profile.Google.GivenName),
			LastName:  strings.TrimSpace(profile.Google.FamilyName),
			Picture:   firstNonEmpty(profile.Google.Photos),
		}
		normalized.DisplayName = strings.TrimSpace(normalized.FirstName + " " + normalized.LastName)
	case ProviderLine:
		if profile.Line == nil {
			return NewUser{}, fmt.Errorf("%w: line payload missing", ErrMalformedProfile)
		}
		normalized = NewUser{
			Email:       strings.TrimSpace(profile.Line.Email),
			DisplayName: strings.TrimSpace(profile.Line.DisplayName),
			Picture:     strings.TrimSpace(profile.Line.PictureURL),
		}
	default:
		return NewUser{}, fmt.Errorf("%w: %q", ErrUnknownProvider, profile.Provider)
	}
	normalized.Provider = profile.Provider
	normalized.Email = strings.ToLower(normalized.Email)
	if normalized.Email == "" {
		return NewUser{}, fmt.Errorf("%w: email is required", ErrMalformedProfile)
	}
	return normalized, nil
}

func firstNonEmpty(values []string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// IdentityResolver turns provider profiles into canonical users.
type IdentityResolver struct {
	users  UserStore
	logger *zap.Logger
}

// NewIdentityResolver constructs a resolver over the user store.
func NewIdentityResolver(users UserStore, logger *zap.Logger) *IdentityResolver {
	if users == nil {
		panic("user store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityResolver{users: users, logger: logger}
}

// Resolve returns the canonical user for the profile's email, creating one if absent.
// Existing users are returned unchanged.
func (resolver *IdentityResolver) Resolve(ctx context.Context, profile ProviderProfile) (User, error) {
	normalized, normalizeErr := profile.normalize()
	if normalizeErr != nil {
		return User{}, categorize(ErrBadRequest, normalizeErr)
	}

	exists, existsErr := resolver.users.ExistsEmail(ctx, normalized.Email)
	if existsErr != nil {
		return User{}, categorize(ErrUnavailable, existsErr)
	}
	if exists {
		return resolver.findExisting(ctx, normalized.Email)
	}

	created, createErr := resolver.users.Create(ctx, normalized)
	if createErr == nil {
		resolver.logger.Info("canonical user created",
			zap.String("code", "identity.user_created"),
			zap.String("user_id", created.ID),
			zap.String("provider", string(normalized.Provider)))
		return created, nil
	}
	if errors.Is(createErr, ErrUserEmailTaken) {
		return resolver.findExisting(ctx, normalized.Email)
	}
	return User{}, categorize(ErrUnavailable, createErr)
}

func (resolver *IdentityResolver) findExisting(ctx context.Context, userEmail string) (User, error) {
	user, findErr := resolver.users.FindByEmail(ctx, userEmail)
	if findErr != nil {
		return User{}, categorize(ErrUnavailable, findErr)
	}
	return user, nil
}
