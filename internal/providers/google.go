// Package providers adapts third-party identity providers to authkit profiles.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tyemirov/fedauth/internal/authkit"
	"google.golang.org/api/idtoken"
)

var errMissingGoogleClientID = errors.New("providers.google.missing_client_id")

// IDTokenValidator validates a Google ID token for an audience.
type IDTokenValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// GoogleVerifier verifies Google Identity Services ID tokens.
type GoogleVerifier struct {
	clientID  string
	validator IDTokenValidator
}

// NewGoogleVerifier builds a verifier backed by Google's published signing keys.
func NewGoogleVerifier(ctx context.Context, clientID string) (*GoogleVerifier, error) {
	validator, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("providers.google.new_validator: %w", err)
	}
	return NewGoogleVerifierWithValidator(clientID, validator)
}

// NewGoogleVerifierWithValidator builds a verifier around a supplied validator.
func NewGoogleVerifierWithValidator(clientID string, validator IDTokenValidator) (*GoogleVerifier, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, errMissingGoogleClientID
	}
	if validator == nil {
		return nil, errors.New("providers.google.nil_validator")
	}
	return &GoogleVerifier{clientID: clientID, validator: validator}, nil
}

// VerifyIDToken validates the token and maps its claims onto a GoogleProfile.
// Only tokens issued by Google for a verified email are accepted.
func (verifier *GoogleVerifier) VerifyIDToken(ctx context.Context, idToken string) (authkit.GoogleProfile, error) {
	payload, validateErr := verifier.validator.Validate(ctx, idToken, verifier.clientID)
	if validateErr != nil {
		return authkit.GoogleProfile{}, fmt.Errorf("%w: google: %w", authkit.ErrProviderRejected, validateErr)
	}
	if payload.Issuer != "https://accounts.google.com" && payload.Issuer != "accounts.google.com" {
		return authkit.GoogleProfile{}, fmt.Errorf("%w: google: unexpected issuer %q", authkit.ErrProviderRejected, payload.Issuer)
	}
	userEmail := claimString(payload.Claims, "email")
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	if userEmail == "" || !emailVerified {
		return authkit.GoogleProfile{}, fmt.Errorf("%w: google: unverified email", authkit.ErrProviderRejected)
	}
	profile := authkit.GoogleProfile{
		GivenName:  claimString(payload.Claims, "given_name"),
		FamilyName: claimString(payload.Claims, "family_name"),
		Emails:     []string{userEmail},
	}
	if picture := claimString(payload.Claims, "picture"); picture != "" {
		profile.Photos = []string{picture}
	}
	return profile, nil
}

func claimString(claims map[string]interface{}, name string) string {
	value, _ := claims[name].(string)
	return strings.TrimSpace(value)
}
