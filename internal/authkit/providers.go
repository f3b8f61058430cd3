package authkit

import (
	"context"
	"errors"
)

// ErrProviderRejected indicates the identity provider refused or failed to vouch for the credential.
var ErrProviderRejected = errors.New("provider.rejected")

// GoogleIDTokenVerifier verifies a Google ID token and returns the Google-shaped profile.
type GoogleIDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (GoogleProfile, error)
}

// LineAuthenticator drives the LINE Login authorization-code flow.
type LineAuthenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (LineProfile, error)
}
