package authkit

import (
	"context"
	"fmt"

	"github.com/tyemirov/fedauth/pkg/sessionvalidator"
)

// TokenKind selects which secret a credential is verified against.
type TokenKind string

const (
	AccessTokenKind  TokenKind = "access"
	RefreshTokenKind TokenKind = "refresh"
)

// TokenVerifier validates credentials: revocation first, then signature and expiry.
type TokenVerifier struct {
	access  *sessionvalidator.Validator
	refresh *sessionvalidator.Validator
}

// NewTokenVerifier builds access and refresh validators sharing one revocation checker.
func NewTokenVerifier(configuration TokenConfig, revocations sessionvalidator.RevocationChecker, clock Clock) (*TokenVerifier, error) {
	if err := configuration.Validate(); err != nil {
		return nil, fmt.Errorf("token_verifier.new: %w", err)
	}
	if revocations == nil {
		return nil, fmt.Errorf("token_verifier.new: revocation checker is required")
	}
	accessValidator, accessErr := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: configuration.AccessSecret,
		Issuer:     configuration.Issuer,
		Clock:      clock,
		Revocation: revocations,
	})
	if accessErr != nil {
		return nil, fmt.Errorf("token_verifier.new.access: %w", accessErr)
	}
	refreshValidator, refreshErr := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: configuration.RefreshSecret,
		Issuer:     configuration.Issuer,
		Clock:      clock,
		Revocation: revocations,
	})
	if refreshErr != nil {
		return nil, fmt.Errorf("token_verifier.new.refresh: %w", refreshErr)
	}
	return &TokenVerifier{access: accessValidator, refresh: refreshValidator}, nil
}

// Verify validates the token against the secret for kind.
func (verifier *TokenVerifier) Verify(ctx context.Context, token string, kind TokenKind) (*SessionClaims, error) {
	switch kind {
	case AccessTokenKind:
		return verifier.access.ValidateToken(ctx, token)
	case RefreshTokenKind:
		return verifier.refresh.ValidateToken(ctx, token)
	default:
		return nil, fmt.Errorf("token_verifier.verify: unknown token kind %q", kind)
	}
}

// VerifyAccess validates an access credential.
func (verifier *TokenVerifier) VerifyAccess(ctx context.Context, token string) (*SessionClaims, error) {
	return verifier.Verify(ctx, token, AccessTokenKind)
}

// VerifyRefresh validates a refresh credential.
func (verifier *TokenVerifier) VerifyRefresh(ctx context.Context, token string) (*SessionClaims, error) {
	return verifier.Verify(ctx, token, RefreshTokenKind)
}

// Access exposes the access validator for request middleware.
func (verifier *TokenVerifier) Access() *sessionvalidator.Validator {
	return verifier.access
}
