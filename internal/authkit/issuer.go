package authkit

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tyemirov/fedauth/pkg/sessionvalidator"
)

// SessionClaims are embedded in both access and refresh credentials.
type SessionClaims = sessionvalidator.Claims

// Clock provides the current time.
type Clock = sessionvalidator.Clock

// NewSystemClock returns the wall clock in UTC.
func NewSystemClock() Clock {
	return sessionvalidator.SystemClock()
}

// TokenPair is the result of a successful login.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenIssuer mints HS256 access and refresh credentials.
type TokenIssuer struct {
	configuration TokenConfig
	clock         Clock
}

// NewTokenIssuer validates the configuration and constructs an issuer.
func NewTokenIssuer(configuration TokenConfig, clock Clock) (*TokenIssuer, error) {
	if err := configuration.Validate(); err != nil {
		return nil, fmt.Errorf("token_issuer.new: %w", err)
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &TokenIssuer{configuration: configuration, clock: clock}, nil
}

// Issue signs an access credential and a refresh credential for the user.
func (issuer *TokenIssuer) Issue(applicationUserID string, userEmail string) (TokenPair, error) {
	accessToken, accessExpiresAt, accessErr := issuer.IssueAccess(applicationUserID, userEmail)
	if accessErr != nil {
		return TokenPair{}, accessErr
	}
	refreshToken, refreshExpiresAt, refreshErr := issuer.mint(applicationUserID, userEmail, issuer.configuration.RefreshSecret, issuer.configuration.RefreshTTL)
	if refreshErr != nil {
		return TokenPair{}, refreshErr
	}
	return TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// IssueAccess signs a new access credential only.
func (issuer *TokenIssuer) IssueAccess(applicationUserID string, userEmail string) (string, time.Time, error) {
	return issuer.mint(applicationUserID, userEmail, issuer.configuration.AccessSecret, issuer.configuration.AccessTTL)
}

func (issuer *TokenIssuer) mint(applicationUserID string, userEmail string, signingKey []byte, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(applicationUserID) == "" {
		return "", time.Time{}, fmt.Errorf("token_issuer.mint: %w", ErrEmptySubject)
	}
	issuedAt := issuer.clock.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	// jti keeps credentials minted in the same second distinct.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		Email: userEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer.configuration.Issuer,
			Subject:   applicationUserID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token_issuer.sign: %w", err)
	}
	return signed, expiresAt, nil
}
