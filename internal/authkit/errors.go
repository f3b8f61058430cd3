package authkit

import (
	"errors"
	"fmt"
)

// Error categories returned by the session controller. Callers translate these
// into transport responses and must not distinguish causes inside a category.
var (
	ErrUnauthorized = errors.New("auth.unauthorized")
	ErrBadRequest   = errors.New("auth.bad_request")
	ErrUnavailable  = errors.New("auth.unavailable")
)

var (
	// ErrTokenNotDecodable indicates a token whose structure or expiry could not be read.
	ErrTokenNotDecodable = errors.New("revocation.not_decodable")
	// ErrEmptyToken indicates that the supplied token text is empty.
	ErrEmptyToken = errors.New("revocation.empty_token")
	// ErrMalformedProfile indicates a provider payload missing required fields.
	ErrMalformedProfile = errors.New("identity.malformed_profile")
	// ErrUnknownProvider indicates a provider tag outside the supported set.
	ErrUnknownProvider = errors.New("identity.unknown_provider")
	// ErrUserNotFound is returned by user stores when no record matches.
	ErrUserNotFound = errors.New("user_store.not_found")
	// ErrUserEmailTaken is returned by user stores when a concurrent create won the email.
	ErrUserEmailTaken = errors.New("user_store.email_taken")
	// ErrEmptySubject indicates an attempt to mint a credential without a user id.
	ErrEmptySubject = errors.New("token_issuer.empty_subject")
)

func categorize(category error, cause error) error {
	return fmt.Errorf("%w: %w", category, cause)
}
