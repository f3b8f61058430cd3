package authkit

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// Configuration validation errors surfaced at startup.
var (
	ErrMissingAccessSecret       = errors.New("config.missing_access_secret")
	ErrMissingRefreshSecret      = errors.New("config.missing_refresh_secret")
	ErrSharedTokenSecret         = errors.New("config.shared_token_secret")
	ErrInvalidAccessTTL          = errors.New("config.invalid_access_ttl")
	ErrInvalidRefreshTTL         = errors.New("config.invalid_refresh_ttl")
	ErrMissingTokenIssuer        = errors.New("config.missing_token_issuer")
	ErrInvalidRevocationCacheTTL = errors.New("config.invalid_revocation_cache_ttl")
	ErrIncompleteLineSettings    = errors.New("config.incomplete_line_settings")
)

// TokenConfig holds the signing secrets and lifetimes for issued credentials.
// It is built once at startup and never mutated.
type TokenConfig struct {
	Issuer        string
	AccessSecret  []byte
	AccessTTL     time.Duration
	RefreshSecret []byte
	RefreshTTL    time.Duration
}

// Validate reports the first configuration problem.
func (configuration TokenConfig) Validate() error {
	if len(configuration.AccessSecret) == 0 {
		return ErrMissingAccessSecret
	}
	if len(configuration.RefreshSecret) == 0 {
		return ErrMissingRefreshSecret
	}
	if bytes.Equal(configuration.AccessSecret, configuration.RefreshSecret) {
		return ErrSharedTokenSecret
	}
	if configuration.AccessTTL <= 0 {
		return ErrInvalidAccessTTL
	}
	if configuration.RefreshTTL <= 0 || configuration.RefreshTTL < configuration.AccessTTL {
		return ErrInvalidRefreshTTL
	}
	if configuration.Issuer == "" {
		return ErrMissingTokenIssuer
	}
	return nil
}

// LineSettings configures the LINE Login channel. All fields are empty when LINE is disabled.
type LineSettings struct {
	ChannelID     string
	ChannelSecret string
	RedirectURL   string
}

// Partial reports whether some but not all LINE settings are present.
func (settings LineSettings) Partial() bool {
	anySet := settings.ChannelID != "" || settings.ChannelSecret != "" || settings.RedirectURL != ""
	return anySet && !settings.Enabled()
}

// Enabled reports whether LINE Login is configured.
func (settings LineSettings) Enabled() bool {
	return settings.ChannelID != "" && settings.ChannelSecret != "" && settings.RedirectURL != ""
}

// ServerConfig configures tokens, providers, and transport flags.
type ServerConfig struct {
	Tokens             TokenConfig
	GoogleWebClientID  string
	Line               LineSettings
	NonceTTL           time.Duration
	RevocationCacheTTL time.Duration
	AllowInsecureHTTP  bool
	// FrontendRedirectURL, when set, receives provider logins as a redirect
	// carrying the credentials in the URL fragment.
	FrontendRedirectURL string
}

// Validate checks the token settings and the revocation cache bound.
func (configuration ServerConfig) Validate() error {
	if err := configuration.Tokens.Validate(); err != nil {
		return fmt.Errorf("server_config.validate: %w", err)
	}
	if configuration.RevocationCacheTTL < 0 || configuration.RevocationCacheTTL > configuration.Tokens.AccessTTL {
		return fmt.Errorf("server_config.validate: %w", ErrInvalidRevocationCacheTTL)
	}
	if configuration.Line.Partial() {
		return fmt.Errorf("server_config.validate: %w", ErrIncompleteLineSettings)
	}
	return nil
}
