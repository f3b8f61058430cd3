package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tyemirov/fedauth/internal/authkit"
	"golang.org/x/oauth2"
)

const lineIssuer = "https://access.line.me"

// LineEndpoint is the LINE Login v2.1 OAuth endpoint.
var LineEndpoint = oauth2.Endpoint{
	AuthURL:   "https://access.line.me/oauth2/v2.1/authorize",
	TokenURL:  "https://api.line.me/oauth2/v2.1/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

var errIncompleteLineSettings = errors.New("providers.line.incomplete_settings")

// LineClient runs the LINE Login authorization-code flow and verifies the returned ID token.
type LineClient struct {
	oauthConfig   *oauth2.Config
	channelID     string
	channelSecret []byte
}

// LineOption customizes a LineClient.
type LineOption func(*LineClient)

// WithLineEndpoint overrides the LINE OAuth endpoint.
func WithLineEndpoint(endpoint oauth2.Endpoint) LineOption {
	return func(client *LineClient) {
		client.oauthConfig.Endpoint = endpoint
	}
}

// NewLineClient builds a client for the configured channel.
func NewLineClient(settings authkit.LineSettings, options ...LineOption) (*LineClient, error) {
	if !settings.Enabled() {
		return nil, errIncompleteLineSettings
	}
	client := &LineClient{
		oauthConfig: &oauth2.Config{
			ClientID:     settings.ChannelID,
			ClientSecret: settings.ChannelSecret,
			RedirectURL:  settings.RedirectURL,
			Scopes:       []string{"profile", "openid", "email"},
			Endpoint:     LineEndpoint,
		},
		channelID:     settings.ChannelID,
		channelSecret: []byte(settings.ChannelSecret),
	}
	for _, option := range options {
		option(client)
	}
	return client, nil
}

// AuthCodeURL returns the LINE consent URL bound to state.
func (client *LineClient) AuthCodeURL(state string) string {
	return client.oauthConfig.AuthCodeURL(state)
}

type lineIDTokenClaims struct {
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}

// Exchange trades the authorization code for tokens and maps the ID token onto a LineProfile.
func (client *LineClient) Exchange(ctx context.Context, code string) (authkit.LineProfile, error) {
	token, exchangeErr := client.oauthConfig.Exchange(ctx, code)
	if exchangeErr != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(exchangeErr, &retrieveErr) {
			return authkit.LineProfile{}, fmt.Errorf("%w: line: %w", authkit.ErrProviderRejected, exchangeErr)
		}
		return authkit.LineProfile{}, fmt.Errorf("providers.line.exchange: %w", exchangeErr)
	}
	idToken, _ := token.Extra("id_token").(string)
	if strings.TrimSpace(idToken) == "" {
		return authkit.LineProfile{}, fmt.Errorf("%w: line: id_token missing", authkit.ErrProviderRejected)
	}
	claims := &lineIDTokenClaims{}
	_, parseErr := jwt.ParseWithClaims(idToken, claims, func(parsed *jwt.Token) (interface{}, error) {
		return client.channelSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(client.channelID),
		jwt.WithIssuer(lineIssuer),
		jwt.WithExpirationRequired())
	if parseErr != nil {
		return authkit.LineProfile{}, fmt.Errorf("%w: line: %w", authkit.ErrProviderRejected, parseErr)
	}
	return authkit.LineProfile{
		UserID:      claims.Subject,
		Email:       strings.TrimSpace(claims.Email),
		DisplayName: strings.TrimSpace(claims.Name),
		PictureURL:  strings.TrimSpace(claims.Picture),
	}, nil
}
