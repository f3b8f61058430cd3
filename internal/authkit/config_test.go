package authkit

import (
	"errors"
	"testing"
	"time"
)

func TestTokenConfigValidate(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name   string
		mutate func(*TokenConfig)
		want   error
	}{
		{name: "valid", mutate: func(*TokenConfig) {}, want: nil},
		{name: "missing issuer", mutate: func(configuration *TokenConfig) { configuration.Issuer = "" }, want: ErrMissingTokenIssuer},
		{name: "missing access secret", mutate: func(configuration *TokenConfig) { configuration.AccessSecret = nil }, want: ErrMissingAccessSecret},
		{name: "missing refresh secret", mutate: func(configuration *TokenConfig) { configuration.RefreshSecret = nil }, want: ErrMissingRefreshSecret},
		{name: "shared secret", mutate: func(configuration *TokenConfig) { configuration.RefreshSecret = []byte("access-secret-for-tests") }, want: ErrSharedTokenSecret},
		{name: "zero access ttl", mutate: func(configuration *TokenConfig) { configuration.AccessTTL = 0 }, want: ErrInvalidAccessTTL},
		{name: "negative refresh ttl", mutate: func(configuration *TokenConfig) { configuration.RefreshTTL = -time.Second }, want: ErrInvalidRefreshTTL},
		{name: "refresh shorter than access", mutate: func(configuration *TokenConfig) { configuration.RefreshTTL = time.Minute }, want: ErrInvalidRefreshTTL},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			configuration := testTokenConfig()
			testCase.mutate(&configuration)
			err := configuration.Validate()
			if testCase.want == nil {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if !errors.Is(err, testCase.want) {
				t.Fatalf("expected %v, got %v", testCase.want, err)
			}
		})
	}
}

func TestServerConfigValidate(t *testing.T) {
	t.Parallel()
	configuration := ServerConfig{Tokens: testTokenConfig(), RevocationCacheTTL: time.Minute}
	if err := configuration.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	configuration.RevocationCacheTTL = time.Hour
	if err := configuration.Validate(); !errors.Is(err, ErrInvalidRevocationCacheTTL) {
		t.Fatalf("expected ErrInvalidRevocationCacheTTL, got %v", err)
	}

	configuration.RevocationCacheTTL = 0
	configuration.Line = LineSettings{ChannelID: "123"}
	if err := configuration.Validate(); !errors.Is(err, ErrIncompleteLineSettings) {
		t.Fatalf("expected ErrIncompleteLineSettings, got %v", err)
	}

	configuration.Line = LineSettings{ChannelID: "123", ChannelSecret: "secret", RedirectURL: "https://app.example.com/cb"}
	if !configuration.Line.Enabled() {
		t.Fatalf("expected LINE settings to be enabled")
	}
	if err := configuration.Validate(); err != nil {
		t.Fatalf("expected valid config with LINE, got %v", err)
	}
}

func TestTokenConfigValidateReportsSecretsFirst(t *testing.T) {
	t.Parallel()
	if err := (TokenConfig{}).Validate(); !errors.Is(err, ErrMissingAccessSecret) {
		t.Fatalf("expected ErrMissingAccessSecret, got %v", err)
	}
}
