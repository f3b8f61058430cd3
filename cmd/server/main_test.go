package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/fedauth/internal/authkit"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestZapLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(zapLoggerMiddleware(zaptest.NewLogger(t)))
	router.GET("/ping", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}

func TestRunServerMissingConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	err := runServer(&cobra.Command{}, nil)
	if err == nil {
		t.Fatalf("expected configuration error")
	}

	expectedMessage := "config.uninitialized_server_config: server configuration not prepared; PreRunE must execute before RunE"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func setValidConfig() {
	viper.Set("access_secret", "access-secret")
	viper.Set("refresh_secret", "refresh-secret")
	viper.Set("access_ttl", 15*time.Minute)
	viper.Set("refresh_ttl", 7*24*time.Hour)
	viper.Set("token_issuer", "fedauth")
}

func TestLoadServerConfigValidation(t *testing.T) {
	testCases := []struct {
		name     string
		override func()
		want     error
	}{
		{name: "missing access secret", override: func() { viper.Set("access_secret", "") }, want: authkit.ErrMissingAccessSecret},
		{name: "missing refresh secret", override: func() { viper.Set("refresh_secret", "") }, want: authkit.ErrMissingRefreshSecret},
		{name: "shared secret", override: func() { viper.Set("refresh_secret", "access-secret") }, want: authkit.ErrSharedTokenSecret},
		{name: "zero access ttl", override: func() { viper.Set("access_ttl", 0) }, want: authkit.ErrInvalidAccessTTL},
		{name: "zero refresh ttl", override: func() { viper.Set("refresh_ttl", 0) }, want: authkit.ErrInvalidRefreshTTL},
		{name: "refresh shorter than access", override: func() { viper.Set("refresh_ttl", time.Minute) }, want: authkit.ErrInvalidRefreshTTL},
		{name: "missing issuer", override: func() { viper.Set("token_issuer", "") }, want: authkit.ErrMissingTokenIssuer},
		{name: "cache longer than access", override: func() { viper.Set("revocation_cache_ttl", time.Hour) }, want: authkit.ErrInvalidRevocationCacheTTL},
		{name: "partial line settings", override: func() { viper.Set("line_channel_id", "123") }, want: authkit.ErrIncompleteLineSettings},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()
			setValidConfig()
			testCase.override()

			_, err := LoadServerConfig()
			if !errors.Is(err, testCase.want) {
				t.Fatalf("expected %v, got %v", testCase.want, err)
			}
			if !strings.HasPrefix(err.Error(), testCase.want.Error()+": ") {
				t.Fatalf("expected a described problem, got %q", err.Error())
			}
		})
	}
}

func TestLoadServerConfigDelegatesToValidate(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	setValidConfig()
	viper.Set("revocation_cache_ttl", time.Hour)

	_, loadErr := LoadServerConfig()
	validateErr := authkit.ServerConfig{
		Tokens: authkit.TokenConfig{
			Issuer:        "fedauth",
			AccessSecret:  []byte("access-secret"),
			AccessTTL:     15 * time.Minute,
			RefreshSecret: []byte("refresh-secret"),
			RefreshTTL:    7 * 24 * time.Hour,
		},
		RevocationCacheTTL: time.Hour,
	}.Validate()
	if !errors.Is(loadErr, authkit.ErrInvalidRevocationCacheTTL) || !errors.Is(validateErr, authkit.ErrInvalidRevocationCacheTTL) {
		t.Fatalf("expected both to reject the cache ttl, got %v and %v", loadErr, validateErr)
	}
	expectedMessage := "config.invalid_revocation_cache_ttl: revocation_cache_ttl must be between zero and access_ttl"
	if loadErr.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, loadErr.Error())
	}
}

func TestDescribeConfigProblemPassesUnknownErrors(t *testing.T) {
	unknown := errors.New("config.unknown")
	if err := describeConfigProblem(unknown); err != unknown {
		t.Fatalf("expected unknown error unchanged, got %v", err)
	}
}

func TestLoadServerConfigMissingAccessSecretReportsField(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	viper.Set("refresh_secret", "refresh-secret")

	_, err := LoadServerConfig()
	expectedMessage := "config.missing_access_secret: access_secret must be provided"
	if err == nil || err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %v", expectedMessage, err)
	}
}

func TestLoadServerConfigDefaultsFromFlags(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	newRootCommand()
	viper.Set("access_secret", "access-secret")
	viper.Set("refresh_secret", "refresh-secret")

	serverConfig, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if serverConfig.Tokens.AccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl %s", serverConfig.Tokens.AccessTTL)
	}
	if serverConfig.Tokens.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected refresh ttl %s", serverConfig.Tokens.RefreshTTL)
	}
	if serverConfig.Tokens.Issuer != "fedauth" {
		t.Fatalf("unexpected issuer %q", serverConfig.Tokens.Issuer)
	}
	if serverConfig.NonceTTL != 5*time.Minute {
		t.Fatalf("unexpected nonce ttl %s", serverConfig.NonceTTL)
	}
	if serverConfig.RevocationCacheTTL != 0 {
		t.Fatalf("expected cache disabled, got %s", serverConfig.RevocationCacheTTL)
	}
}

func TestLoadEnvFile(t *testing.T) {
	const key = "FEDAUTH_TEST_ENV_FILE_VALUE"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	envPath := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(envPath, []byte(key+"=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	if err := loadEnvFile(envPath); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Fatalf("expected value from env file, got %q", got)
	}
	if err := loadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored, got %v", err)
	}
}

func TestOpenBackendsSelectsStoresByScheme(t *testing.T) {
	stores := newBackends(zaptest.NewLogger(t))
	defer stores.Close()
	ctx := context.Background()
	clock := authkit.NewSystemClock()

	memoryUsers, err := stores.openUserStore(ctx, "", clock)
	if err != nil {
		t.Fatalf("open memory users: %v", err)
	}
	if _, ok := memoryUsers.(*authkit.MemoryUserStore); !ok {
		t.Fatalf("expected memory user store, got %T", memoryUsers)
	}
	memoryRevocations, err := stores.openRevocationStore(ctx, "", clock)
	if err != nil {
		t.Fatalf("open memory revocations: %v", err)
	}
	if _, ok := memoryRevocations.(*authkit.MemoryRevocationStore); !ok {
		t.Fatalf("expected memory revocation store, got %T", memoryRevocations)
	}

	sqliteURL := "sqlite://" + filepath.Join(t.TempDir(), "fedauth.db")
	databaseUsers, err := stores.openUserStore(ctx, sqliteURL, clock)
	if err != nil {
		t.Fatalf("open sqlite users: %v", err)
	}
	if _, ok := databaseUsers.(*authkit.DatabaseUserStore); !ok {
		t.Fatalf("expected database user store, got %T", databaseUsers)
	}
	databaseRevocations, err := stores.openRevocationStore(ctx, revocationStoreURL(runtimeSettings{DatabaseURL: sqliteURL}), clock)
	if err != nil {
		t.Fatalf("open sqlite revocations: %v", err)
	}
	if _, ok := databaseRevocations.(*authkit.DatabaseRevocationStore); !ok {
		t.Fatalf("expected database revocation store, got %T", databaseRevocations)
	}
	if len(stores.databases) != 1 {
		t.Fatalf("expected one shared sqlite connection, got %d", len(stores.databases))
	}

	if _, err := stores.openRevocationStore(ctx, "ftp://example.com", clock); !errors.Is(err, errUnsupportedStoreScheme) {
		t.Fatalf("expected errUnsupportedStoreScheme, got %v", err)
	}
}

type stubGoogleVerifier struct {
	profile authkit.GoogleProfile
}

func (verifier stubGoogleVerifier) VerifyIDToken(ctx context.Context, idToken string) (authkit.GoogleProfile, error) {
	if idToken != "valid-google-token" {
		return authkit.GoogleProfile{}, authkit.ErrProviderRejected
	}
	return verifier.profile, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	original := buildGoogleVerifier
	buildGoogleVerifier = func(ctx context.Context, clientID string) (authkit.GoogleIDTokenVerifier, error) {
		return stubGoogleVerifier{profile: authkit.GoogleProfile{
			GivenName:  "Ada",
			FamilyName: "Lovelace",
			Emails:     []string{"ada@example.com"},
		}}, nil
	}
	t.Cleanup(func() { buildGoogleVerifier = original })

	clock := authkit.NewSystemClock()
	registry := prometheus.NewRegistry()
	router, err := buildRouter(context.Background(), routerDependencies{
		logger: zap.NewNop(),
		configuration: authkit.ServerConfig{
			Tokens: authkit.TokenConfig{
				Issuer:        "fedauth",
				AccessSecret:  []byte("access-secret"),
				AccessTTL:     15 * time.Minute,
				RefreshSecret: []byte("refresh-secret"),
				RefreshTTL:    7 * 24 * time.Hour,
			},
			GoogleWebClientID: "client-id",
			NonceTTL:          5 * time.Minute,
			AllowInsecureHTTP: true,
		},
		users:           authkit.NewMemoryUserStore(clock),
		revocationStore: authkit.NewMemoryRevocationStore(),
		metrics:         authkit.NewPrometheusMetrics(registry),
		gatherer:        registry,
		clock:           clock,
	})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	return router, registry
}

func performJSON(t *testing.T, router http.Handler, method string, path string, body interface{}, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	request := httptest.NewRequest(method, path, &payload)
	request.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		request.Header.Set("Authorization", "Bearer "+bearer)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestBuildRouterSessionLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	loginRecorder := performJSON(t, router, http.MethodPost, "/auth/google", map[string]string{"google_id_token": "valid-google-token"}, "")
	if loginRecorder.Code != http.StatusOK {
		t.Fatalf("expected login 200, got %d: %s", loginRecorder.Code, loginRecorder.Body.String())
	}
	var login struct {
		UserID       string `json:"userId"`
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(loginRecorder.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	profileRecorder := performJSON(t, router, http.MethodGet, "/user/profile", nil, login.AccessToken)
	if profileRecorder.Code != http.StatusOK {
		t.Fatalf("expected profile 200, got %d", profileRecorder.Code)
	}
	if !strings.Contains(profileRecorder.Body.String(), login.UserID) {
		t.Fatalf("expected profile for %s, got %s", login.UserID, profileRecorder.Body.String())
	}

	revokeRecorder := performJSON(t, router, http.MethodPost, "/auth/revoke", map[string]string{"accessToken": login.AccessToken}, "")
	if revokeRecorder.Code != http.StatusOK {
		t.Fatalf("expected revoke 200, got %d", revokeRecorder.Code)
	}

	revokedRecorder := performJSON(t, router, http.MethodGet, "/user/profile", nil, login.AccessToken)
	if revokedRecorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked profile 401, got %d", revokedRecorder.Code)
	}

	refreshRecorder := performJSON(t, router, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": login.RefreshToken}, "")
	if refreshRecorder.Code != http.StatusOK {
		t.Fatalf("expected refresh 200, got %d", refreshRecorder.Code)
	}
	var refreshed struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(refreshRecorder.Body.Bytes(), &refreshed); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if performJSON(t, router, http.MethodGet, "/user/profile", nil, refreshed.AccessToken).Code != http.StatusOK {
		t.Fatalf("expected refreshed access token to authorize profile")
	}
}

func TestBuildRouterOperationalEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	healthRecorder := performJSON(t, router, http.MethodGet, "/healthz", nil, "")
	if healthRecorder.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", healthRecorder.Code)
	}

	performJSON(t, router, http.MethodPost, "/auth/google", map[string]string{"google_id_token": "forged"}, "")
	metricsRecorder := performJSON(t, router, http.MethodGet, "/metrics", nil, "")
	if metricsRecorder.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", metricsRecorder.Code)
	}
	if !strings.Contains(metricsRecorder.Body.String(), "fedauth_auth_events_total") {
		t.Fatalf("expected auth event counter in metrics output")
	}
}

func TestBuildRouterRejectsForgedGoogleToken(t *testing.T) {
	router, _ := newTestRouter(t)
	recorder := performJSON(t, router, http.MethodPost, "/auth/google", map[string]string{"google_id_token": "forged"}, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestPruneCommandRemovesExpiredRecords(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	originalLogger := buildPruneLogger
	buildPruneLogger = func() (*zap.Logger, error) { return zaptest.NewLogger(t), nil }
	defer func() { buildPruneLogger = originalLogger }()

	sqliteURL := "sqlite://" + filepath.Join(t.TempDir(), "revocations.db")
	ctx := context.Background()
	database, err := authkit.OpenDatabase(ctx, sqliteURL)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	store, err := authkit.NewDatabaseRevocationStore(ctx, database)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	now := time.Now().UTC()
	if err := store.Insert(ctx, authkit.RevocationRecord{Fingerprint: "expired", ExpiresAt: now.Add(-time.Hour), CreatedAt: now.Add(-2 * time.Hour)}); err != nil {
		t.Fatalf("insert expired: %v", err)
	}
	if err := store.Insert(ctx, authkit.RevocationRecord{Fingerprint: "live", ExpiresAt: now.Add(time.Hour), CreatedAt: now}); err != nil {
		t.Fatalf("insert live: %v", err)
	}
	_ = database.Close()

	rootCommand := newRootCommand()
	var output bytes.Buffer
	rootCommand.SetOut(&output)
	rootCommand.SetArgs([]string{"prune-revocations", "--env_file", "", "--revocation_store_url", sqliteURL})
	if err := rootCommand.Execute(); err != nil {
		t.Fatalf("prune command: %v", err)
	}
	if !strings.Contains(output.String(), "removed 1 expired revocation records") {
		t.Fatalf("unexpected prune output %q", output.String())
	}
}
