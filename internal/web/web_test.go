package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tyemirov/fedauth/internal/authkit"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestConfigureCORS(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	middleware, err := ConfigureCORS(zaptest.NewLogger(t), []string{"http://localhost:3000"})
	if err != nil {
		t.Fatalf("unexpected error configuring CORS: %v", err)
	}
	router.Use(middleware)
	router.POST("/auth/refresh", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodOptions, "/auth/refresh", nil)
	request.Header.Set("Origin", "http://localhost:3000")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	request.Header.Set("Access-Control-Request-Headers", "Authorization")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from preflight, got %d", recorder.Code)
	}
	if origin := recorder.Header().Get("Access-Control-Allow-Origin"); origin != "http://localhost:3000" {
		t.Fatalf("unexpected allowed origin header: %q", origin)
	}
}

func TestConfigureCORSRejectsInvalidOrigins(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name    string
		origins []string
		want    error
	}{
		{name: "nil", origins: nil, want: errEmptyAllowedOrigins},
		{name: "blank", origins: []string{"  "}, want: errEmptyAllowedOrigins},
		{name: "wildcard", origins: []string{"*"}, want: errWildcardOrigin},
		{name: "path", origins: []string{"https://app.example.com/login"}, want: errInvalidOrigin},
		{name: "scheme", origins: []string{"ftp://app.example.com"}, want: errInvalidOrigin},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ConfigureCORS(zap.NewNop(), testCase.origins); !errors.Is(err, testCase.want) {
				t.Fatalf("expected %v, got %v", testCase.want, err)
			}
		})
	}
}

func TestSanitizeOriginsDeduplicates(t *testing.T) {
	t.Parallel()
	sanitized, err := sanitizeOrigins(zap.NewNop(), []string{"https://App.example.com", "https://App.example.com/", " https://App.example.com "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sanitized) != 1 || sanitized[0] != "https://App.example.com" {
		t.Fatalf("unexpected sanitized origins: %v", sanitized)
	}
}

type stubProfileReader struct {
	user authkit.User
	err  error
}

func (reader stubProfileReader) Profile(ctx context.Context, claims *authkit.SessionClaims) (authkit.User, error) {
	if reader.err != nil {
		return authkit.User{}, reader.err
	}
	return reader.user, nil
}

func newProfileRouter(reader ProfileReader, claims *authkit.SessionClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(contextGin *gin.Context) {
		if claims != nil {
			contextGin.Set(authkit.ClaimsContextKey, claims)
		}
		contextGin.Next()
	})
	router.GET("/user/profile", HandleProfile(zap.NewNop(), reader))
	return router
}

func testClaims(userID string) *authkit.SessionClaims {
	return &authkit.SessionClaims{
		Email:            "ada@example.com",
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
	}
}

func TestHandleProfile(t *testing.T) {
	t.Parallel()
	createdAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	reader := stubProfileReader{user: authkit.User{
		ID:          "user-1",
		Email:       "ada@example.com",
		DisplayName: "Ada Lovelace",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Provider:    authkit.ProviderGoogle,
		Plan:        authkit.DefaultPlan,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}}
	router := newProfileRouter(reader, testClaims("user-1"))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/user/profile", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload["id"] != "user-1" || payload["email"] != "ada@example.com" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["provider"] != "google" || payload["plan"] != "free" {
		t.Fatalf("unexpected provider or plan: %v", payload)
	}
	if payload["displayName"] != "Ada Lovelace" {
		t.Fatalf("unexpected displayName: %v", payload["displayName"])
	}
}

func TestHandleProfileMissingClaims(t *testing.T) {
	t.Parallel()
	router := newProfileRouter(stubProfileReader{}, nil)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/user/profile", nil))

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when claims missing, got %d", recorder.Code)
	}
}

func TestHandleProfileErrors(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "missing user", err: fmt.Errorf("%w: %w", authkit.ErrUnauthorized, authkit.ErrUserNotFound), status: http.StatusUnauthorized},
		{name: "store down", err: fmt.Errorf("%w: %w", authkit.ErrUnavailable, errors.New("dial tcp")), status: http.StatusServiceUnavailable},
		{name: "uncategorized", err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			router := newProfileRouter(stubProfileReader{err: testCase.err}, testClaims("user-1"))
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/user/profile", nil))
			if recorder.Code != testCase.status {
				t.Fatalf("expected %d, got %d", testCase.status, recorder.Code)
			}
		})
	}
}
