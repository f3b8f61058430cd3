package authkit

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouteDependencies wires the auth routes. Google and Line are optional; a nil
// provider leaves its routes unmounted.
type RouteDependencies struct {
	Configuration ServerConfig
	Controller    *SessionController
	Google        GoogleIDTokenVerifier
	Line          LineAuthenticator
	Nonces        NonceStore
	Logger        *zap.Logger
}

type loginResponse struct {
	UserID           string    `json:"userId"`
	Email            string    `json:"email"`
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type revokeRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

// MountAuthRoutes registers the /auth endpoints.
func MountAuthRoutes(router gin.IRouter, dependencies RouteDependencies) {
	if dependencies.Controller == nil {
		panic("session controller is required")
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handlers := &authHandlers{
		configuration: dependencies.Configuration,
		controller:    dependencies.Controller,
		google:        dependencies.Google,
		line:          dependencies.Line,
		nonces:        dependencies.Nonces,
		logger:        logger,
	}

	if handlers.google != nil {
		router.POST("/auth/google", handlers.handleGoogleLogin)
	}
	if handlers.line != nil {
		if handlers.nonces == nil {
			panic("nonce store is required for LINE login")
		}
		router.GET("/auth/line", handlers.handleLineRedirect)
		router.GET("/auth/line/callback", handlers.handleLineCallback)
	}
	router.POST("/auth/verify", handlers.handleVerify)
	router.POST("/auth/refresh", handlers.handleRefresh)
	router.POST("/auth/revoke", handlers.handleRevoke)
}

type authHandlers struct {
	configuration ServerConfig
	controller    *SessionController
	google        GoogleIDTokenVerifier
	line          LineAuthenticator
	nonces        NonceStore
	logger        *zap.Logger
}

func (handlers *authHandlers) handleGoogleLogin(contextGin *gin.Context) {
	var inbound struct {
		GoogleIDToken string `json:"google_id_token"`
	}
	if err := contextGin.ShouldBindJSON(&inbound); err != nil || strings.TrimSpace(inbound.GoogleIDToken) == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	if !handlers.configuration.AllowInsecureHTTP && !isHTTPS(contextGin.Request) {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "https_required"})
		return
	}
	profile, verifyErr := handlers.google.VerifyIDToken(contextGin.Request.Context(), inbound.GoogleIDToken)
	if verifyErr != nil {
		handlers.respondProviderError(contextGin, ProviderGoogle, verifyErr)
		return
	}
	handlers.completeLogin(contextGin, GoogleProfileOf(profile))
}

func (handlers *authHandlers) handleLineRedirect(contextGin *gin.Context) {
	state, issueErr := handlers.nonces.Issue(contextGin.Request.Context())
	if issueErr != nil {
		handlers.logger.Error("oauth state issue failed",
			zap.String("code", "auth.line.state_issue_failed"),
			zap.Error(issueErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.Redirect(http.StatusFound, handlers.line.AuthCodeURL(state))
}

func (handlers *authHandlers) handleLineCallback(contextGin *gin.Context) {
	if providerError := contextGin.Query("error"); providerError != "" {
		handlers.logger.Info("line authorization denied",
			zap.String("code", "auth.line.denied"),
			zap.String("provider_error", providerError))
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
		return
	}
	state := contextGin.Query("state")
	code := contextGin.Query("code")
	if state == "" || code == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ErrBadRequest.Error()})
		return
	}
	if consumeErr := handlers.nonces.Consume(contextGin.Request.Context(), state); consumeErr != nil {
		handlers.logger.Warn("oauth state rejected",
			zap.String("code", "auth.line.state_rejected"),
			zap.Error(consumeErr))
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ErrBadRequest.Error()})
		return
	}
	profile, exchangeErr := handlers.line.Exchange(contextGin.Request.Context(), code)
	if exchangeErr != nil {
		handlers.respondProviderError(contextGin, ProviderLine, exchangeErr)
		return
	}
	handlers.completeLogin(contextGin, LineProfileOf(profile))
}

func (handlers *authHandlers) completeLogin(contextGin *gin.Context, profile ProviderProfile) {
	result, loginErr := handlers.controller.Login(contextGin.Request.Context(), profile)
	if loginErr != nil {
		respondError(contextGin, loginErr)
		return
	}
	if redirectURL := handlers.configuration.FrontendRedirectURL; redirectURL != "" {
		contextGin.Redirect(http.StatusFound, frontendRedirect(redirectURL, result.Tokens, handlers.configuration.Tokens.AccessTTL))
		return
	}
	contextGin.JSON(http.StatusOK, loginResponse{
		UserID:           result.User.ID,
		Email:            result.User.Email,
		AccessToken:      result.Tokens.AccessToken,
		AccessExpiresAt:  result.Tokens.AccessExpiresAt,
		RefreshToken:     result.Tokens.RefreshToken,
		RefreshExpiresAt: result.Tokens.RefreshExpiresAt,
	})
}

func (handlers *authHandlers) respondProviderError(contextGin *gin.Context, provider ProviderType, providerErr error) {
	if errors.Is(providerErr, ErrProviderRejected) {
		handlers.logger.Info("provider rejected credential",
			zap.String("code", "auth.provider.rejected"),
			zap.String("provider", string(provider)),
			zap.Error(providerErr))
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
		return
	}
	handlers.logger.Error("provider unreachable",
		zap.String("code", "auth.provider.unavailable"),
		zap.String("provider", string(provider)),
		zap.Error(providerErr))
	contextGin.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": ErrUnavailable.Error()})
}

func (handlers *authHandlers) handleVerify(contextGin *gin.Context) {
	var inbound verifyRequest
	if err := contextGin.ShouldBindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Token) == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	claims, verifyErr := handlers.controller.Verify(contextGin.Request.Context(), inbound.Token)
	if verifyErr != nil {
		respondError(contextGin, verifyErr)
		return
	}
	contextGin.JSON(http.StatusOK, claims)
}

func (handlers *authHandlers) handleRefresh(contextGin *gin.Context) {
	var inbound refreshRequest
	if err := contextGin.ShouldBindJSON(&inbound); err != nil || strings.TrimSpace(inbound.RefreshToken) == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	grant, refreshErr := handlers.controller.Refresh(contextGin.Request.Context(), inbound.RefreshToken)
	if refreshErr != nil {
		respondError(contextGin, refreshErr)
		return
	}
	contextGin.JSON(http.StatusOK, refreshResponse{AccessToken: grant.AccessToken, ExpiresAt: grant.ExpiresAt})
}

func (handlers *authHandlers) handleRevoke(contextGin *gin.Context) {
	var inbound revokeRequest
	if err := contextGin.ShouldBindJSON(&inbound); err != nil || strings.TrimSpace(inbound.AccessToken) == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	if logoutErr := handlers.controller.Logout(contextGin.Request.Context(), inbound.AccessToken, strings.TrimSpace(inbound.RefreshToken)); logoutErr != nil {
		respondError(contextGin, logoutErr)
		return
	}
	contextGin.JSON(http.StatusOK, "success")
}

// frontendRedirect places the credentials in the URL fragment so they never reach server logs.
func frontendRedirect(base string, tokens TokenPair, accessTTL time.Duration) string {
	fragment := url.Values{}
	fragment.Set("access_token", tokens.AccessToken)
	fragment.Set("refresh_token", tokens.RefreshToken)
	fragment.Set("expires_in", strconv.FormatInt(int64(accessTTL.Seconds()), 10))
	return base + "#" + fragment.Encode()
}

func isHTTPS(request *http.Request) bool {
	if request.TLS != nil {
		return true
	}
	scheme := request.Header.Get("X-Forwarded-Proto")
	if strings.EqualFold(scheme, "https") {
		return true
	}
	forwarded := request.Header.Get("Forwarded")
	if forwarded != "" && strings.Contains(strings.ToLower(forwarded), "proto=https") {
		return true
	}
	host, _, splitErr := net.SplitHostPort(request.Host)
	if splitErr == nil && host == "localhost" {
		return true
	}
	return false
}
