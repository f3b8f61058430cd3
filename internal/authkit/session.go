package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tyemirov/fedauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

// LoginResult carries the canonical user and the credentials issued for it.
type LoginResult struct {
	User   User
	Tokens TokenPair
}

// AccessGrant is the result of a refresh: a new access credential only.
type AccessGrant struct {
	AccessToken string
	ExpiresAt   time.Time
}

// SessionDependencies wires the collaborators of a SessionController.
type SessionDependencies struct {
	Resolver    *IdentityResolver
	Issuer      *TokenIssuer
	Verifier    *TokenVerifier
	Revocations *Revocations
	Users       UserStore
	Metrics     MetricsRecorder
	Logger      *zap.Logger
}

// SessionController orchestrates login, verification, refresh and logout.
// It keeps no per-session state; every failure is returned joined with one of
// ErrUnauthorized, ErrBadRequest or ErrUnavailable.
type SessionController struct {
	resolver    *IdentityResolver
	issuer      *TokenIssuer
	verifier    *TokenVerifier
	revocations *Revocations
	users       UserStore
	metrics     MetricsRecorder
	logger      *zap.Logger
}

// NewSessionController validates dependencies and constructs a controller.
func NewSessionController(dependencies SessionDependencies) (*SessionController, error) {
	switch {
	case dependencies.Resolver == nil:
		return nil, errors.New("session_controller.new: identity resolver is required")
	case dependencies.Issuer == nil:
		return nil, errors.New("session_controller.new: token issuer is required")
	case dependencies.Verifier == nil:
		return nil, errors.New("session_controller.new: token verifier is required")
	case dependencies.Revocations == nil:
		return nil, errors.New("session_controller.new: revocations are required")
	case dependencies.Users == nil:
		return nil, errors.New("session_controller.new: user store is required")
	}
	metrics := dependencies.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionController{
		resolver:    dependencies.Resolver,
		issuer:      dependencies.Issuer,
		verifier:    dependencies.Verifier,
		revocations: dependencies.Revocations,
		users:       dependencies.Users,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// Login resolves the provider profile to a canonical user and issues both credentials.
func (controller *SessionController) Login(ctx context.Context, profile ProviderProfile) (LoginResult, error) {
	user, resolveErr := controller.resolver.Resolve(ctx, profile)
	if resolveErr != nil {
		controller.metrics.Increment(MetricLoginFailure)
		controller.logger.Warn("login rejected",
			zap.String("code", "session.login.resolve_failed"),
			zap.String("provider", string(profile.Provider)),
			zap.Error(resolveErr))
		return LoginResult{}, resolveErr
	}
	tokens, issueErr := controller.issuer.Issue(user.ID, user.Email)
	if issueErr != nil {
		controller.metrics.Increment(MetricLoginFailure)
		controller.logger.Error("credential issue failed",
			zap.String("code", "session.login.issue_failed"),
			zap.String("user_id", user.ID),
			zap.Error(issueErr))
		return LoginResult{}, fmt.Errorf("session.login: %w", issueErr)
	}
	controller.metrics.Increment(MetricLoginSuccess)
	controller.logger.Info("login issued",
		zap.String("code", "session.login.issued"),
		zap.String("user_id", user.ID),
		zap.String("provider", string(profile.Provider)))
	return LoginResult{User: user, Tokens: tokens}, nil
}

// Verify validates an access credential and returns its claims.
func (controller *SessionController) Verify(ctx context.Context, accessToken string) (*SessionClaims, error) {
	claims, verifyErr := controller.verifier.VerifyAccess(ctx, accessToken)
	if verifyErr != nil {
		controller.metrics.Increment(MetricVerifyRejected)
		controller.logger.Debug("access credential rejected",
			zap.String("code", "session.verify.rejected"),
			zap.Error(verifyErr))
		return nil, categorizeVerification(verifyErr)
	}
	controller.metrics.Increment(MetricVerifySuccess)
	return claims, nil
}

// Refresh validates a refresh credential and issues a new access credential for the same subject.
// The refresh credential is neither rotated nor revoked.
func (controller *SessionController) Refresh(ctx context.Context, refreshToken string) (AccessGrant, error) {
	claims, verifyErr := controller.verifier.VerifyRefresh(ctx, refreshToken)
	if verifyErr != nil {
		controller.metrics.Increment(MetricRefreshRejected)
		controller.logger.Info("refresh rejected",
			zap.String("code", "session.refresh.rejected"),
			zap.Error(verifyErr))
		return AccessGrant{}, categorizeVerification(verifyErr)
	}
	accessToken, expiresAt, issueErr := controller.issuer.IssueAccess(claims.GetUserID(), claims.GetUserEmail())
	if issueErr != nil {
		controller.metrics.Increment(MetricRefreshRejected)
		controller.logger.Error("access credential issue failed",
			zap.String("code", "session.refresh.issue_failed"),
			zap.String("user_id", claims.GetUserID()),
			zap.Error(issueErr))
		return AccessGrant{}, fmt.Errorf("session.refresh: %w", issueErr)
	}
	controller.metrics.Increment(MetricRefreshSuccess)
	controller.logger.Info("access credential refreshed",
		zap.String("code", "session.refresh.issued"),
		zap.String("user_id", claims.GetUserID()))
	return AccessGrant{AccessToken: accessToken, ExpiresAt: expiresAt}, nil
}

// Logout revokes the access credential and, when supplied, the refresh credential.
// An empty refreshToken is a partial logout.
func (controller *SessionController) Logout(ctx context.Context, accessToken string, refreshToken string) error {
	if revokeErr := controller.revoke(ctx, accessToken, AccessTokenKind); revokeErr != nil {
		return revokeErr
	}
	if refreshToken != "" {
		if revokeErr := controller.revoke(ctx, refreshToken, RefreshTokenKind); revokeErr != nil {
			return revokeErr
		}
	}
	controller.metrics.Increment(MetricLogoutSuccess)
	controller.logger.Info("logout completed",
		zap.String("code", "session.logout.revoked"),
		zap.Bool("refresh_revoked", refreshToken != ""))
	return nil
}

func (controller *SessionController) revoke(ctx context.Context, token string, kind TokenKind) error {
	revokeErr := controller.revocations.Revoke(ctx, token)
	if revokeErr == nil {
		return nil
	}
	controller.metrics.Increment(MetricLogoutFailure)
	controller.logger.Warn("revocation failed",
		zap.String("code", "session.logout.revoke_failed"),
		zap.String("token_kind", string(kind)),
		zap.Error(revokeErr))
	if errors.Is(revokeErr, ErrTokenNotDecodable) || errors.Is(revokeErr, ErrEmptyToken) {
		return categorize(ErrBadRequest, revokeErr)
	}
	return categorize(ErrUnavailable, revokeErr)
}

// Profile returns the canonical user behind verified claims.
func (controller *SessionController) Profile(ctx context.Context, claims *SessionClaims) (User, error) {
	user, findErr := controller.users.FindByID(ctx, claims.GetUserID())
	if findErr != nil {
		if errors.Is(findErr, ErrUserNotFound) {
			return User{}, categorize(ErrUnauthorized, findErr)
		}
		controller.logger.Error("profile lookup failed",
			zap.String("code", "session.profile.lookup_failed"),
			zap.String("user_id", claims.GetUserID()),
			zap.Error(findErr))
		return User{}, categorize(ErrUnavailable, findErr)
	}
	return user, nil
}

// categorizeVerification hides the rejection reason behind ErrUnauthorized,
// except for revocation store failures which surface as ErrUnavailable.
func categorizeVerification(verifyErr error) error {
	if errors.Is(verifyErr, sessionvalidator.ErrRevocationCheck) {
		return categorize(ErrUnavailable, verifyErr)
	}
	return categorize(ErrUnauthorized, verifyErr)
}
