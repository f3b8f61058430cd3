package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/fedauth/internal/authkit"
	"go.uber.org/zap"
)

// ProfileReader loads the canonical user behind verified claims.
type ProfileReader interface {
	Profile(ctx context.Context, claims *authkit.SessionClaims) (authkit.User, error)
}

type profileResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	FirstName   string    `json:"firstName,omitempty"`
	LastName    string    `json:"lastName,omitempty"`
	Picture     string    `json:"picture,omitempty"`
	Provider    string    `json:"provider"`
	Plan        string    `json:"plan"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HandleProfile returns the authenticated user's canonical profile.
// It must run behind authkit.RequireSession.
func HandleProfile(logger *zap.Logger, profiles ProfileReader) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if profiles == nil {
		panic("profile reader is required")
	}

	return func(contextGin *gin.Context) {
		claims, found := authkit.ClaimsFromContext(contextGin)
		if !found {
			logger.Warn("missing auth claims on context",
				zap.String("code", "api.profile.missing_claims"))
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": authkit.ErrUnauthorized.Error()})
			return
		}

		user, profileErr := profiles.Profile(contextGin.Request.Context(), claims)
		if profileErr != nil {
			if errors.Is(profileErr, authkit.ErrUserNotFound) {
				logger.Warn("user profile missing",
					zap.String("code", "api.profile.missing"),
					zap.String("user_id", claims.GetUserID()))
			}
			contextGin.AbortWithStatusJSON(authkit.StatusForError(profileErr), gin.H{"error": authkit.ErrorCode(profileErr)})
			return
		}

		contextGin.JSON(http.StatusOK, profileResponse{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
			FirstName:   user.FirstName,
			LastName:    user.LastName,
			Picture:     user.Picture,
			Provider:    string(user.Provider),
			Plan:        user.Plan,
			CreatedAt:   user.CreatedAt,
			UpdatedAt:   user.UpdatedAt,
		})
	}
}
