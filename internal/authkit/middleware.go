package authkit

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/fedauth/pkg/sessionvalidator"
)

// ClaimsContextKey is the gin context key holding *SessionClaims after RequireSession.
const ClaimsContextKey = sessionvalidator.DefaultContextKey

// RequireSession validates the bearer access credential through the controller and injects claims.
func RequireSession(controller *SessionController) gin.HandlerFunc {
	if controller == nil {
		panic("session controller is required")
	}
	return func(contextGin *gin.Context) {
		accessToken := sessionvalidator.BearerToken(contextGin.Request)
		if accessToken == "" {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
			return
		}
		claims, verifyErr := controller.Verify(contextGin.Request.Context(), accessToken)
		if verifyErr != nil {
			respondError(contextGin, verifyErr)
			return
		}
		contextGin.Set(ClaimsContextKey, claims)
		contextGin.Next()
	}
}

// ClaimsFromContext returns the claims stored by RequireSession.
func ClaimsFromContext(contextGin *gin.Context) (*SessionClaims, bool) {
	claimsValue, found := contextGin.Get(ClaimsContextKey)
	if !found {
		return nil, false
	}
	claims, ok := claimsValue.(*SessionClaims)
	if !ok || claims == nil || claims.GetUserID() == "" {
		return nil, false
	}
	return claims, true
}

// StatusForError maps an error category to an HTTP status.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns the category code sent to clients for err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return ErrUnauthorized.Error()
	case errors.Is(err, ErrBadRequest):
		return ErrBadRequest.Error()
	case errors.Is(err, ErrUnavailable):
		return ErrUnavailable.Error()
	default:
		return "internal_error"
	}
}

func respondError(contextGin *gin.Context, err error) {
	contextGin.AbortWithStatusJSON(StatusForError(err), gin.H{"error": ErrorCode(err)})
}
