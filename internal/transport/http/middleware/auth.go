package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"zerocode-chat/internal/app"
	"zerocode-chat/internal/model"
	"zerocode-chat/internal/transport/http/response"
)

const (
	ContextUserIDKey = "user_id"
	ContextUserKey   = "user"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// AuthToken accepts "Authorization: Bearer <jwt>", or a token query parameter for
// websocket upgrades where browsers cannot set headers. The token must still be the
// one stored for the user, so a logout revokes it immediately.
func AuthToken(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization token")
			c.Abort()
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, app.ErrSessionExpired), errors.Is(err, app.ErrNotLoggedIn):
				response.Error(c, http.StatusUnauthorized, response.CodeSessionExpired, "invalid or expired token")
			default:
				response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "authenticate failed")
			}
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, user.ID)
		c.Set(ContextUserKey, user)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader != "" {
		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			return "", false
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		return token, token != ""
	}
	token := strings.TrimSpace(c.Query("token"))
	return token, token != ""
}

// UserID returns the authenticated user id set by AuthToken.
func UserID(c *gin.Context) (string, bool) {
	raw, exists := c.Get(ContextUserIDKey)
	if !exists {
		return "", false
	}
	userID, ok := raw.(string)
	return userID, ok && userID != ""
}
