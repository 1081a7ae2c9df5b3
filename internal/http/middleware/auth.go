package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/appsqa/appsqa-auth/internal/domain"
	"github.com/appsqa/appsqa-auth/internal/service"
)

const (
	userKey         = "authUser"
	sessionTokenKey = "sessionToken"
)

// Auth is the access guard: the single enforcement point every protected
// request passes through. It resolves the bearer token to a session and
// attaches the user to the request, or rejects with the specific reason.
type Auth struct {
	Sessions *service.SessionService
}

// RequireSession validates the Authorization header and attaches the
// resolved user and raw session token to the context.
func (m *Auth) RequireSession(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":             "no_token",
			"error_description": "Authorization header required.",
		})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":             "no_token",
			"error_description": "Bearer token required.",
		})
		return
	}

	user, _, err := m.Sessions.Validate(c.Request.Context(), parts[1])
	if err != nil {
		var authErr *service.AuthError
		if errors.As(err, &authErr) {
			c.AbortWithStatusJSON(authErr.Status, gin.H{
				"error":             authErr.Code,
				"error_description": authErr.Description,
			})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Internal server error.",
		})
		return
	}

	c.Set(userKey, user)
	c.Set(sessionTokenKey, parts[1])
	c.Next()
}

// GetUser returns the authenticated user attached by RequireSession.
func GetUser(c *gin.Context) (domain.User, bool) {
	value, ok := c.Get(userKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := value.(domain.User)
	return user, ok
}

// GetSessionToken returns the raw bearer token attached by RequireSession.
func GetSessionToken(c *gin.Context) (string, bool) {
	value, ok := c.Get(sessionTokenKey)
	if !ok {
		return "", false
	}
	tok, ok := value.(string)
	return tok, ok
}
