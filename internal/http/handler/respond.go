package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/appsqa/appsqa-auth/internal/domain"
	"github.com/appsqa/appsqa-auth/internal/service"
)

// UserView is the user profile shape returned by every endpoint.
type UserView struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Active      bool       `json:"active"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func newUserView(user domain.User) UserView {
	return UserView{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Active:      user.Active,
		LastLoginAt: user.LastLoginAt,
	}
}

// respondError maps AuthError to its status and code; anything else is an
// internal failure, logged with full detail and masked to the caller.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var authErr *service.AuthError
	if errors.As(err, &authErr) {
		c.JSON(authErr.Status, gin.H{
			"error":             authErr.Code,
			"error_description": authErr.Description,
		})
		return
	}

	if logger == nil {
		logger = zap.L()
	}
	logger.Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":             "server_error",
		"error_description": "Internal server error.",
	})
}
