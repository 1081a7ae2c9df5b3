package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/appsqa/appsqa-auth/internal/http/middleware"
	"github.com/appsqa/appsqa-auth/internal/service"
)

// AuthHandler serves the passwordless login flow and session endpoints.
type AuthHandler struct {
	Passwordless *service.PasswordlessService
	Sessions     *service.SessionService
	Logger       *zap.Logger
}

func NewAuthHandler(passwordless *service.PasswordlessService, sessions *service.SessionService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{Passwordless: passwordless, Sessions: sessions, Logger: logger}
}

// PasswordlessRequest starts a login: stores a single-use token and mails
// it as a link.
func (h *AuthHandler) PasswordlessRequest(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "email is required.",
		})
		return
	}

	result, err := h.Passwordless.Request(c.Request.Context(), req.Email, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	resp := gin.H{"success": true, "isNewUser": result.IsNewUser}
	if result.SessionToken != "" {
		resp["token"] = result.SessionToken
	}
	c.JSON(http.StatusOK, resp)
}

// PasswordlessVerify trades a login token for a session.
func (h *AuthHandler) PasswordlessVerify(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "token is required.",
		})
		return
	}

	user, session, err := h.Passwordless.Verify(c.Request.Context(), req.Token, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":  newUserView(user),
		"token": session.Token,
	})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "no_session",
			"error_description": "No authenticated user.",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newUserView(user)})
}

// Logout ends the current session.
func (h *AuthHandler) Logout(c *gin.Context) {
	tok, ok := middleware.GetSessionToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "no_token",
			"error_description": "No session token.",
		})
		return
	}

	if err := h.Sessions.End(c.Request.Context(), tok); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
