package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/appsqa/appsqa-auth/internal/domain"
	"github.com/appsqa/appsqa-auth/internal/http/middleware"
	"github.com/appsqa/appsqa-auth/internal/service"
)

// SSOHandler serves the handoff endpoints: generation and revocation for
// hub users, validation for satellite services calling back in.
type SSOHandler struct {
	SSO    *service.SSOService
	Logger *zap.Logger
}

func NewSSOHandler(sso *service.SSOService, logger *zap.Logger) *SSOHandler {
	return &SSOHandler{SSO: sso, Logger: logger}
}

type ssoTokenView struct {
	ID        string    `json:"id"`
	Service   string    `json:"service"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

func newSSOTokenView(token domain.SSOToken) ssoTokenView {
	return ssoTokenView{
		ID:        token.ID,
		Service:   token.Service,
		IPAddress: token.IPAddress,
		UserAgent: token.UserAgent,
		ExpiresAt: token.ExpiresAt,
		CreatedAt: token.CreatedAt,
	}
}

// Generate mints a handoff token into a satellite service.
func (h *SSOHandler) Generate(c *gin.Context) {
	user, ok := middleware.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "no_session",
			"error_description": "No authenticated user.",
		})
		return
	}

	var req struct {
		Service string `json:"service" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "service is required.",
		})
		return
	}

	handoff, err := h.SSO.Generate(c.Request.Context(), user, req.Service, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":       handoff.Token,
		"redirectUrl": handoff.RedirectURL,
		"expiresAt":   handoff.ExpiresAt,
		"user":        newUserView(handoff.User),
	})
}

// Validate is the service-to-hub call consuming a handoff token. Public:
// the caller authenticates by presenting the token itself.
func (h *SSOHandler) Validate(c *gin.Context) {
	var req struct {
		Token   string `json:"token" binding:"required"`
		Service string `json:"service" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "token and service are required.",
		})
		return
	}

	user, tokenID, err := h.SSO.Validate(c.Request.Context(), req.Token, req.Service)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":    newUserView(user),
		"tokenId": tokenID,
	})
}

// Revoke preempts a not-yet-consumed handoff token.
func (h *SSOHandler) Revoke(c *gin.Context) {
	user, ok := middleware.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "no_session",
			"error_description": "No authenticated user.",
		})
		return
	}

	tokenID := c.Param("id")
	if err := h.SSO.Revoke(c.Request.Context(), user, tokenID); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ActiveTokens lists the caller's unexpired handoff tokens.
func (h *SSOHandler) ActiveTokens(c *gin.Context) {
	user, ok := middleware.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "no_session",
			"error_description": "No authenticated user.",
		})
		return
	}

	tokens, err := h.SSO.ListActive(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	views := make([]ssoTokenView, 0, len(tokens))
	for _, tok := range tokens {
		views = append(views, newSSOTokenView(tok))
	}
	c.JSON(http.StatusOK, gin.H{"tokens": views})
}
