package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/appsqa/appsqa-auth/internal/http/middleware"
	"github.com/appsqa/appsqa-auth/internal/service"
)

// OAuthHandler serves the authorization server endpoints.
type OAuthHandler struct {
	OAuth     *service.OAuthService
	Discovery *service.DiscoveryService
	Logger    *zap.Logger
}

func NewOAuthHandler(oauth *service.OAuthService, discovery *service.DiscoveryService, logger *zap.Logger) *OAuthHandler {
	return &OAuthHandler{OAuth: oauth, Discovery: discovery, Logger: logger}
}

// Authorize handles GET /oauth/authorize for an authenticated user. A
// consented request redirects back to the client with a code; otherwise
// the response carries the consent prompt and a resumable authorize URL.
func (h *OAuthHandler) Authorize(c *gin.Context) {
	user, ok := middleware.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "no_session",
			"error_description": "No authenticated user.",
		})
		return
	}

	in := service.AuthorizeInput{
		ClientID:            c.Query("client_id"),
		RedirectURI:         c.Query("redirect_uri"),
		ResponseType:        c.DefaultQuery("response_type", "code"),
		Scope:               c.Query("scope"),
		State:               c.Query("state"),
		Nonce:               c.Query("nonce"),
		CodeChallenge:       c.Query("code_challenge"),
		CodeChallengeMethod: c.Query("code_challenge_method"),
	}
	if strings.TrimSpace(in.ClientID) == "" || strings.TrimSpace(in.RedirectURI) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "client_id and redirect_uri are required.",
		})
		return
	}

	result, err := h.OAuth.Authorize(c.Request.Context(), user, in)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	if result.ConsentRequired {
		c.JSON(http.StatusOK, gin.H{
			"consent_required": true,
			"client_name":      result.ClientName,
			"client_logo_url":  result.ClientLogoURL,
			"scope":            result.Scope,
			"resume_url":       result.ResumeURL,
		})
		return
	}

	c.Redirect(http.StatusFound, result.RedirectURL)
}

// Consent handles POST /oauth/consent: the user's approval or denial of a
// pending authorization.
func (h *OAuthHandler) Consent(c *gin.Context) {
	user, ok := middleware.GetUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "no_session",
			"error_description": "No authenticated user.",
		})
		return
	}

	var req struct {
		ClientID            string `json:"client_id" binding:"required"`
		RedirectURI         string `json:"redirect_uri" binding:"required"`
		ResponseType        string `json:"response_type"`
		Scope               string `json:"scope"`
		State               string `json:"state"`
		Nonce               string `json:"nonce"`
		CodeChallenge       string `json:"code_challenge"`
		CodeChallengeMethod string `json:"code_challenge_method"`
		Approved            bool   `json:"approved"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "client_id and redirect_uri are required.",
		})
		return
	}
	if req.ResponseType == "" {
		req.ResponseType = "code"
	}

	result, err := h.OAuth.Consent(c.Request.Context(), user, service.ConsentInput{
		AuthorizeInput: service.AuthorizeInput{
			ClientID:            req.ClientID,
			RedirectURI:         req.RedirectURI,
			ResponseType:        req.ResponseType,
			Scope:               req.Scope,
			State:               req.State,
			Nonce:               req.Nonce,
			CodeChallenge:       req.CodeChallenge,
			CodeChallengeMethod: req.CodeChallengeMethod,
		},
		Approved: req.Approved,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"redirect_url": result.RedirectURL})
}

// Token handles POST /oauth/token form exchanges.
func (h *OAuthHandler) Token(c *gin.Context) {
	var req struct {
		GrantType    string `form:"grant_type" binding:"required"`
		ClientID     string `form:"client_id"`
		ClientSecret string `form:"client_secret"`
		Code         string `form:"code"`
		RedirectURI  string `form:"redirect_uri"`
		CodeVerifier string `form:"code_verifier"`
		RefreshToken string `form:"refresh_token"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "grant_type is required.",
		})
		return
	}

	resp, err := h.OAuth.Token(c.Request.Context(), service.TokenInput{
		GrantType:    req.GrantType,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Code:         req.Code,
		RedirectURI:  req.RedirectURI,
		CodeVerifier: req.CodeVerifier,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UserInfo handles GET /oauth/userinfo with a bearer access token.
func (h *OAuthHandler) UserInfo(c *gin.Context) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_token",
			"error_description": "Bearer access token required.",
		})
		return
	}

	info, err := h.OAuth.UserInfo(c.Request.Context(), parts[1])
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Revoke handles POST /oauth/revoke. Per RFC 7009 the response does not
// reveal whether the token existed.
func (h *OAuthHandler) Revoke(c *gin.Context) {
	var req struct {
		Token        string `form:"token" binding:"required"`
		ClientID     string `form:"client_id"`
		ClientSecret string `form:"client_secret"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "token is required.",
		})
		return
	}

	if err := h.OAuth.Revoke(c.Request.Context(), req.ClientID, req.ClientSecret, req.Token); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// OpenIDConfig serves the OIDC discovery document.
func (h *OAuthHandler) OpenIDConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.Discovery.Document())
}
