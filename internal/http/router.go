package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/appsqa/appsqa-auth/internal/config"
	"github.com/appsqa/appsqa-auth/internal/http/handler"
	"github.com/appsqa/appsqa-auth/internal/http/middleware"
	"github.com/appsqa/appsqa-auth/internal/metrics"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	logger *zap.Logger,
	authHandler *handler.AuthHandler,
	oauthHandler *handler.OAuthHandler,
	ssoHandler *handler.SSOHandler,
	authMiddleware *middleware.Auth,
	rateLimiter *middleware.RateLimiter,
	collector *metrics.Collector,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	authGroup := r.Group("/auth")
	{
		passwordless := authGroup.Group("/passwordless")
		{
			passwordless.POST("/request", authHandler.PasswordlessRequest)
			passwordless.POST("/verify", authHandler.PasswordlessVerify)
		}

		authGroup.GET("/me", authMiddleware.RequireSession, authHandler.Me)
		authGroup.POST("/logout", authMiddleware.RequireSession, authHandler.Logout)
	}

	r.GET("/.well-known/openid-configuration", oauthHandler.OpenIDConfig)

	oauth := r.Group("/oauth")
	{
		oauth.GET("/authorize", authMiddleware.RequireSession, oauthHandler.Authorize)
		oauth.POST("/consent", authMiddleware.RequireSession, oauthHandler.Consent)
		oauth.POST("/token", oauthHandler.Token)
		oauth.GET("/userinfo", oauthHandler.UserInfo)
		oauth.POST("/revoke", oauthHandler.Revoke)
	}

	sso := r.Group("/sso")
	{
		sso.POST("/generate-token", authMiddleware.RequireSession, ssoHandler.Generate)
		sso.POST("/validate-token", ssoHandler.Validate)
		sso.DELETE("/revoke-token/:id", authMiddleware.RequireSession, ssoHandler.Revoke)
		sso.GET("/active-tokens", authMiddleware.RequireSession, ssoHandler.ActiveTokens)
	}

	r.GET("/metrics", gin.WrapH(collector.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
