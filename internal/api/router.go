package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ethanmsmith/whisperbox/internal/handlers"
	"github.com/ethanmsmith/whisperbox/internal/middleware"
)

// Deps collects everything the router needs.
type Deps struct {
	Pages         *handlers.PagesHandler
	Register      *handlers.RegisterHandler
	Auth          *handlers.AuthHandler
	Verify        *handlers.VerifyHandler
	SSO           *handlers.SSOHandler
	Authenticator *middleware.SessionAuthenticator
	HealthCheck   func() error
}

// NewRouter wires the HTTP surface.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.Pages == nil || deps.Register == nil || deps.Auth == nil ||
		deps.Verify == nil || deps.SSO == nil || deps.Authenticator == nil {
		return nil, errors.New("router: missing dependencies")
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		middleware.Recovery(),
		middleware.RequestLogger(),
		middleware.Metrics(),
		middleware.SecurityHeaders(),
	)

	// Public pages.
	router.GET("/", deps.Pages.Serve("home"))
	router.GET("/login", deps.Pages.Serve("login"))
	router.GET("/register", deps.Pages.Serve("register"))
	router.GET("/verified", deps.Pages.Serve("verified"))
	router.GET("/error", deps.Pages.Serve("error"))

	// The secrets page is the one thing worth logging in for.
	router.GET("/secrets", deps.Authenticator.RequirePage(), deps.Pages.Serve("secrets"))

	// Account lifecycle.
	router.POST("/register", deps.Register.Register)
	router.POST("/checkEmail", deps.Register.CheckEmail)
	router.GET("/verify/:userId/:uniqueString", deps.Verify.Verify)

	// Sessions.
	router.POST("/login", deps.Auth.Login)
	router.POST("/refresh", deps.Auth.Refresh)
	router.GET("/logout", deps.Auth.Logout)

	// Federated login.
	router.GET("/auth/google", deps.SSO.Begin)
	router.GET("/auth/google/secrets", deps.SSO.Callback)

	// Operational endpoints.
	router.GET("/health", healthHandler(deps.HealthCheck))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router, nil
}

func healthHandler(check func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			if err := check(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
