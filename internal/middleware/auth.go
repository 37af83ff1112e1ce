package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ethanmsmith/whisperbox/internal/auth"
	apperrors "github.com/ethanmsmith/whisperbox/pkg/errors"
	"github.com/ethanmsmith/whisperbox/pkg/response"
)

// Context keys populated by the session middleware.
const (
	ContextUserID    = "user_id"
	ContextSessionID = "session_id"
)

// SessionAuthenticator validates access tokens and the sessions behind them.
type SessionAuthenticator struct {
	jwt      *auth.JWTService
	sessions *auth.SessionService
}

// NewSessionAuthenticator builds the middleware factory.
func NewSessionAuthenticator(jwt *auth.JWTService, sessions *auth.SessionService) *SessionAuthenticator {
	return &SessionAuthenticator{jwt: jwt, sessions: sessions}
}

// RequireAPI guards JSON endpoints. Unauthenticated requests get a 401.
func (a *SessionAuthenticator) RequireAPI() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authenticate(c) {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
		}
	}
}

// RequirePage guards HTML pages. Unauthenticated requests are sent to the
// login page with the original destination preserved.
func (a *SessionAuthenticator) RequirePage() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authenticate(c) {
			target := "/login"
			if path := c.Request.URL.Path; path != "" && path != "/" {
				target += "?redirect_to=" + url.QueryEscape(path)
			}
			c.Redirect(http.StatusSeeOther, target)
			c.Abort()
		}
	}
}

func (a *SessionAuthenticator) authenticate(c *gin.Context) bool {
	token := bearerToken(c)
	if token == "" {
		if cookie, err := c.Cookie(auth.AccessTokenCookie); err == nil {
			token = cookie
		}
	}
	if token == "" {
		return false
	}

	claims, err := a.jwt.ValidateAccessToken(token)
	if err != nil {
		return false
	}

	session, err := a.sessions.ValidateSession(claims.SessionID)
	if err != nil {
		return false
	}

	c.Set(ContextUserID, session.UserID)
	c.Set(ContextSessionID, session.ID)
	return true
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
