package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ethanmsmith/whisperbox/internal/auth"
	"github.com/ethanmsmith/whisperbox/internal/auth/providers"
	apperrors "github.com/ethanmsmith/whisperbox/pkg/errors"
	"github.com/ethanmsmith/whisperbox/pkg/logger"
	"github.com/ethanmsmith/whisperbox/pkg/response"
)

// Cookie names shared with the session middleware.
const (
	AccessTokenCookie  = auth.AccessTokenCookie
	RefreshTokenCookie = auth.RefreshTokenCookie
)

// CookieSettings controls how session cookies are written.
type CookieSettings struct {
	Secure bool
	Domain string
	MaxAge int
}

// AuthHandler exposes password login and logout.
type AuthHandler struct {
	local    *providers.LocalProvider
	sessions *auth.SessionService
	jwt      *auth.JWTService
	cookies  CookieSettings
}

// NewAuthHandler constructs the login handler.
func NewAuthHandler(local *providers.LocalProvider, sessions *auth.SessionService, jwt *auth.JWTService, cookies CookieSettings) (*AuthHandler, error) {
	if local == nil {
		return nil, errors.New("auth handler: local provider is required")
	}
	if sessions == nil {
		return nil, errors.New("auth handler: session service is required")
	}
	if jwt == nil {
		return nil, errors.New("auth handler: jwt service is required")
	}
	return &AuthHandler{
		local:    local,
		sessions: sessions,
		jwt:      jwt,
		cookies:  cookies,
	}, nil
}

// loginRequest accepts the email address under either name; username is
// the historical field.
type loginRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (r loginRequest) email() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Email
}

// Login handles POST /login. Browser form posts get a redirect to /secrets
// with session cookies; API callers get the token pair in the body.
func (h *AuthHandler) Login(c *gin.Context) {
	req, ok := bindAndValidate[loginRequest](c, "Empty credentials supplied")
	if !ok {
		return
	}

	if strings.TrimSpace(req.email()) == "" || req.Password == "" {
		h.loginFailed(c, apperrors.NewBadRequest("Empty credentials supplied"))
		return
	}

	user, err := h.local.Authenticate(c.Request.Context(), providers.Credentials{
		Email:     req.email(),
		Password:  req.Password,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		h.loginFailed(c, err)
		return
	}

	pair, session, err := h.sessions.CreateSession(user.ID, auth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.loginFailed(c, err)
		return
	}

	logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("session_id", session.ID))

	WriteSessionCookies(c, h.cookies, pair)

	if wantsHTML(c) {
		c.Redirect(http.StatusSeeOther, "/secrets")
		return
	}

	response.Success(c, http.StatusOK, "Login successful", gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"user": gin.H{
			"userId": user.ID,
			"name":   user.Name,
			"email":  user.Email,
		},
	})
}

// Refresh handles POST /refresh, rotating the refresh token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(RefreshTokenCookie)
	if err != nil || refreshToken == "" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if bindErr := c.ShouldBindJSON(&body); bindErr == nil {
			refreshToken = body.RefreshToken
		}
	}

	pair, _, err := h.sessions.RefreshSession(refreshToken)
	if err != nil {
		ClearSessionCookies(c, h.cookies)
		response.Error(c, apperrUnauthorized(err))
		return
	}

	WriteSessionCookies(c, h.cookies, pair)

	response.Success(c, http.StatusOK, "Session refreshed", gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// Logout handles GET /logout. The session behind the access cookie is
// revoked when it can still be identified; cookies are cleared regardless.
func (h *AuthHandler) Logout(c *gin.Context) {
	if accessToken, err := c.Cookie(AccessTokenCookie); err == nil && accessToken != "" {
		if claims, err := h.jwt.ValidateAccessToken(accessToken); err == nil {
			if err := h.sessions.RevokeSession(claims.SessionID); err != nil &&
				!errors.Is(err, auth.ErrSessionNotFound) {
				logger.Warn("revoke session on logout",
					zap.String("session_id", claims.SessionID),
					zap.Error(err))
			}
		}
	}

	ClearSessionCookies(c, h.cookies)
	c.Redirect(http.StatusSeeOther, "/")
}

func apperrUnauthorized(err error) error {
	return apperrors.ErrUnauthorized.WithInternal(err)
}

// loginFailed sends browser form posts back to the login page with the
// failure message; API callers get the JSON error body.
func (h *AuthHandler) loginFailed(c *gin.Context, err error) {
	if wantsHTML(c) {
		message := apperrors.FromError(err).Message
		c.Redirect(http.StatusSeeOther, "/login?message="+url.QueryEscape(message))
		return
	}
	response.Error(c, err)
}

// WriteSessionCookies attaches the token pair as HTTP-only cookies.
func WriteSessionCookies(c *gin.Context, cfg CookieSettings, pair auth.TokenPair) {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = int(auth.DefaultRefreshTokenTTL.Seconds())
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessTokenCookie, pair.AccessToken, maxAge, "/", cfg.Domain, cfg.Secure, true)
	c.SetCookie(RefreshTokenCookie, pair.RefreshToken, maxAge, "/", cfg.Domain, cfg.Secure, true)
}

// ClearSessionCookies expires both session cookies.
func ClearSessionCookies(c *gin.Context, cfg CookieSettings) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessTokenCookie, "", -1, "/", cfg.Domain, cfg.Secure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", cfg.Domain, cfg.Secure, true)
}
