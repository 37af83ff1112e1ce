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
	"github.com/ethanmsmith/whisperbox/internal/services"
	"github.com/ethanmsmith/whisperbox/pkg/crypto"
	"github.com/ethanmsmith/whisperbox/pkg/logger"
	"github.com/ethanmsmith/whisperbox/pkg/metrics"
)

// SSOHandler drives the Google sign-in flow.
type SSOHandler struct {
	google   *providers.GoogleProvider
	accounts *services.AccountService
	sessions *auth.SessionService
	states   *auth.StateCodec
	cookies  CookieSettings
}

// NewSSOHandler constructs the federated login handler. A nil google
// provider is allowed; the routes then report that the flow is disabled.
func NewSSOHandler(google *providers.GoogleProvider, accounts *services.AccountService, sessions *auth.SessionService, states *auth.StateCodec, cookies CookieSettings) (*SSOHandler, error) {
	if accounts == nil {
		return nil, errors.New("sso handler: account service is required")
	}
	if sessions == nil {
		return nil, errors.New("sso handler: session service is required")
	}
	if states == nil {
		return nil, errors.New("sso handler: state codec is required")
	}
	return &SSOHandler{
		google:   google,
		accounts: accounts,
		sessions: sessions,
		states:   states,
		cookies:  cookies,
	}, nil
}

// Begin handles GET /auth/google. It seals the PKCE verifier and nonce into
// the state parameter and redirects to Google's consent screen.
func (h *SSOHandler) Begin(c *gin.Context) {
	if h.google == nil {
		h.fail(c, "Google sign-in is not available.")
		return
	}

	pkce, err := auth.GeneratePKCE()
	if err != nil {
		logger.Error("generate pkce", zap.Error(err))
		h.fail(c, "Could not start Google sign-in. Please try again.")
		return
	}

	nonce, err := crypto.GenerateToken(16)
	if err != nil {
		logger.Error("generate nonce", zap.Error(err))
		h.fail(c, "Could not start Google sign-in. Please try again.")
		return
	}

	redirectTo := sanitizeRedirect(c.Query("redirect_to"))

	state, err := h.states.Encode(auth.StatePayload{
		Nonce:        nonce,
		CodeVerifier: pkce.Verifier,
		RedirectTo:   redirectTo,
	})
	if err != nil {
		logger.Error("encode state", zap.Error(err))
		h.fail(c, "Could not start Google sign-in. Please try again.")
		return
	}

	c.Redirect(http.StatusFound, h.google.AuthCodeURL(state, nonce, pkce.Challenge))
}

// Callback handles GET /auth/google/secrets. Successful logins land on the
// protected page with session cookies set; failures land on the error page.
func (h *SSOHandler) Callback(c *gin.Context) {
	if h.google == nil {
		h.fail(c, "Google sign-in is not available.")
		return
	}

	if errParam := c.Query("error"); errParam != "" {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		h.fail(c, "Google sign-in was cancelled.")
		return
	}

	payload, err := h.states.Decode(c.Query("state"))
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		h.fail(c, "Sign-in request expired or was tampered with. Please try again.")
		return
	}

	code := c.Query("code")
	if code == "" {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		h.fail(c, "Google sign-in failed. Please try again.")
		return
	}

	identity, err := h.google.Exchange(c.Request.Context(), code, payload.CodeVerifier, payload.Nonce)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		logger.Warn("google exchange failed", zap.Error(err))
		h.fail(c, "Google sign-in failed. Please try again.")
		return
	}

	user, err := h.accounts.EnsureFederatedUser(c.Request.Context(), identity)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("error").Inc()
		logger.Error("ensure federated user", zap.Error(err))
		h.fail(c, "Could not complete Google sign-in. Please try again.")
		return
	}

	pair, session, err := h.sessions.CreateForSubject(auth.AuthSubject{
		UserID:     user.ID,
		Provider:   identity.Provider,
		ExternalID: identity.Subject,
		Email:      identity.Email,
	}, auth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("error").Inc()
		logger.Error("create federated session", zap.Error(err))
		h.fail(c, "Could not complete Google sign-in. Please try again.")
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	logger.Info("federated login",
		zap.String("user_id", user.ID),
		zap.String("session_id", session.ID),
		zap.String("provider", identity.Provider))

	WriteSessionCookies(c, h.cookies, pair)

	target := payload.RedirectTo
	if target == "" {
		target = "/secrets"
	}
	c.Redirect(http.StatusSeeOther, target)
}

func (h *SSOHandler) fail(c *gin.Context, message string) {
	c.Redirect(http.StatusSeeOther, "/login?message="+url.QueryEscape(message))
}

// sanitizeRedirect keeps redirect targets on this site.
func sanitizeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return ""
	}
	return target
}
