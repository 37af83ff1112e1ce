package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// GoogleIssuer is the fixed OIDC issuer for Google accounts.
const GoogleIssuer = "https://accounts.google.com"

var (
	// ErrGoogleDisabled is returned when Google login is not configured.
	ErrGoogleDisabled = errors.New("google provider: disabled")
	// ErrGoogleNonceMismatch indicates a replayed or tampered callback.
	ErrGoogleNonceMismatch = errors.New("google provider: nonce mismatch")
)

// GoogleConfig holds the OAuth client registration for Google sign-in.
type GoogleConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Identity is the normalised result of a federated login.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Claims        map[string]any
}

// GoogleProvider performs the authorization code flow against Google using
// OIDC discovery and ID token verification.
type GoogleProvider struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewGoogleProvider discovers Google's OIDC endpoints and prepares the
// OAuth2 client configuration.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if !cfg.Enabled {
		return nil, ErrGoogleDisabled
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("google provider: client id and secret are required")
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, errors.New("google provider: redirect url is required")
	}

	provider, err := oidc.NewProvider(ctx, GoogleIssuer)
	if err != nil {
		return nil, fmt.Errorf("google provider: discover issuer: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &GoogleProvider{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// AuthCodeURL builds the Google authorization redirect, binding the request
// to the supplied state, nonce, and PKCE challenge.
func (p *GoogleProvider) AuthCodeURL(state, nonce, codeChallenge string) string {
	opts := []oauth2.AuthCodeOption{
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	return p.oauth.AuthCodeURL(state, opts...)
}

// Exchange redeems the authorization code, verifies the returned ID token,
// and extracts the user identity.
func (p *GoogleProvider) Exchange(ctx context.Context, code, codeVerifier, nonce string) (*Identity, error) {
	token, err := p.oauth.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("google provider: exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("google provider: missing id token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("google provider: verify id token: %w", err)
	}

	if idToken.Nonce != nonce {
		return nil, ErrGoogleNonceMismatch
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("google provider: decode claims: %w", err)
	}

	identity := &Identity{
		Provider: "google",
		Subject:  idToken.Subject,
		Claims:   claims,
	}

	if email, ok := claims["email"].(string); ok {
		identity.Email = strings.ToLower(strings.TrimSpace(email))
	}
	if verified, ok := claims["email_verified"].(bool); ok {
		identity.EmailVerified = verified
	}
	if name, ok := claims["name"].(string); ok {
		identity.Name = strings.TrimSpace(name)
	}

	if identity.Subject == "" || identity.Email == "" {
		return nil, errors.New("google provider: incomplete identity")
	}

	return identity, nil
}
