package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL keeps access tokens short-lived; the refresh
// token carries the long-lived part of the session.
const DefaultAccessTokenTTL = 15 * time.Minute

// JWTConfig configures access-token signing.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	Clock          func() time.Time
}

// Claims are what Whisperbox puts inside an access token: the user, the
// backing session, and any provider claims captured at login.
type Claims struct {
	UserID    string         `json:"uid"`
	SessionID string         `json:"sid,omitempty"`
	Metadata  map[string]any `json:"meta,omitempty"`
	jwt.RegisteredClaims
}

// AccessTokenInput names the parts of a token issue request.
type AccessTokenInput struct {
	UserID    string
	SessionID string
	Metadata  map[string]any
}

// JWTService signs and verifies HS256 access tokens.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	svc := &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTokenTTL,
		now:    cfg.Clock,
	}
	if svc.ttl <= 0 {
		svc.ttl = DefaultAccessTokenTTL
	}
	if svc.now == nil {
		svc.now = time.Now
	}

	return svc, nil
}

// GenerateAccessToken signs a token for the user. The session id doubles
// as the jti claim so a token can always be traced back to its session.
func (s *JWTService) GenerateAccessToken(input AccessTokenInput) (string, error) {
	if input.UserID == "" {
		return "", errors.New("jwt: user id is required")
	}

	issuedAt := s.now()
	claims := &Claims{
		UserID:    input.UserID,
		SessionID: input.SessionID,
		Metadata:  cloneMetadata(input.Metadata),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   input.UserID,
			Issuer:    s.issuer,
			ID:        input.SessionID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken verifies the signature, lifetime, and issuer of a
// token and returns its claims.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil })
	if err != nil {
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}

	if claims.UserID == "" {
		return nil, errors.New("jwt: missing user id claim")
	}

	return claims, nil
}

func cloneMetadata(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return nil
	}
	cpy := make(map[string]any, len(meta))
	for k, v := range meta {
		cpy[k] = v
	}
	return cpy
}
