package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethanmsmith/whisperbox/pkg/crypto"
)

// DefaultStateTTL bounds how long an in-flight login redirect stays valid.
const DefaultStateTTL = 10 * time.Minute

var (
	// ErrStateInvalid indicates the state parameter could not be decoded.
	ErrStateInvalid = errors.New("auth state: invalid state")
	// ErrStateExpired indicates the state parameter outlived its TTL.
	ErrStateExpired = errors.New("auth state: expired")
)

// StatePayload is the round-tripped context for a federated login attempt.
// It is encrypted before leaving the server so the client cannot tamper
// with the redirect target or replay the PKCE verifier.
type StatePayload struct {
	Nonce        string    `json:"nonce"`
	CodeVerifier string    `json:"code_verifier"`
	RedirectTo   string    `json:"redirect_to,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
}

// StateCodec encodes and decodes OAuth state parameters with authenticated
// encryption.
type StateCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// StateCodecOption customises codec behaviour.
type StateCodecOption func(*StateCodec)

// WithStateTTL overrides the default state lifetime.
func WithStateTTL(ttl time.Duration) StateCodecOption {
	return func(c *StateCodec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithStateClock injects a clock, used by tests.
func WithStateClock(clock func() time.Time) StateCodecOption {
	return func(c *StateCodec) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewStateCodec derives a codec from the configured state key. Any non-empty
// key is accepted; it is stretched to 32 bytes with SHA-256.
func NewStateCodec(key string, opts ...StateCodecOption) (*StateCodec, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("auth state: key is required")
	}

	sum := sha256.Sum256([]byte(key))

	codec := &StateCodec{
		key: sum[:],
		ttl: DefaultStateTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(codec)
	}

	return codec, nil
}

// Encode seals the payload into an opaque state string.
func (c *StateCodec) Encode(payload StatePayload) (string, error) {
	if payload.IssuedAt.IsZero() {
		payload.IssuedAt = c.now()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("auth state: marshal payload: %w", err)
	}

	sealed, err := crypto.Encrypt(raw, c.key)
	if err != nil {
		return "", fmt.Errorf("auth state: encrypt payload: %w", err)
	}

	return sealed, nil
}

// Decode opens a state string produced by Encode and enforces the TTL.
func (c *StateCodec) Decode(state string) (StatePayload, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return StatePayload{}, ErrStateInvalid
	}

	raw, err := crypto.Decrypt(state, c.key)
	if err != nil {
		return StatePayload{}, ErrStateInvalid
	}

	var payload StatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return StatePayload{}, ErrStateInvalid
	}

	if payload.IssuedAt.IsZero() || c.now().Sub(payload.IssuedAt) > c.ttl {
		return StatePayload{}, ErrStateExpired
	}

	return payload, nil
}

// PKCEChallenge carries the verifier kept server-side and the S256 challenge
// sent to the identity provider.
type PKCEChallenge struct {
	Verifier  string
	Challenge string
	Method    string
}

// GeneratePKCE produces a fresh verifier and its S256 challenge.
func GeneratePKCE() (PKCEChallenge, error) {
	verifier, err := crypto.GenerateToken(32)
	if err != nil {
		return PKCEChallenge{}, fmt.Errorf("auth pkce: generate verifier: %w", err)
	}

	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	return PKCEChallenge{
		Verifier:  verifier,
		Challenge: challenge,
		Method:    "S256",
	}, nil
}
