package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrExpired is returned when exp plus the skew tolerance has passed.
	ErrExpired = errors.New("token expired")
	// ErrNotYetValid is returned when nbf or iat lies in the future.
	ErrNotYetValid = errors.New("token not yet valid")
	// ErrMalformed covers undecodable tokens, bad signatures and foreign
	// issuer, audience or key id.
	ErrMalformed = errors.New("token malformed")
	// ErrWrongScope is returned when a valid token has the other scope.
	ErrWrongScope = errors.New("token scope not accepted here")
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

const minHMACKeyBytes = 32

// Config holds issuer policy and key material.
type Config struct {
	Issuer     string
	Audience   string
	FullTTL    time.Duration
	PendingTTL time.Duration
	// Skew is tolerated on the expiry check only.
	Skew          time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	// VerifyKeys lets older keys verify during rotation, keyed by kid.
	VerifyKeys map[string][]byte
}

// Manager issues and verifies tokens. It holds no mutable state and is safe
// for concurrent use.
type Manager struct {
	config Config
	clock  clockwork.Clock
}

// Claims is the verified content of a token.
type Claims struct {
	Subject   string
	Scope     Scope
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type wireClaims struct {
	Scope scopeClaim `json:"scope"`
	jwt.RegisteredClaims
}

// NewManager validates cfg. A nil clock means wall time.
func NewManager(cfg Config, clock clockwork.Clock) (*Manager, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.FullTTL <= 0 || cfg.PendingTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.PendingTTL > cfg.FullTTL {
		return nil, errors.New("pending TTL must not exceed full TTL")
	}
	if cfg.Skew < 0 || cfg.Skew > 2*time.Minute {
		return nil, errors.New("invalid skew configuration")
	}
	if strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("issuer and audience are required")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < minHMACKeyBytes {
			return nil, fmt.Errorf("hs256 requires a key of at least %d bytes", minHMACKeyBytes)
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{config: cfg, clock: clock}, nil
}

// IssueFull mints a session token carrying role.
func (m *Manager) IssueFull(accountID, role string) (string, error) {
	if role == "" {
		return "", errors.New("full token requires a role")
	}
	return m.issue(accountID, Full{Role: role}, m.config.FullTTL)
}

// IssuePending mints a token that only permits finishing the second factor.
func (m *Manager) IssuePending(accountID string) (string, error) {
	return m.issue(accountID, PendingSecondFactor{}, m.config.PendingTTL)
}

func (m *Manager) issue(accountID string, scope Scope, ttl time.Duration) (string, error) {
	if accountID == "" {
		return "", errors.New("token subject is required")
	}
	now := m.clock.Now()
	claims := wireClaims{
		Scope: scopeClaim{Scope: scope},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(m.method(), claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signKey, err := m.signKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(signKey)
}

// Verify checks signature, issuer, audience and time claims, then requires
// the scope to be of kind want.
func (m *Manager) Verify(tokenStr string, want ScopeKind) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	var wc wireClaims
	token, err := parser.ParseWithClaims(tokenStr, &wc, m.keyFunc)
	if err != nil || !token.Valid {
		return nil, ErrMalformed
	}

	if wc.Issuer != m.config.Issuer || !audienceContains(wc.Audience, m.config.Audience) {
		return nil, ErrMalformed
	}
	if wc.Subject == "" || wc.ExpiresAt == nil || wc.Scope.Scope == nil {
		return nil, ErrMalformed
	}

	now := m.clock.Now()
	if wc.NotBefore != nil && now.Before(wc.NotBefore.Time) {
		return nil, ErrNotYetValid
	}
	if wc.IssuedAt != nil && now.Before(wc.IssuedAt.Time) {
		return nil, ErrNotYetValid
	}
	if now.After(wc.ExpiresAt.Time.Add(m.config.Skew)) {
		return nil, ErrExpired
	}

	if wc.Scope.Kind() != want {
		return nil, ErrWrongScope
	}

	out := &Claims{
		Subject:   wc.Subject,
		Scope:     wc.Scope.Scope,
		ID:        wc.ID,
		ExpiresAt: wc.ExpiresAt.Time,
	}
	if wc.IssuedAt != nil {
		out.IssuedAt = wc.IssuedAt.Time
	}
	return out, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != m.method().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(m.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := m.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return m.keyBytesToVerifyKey(key)
	}

	if m.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != m.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return m.verifyKey()
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		if len(m.config.PrivateKey) == 0 {
			return nil, errors.New("verify-only manager cannot sign")
		}
		return parseEdPrivateKey(m.config.PrivateKey)
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPublicKey(m.config.PublicKey)
	}
}

func (m *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
