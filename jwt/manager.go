package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrMissingKID is returned when a key set is configured and the token has no kid.
	ErrMissingKID = errors.New("missing kid")
	// ErrUnknownKID is returned for a kid outside the configured key set.
	ErrUnknownKID = errors.New("unknown kid")
	// ErrCannotSign is returned by CreateAccess on a verify-only manager.
	ErrCannotSign = errors.New("manager has no signing key")
)

// Config describes signing and validation.
//
// PrivateKey is optional for Ed25519 verify-only managers such as the middleware.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Manager signs and parses access tokens. It is immutable and safe for
// concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// AccessClaims are the claims carried by a session credential.
type AccessClaims struct {
	UID   string `json:"uid"`
	SID   string `json:"sid"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
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
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if cfg.SigningMethod == MethodEd25519 {
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// AccessTTL returns the configured token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// CreateAccess signs a credential for user uid in session sid.
func (m *Manager) CreateAccess(uid, sid, email string) (string, error) {
	if uid == "" || sid == "" {
		return "", errors.New("uid and sid are required")
	}
	if m.config.SigningMethod == MethodEd25519 && len(m.config.PrivateKey) == 0 {
		return "", ErrCannotSign
	}

	now := m.now()
	claims := AccessClaims{
		UID:   uid,
		SID:   sid,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method(), claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(key)
}

// ParseAccess verifies signature, algorithm, expiry, issuer and audience.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, m.keyFunc)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UID == "" || claims.SID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(m.now().Add(m.config.MaxFutureIAT)) {
		return nil, errors.New("token iat too far in the future")
	}

	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)

	if len(m.config.VerifyKeys) > 0 {
		if kid == "" {
			return nil, ErrMissingKID
		}
		key, ok := m.config.VerifyKeys[kid]
		if !ok {
			return nil, ErrUnknownKID
		}
		return m.verifyKeyFrom(key)
	}

	if m.config.KeyID != "" {
		if kid == "" {
			return nil, ErrMissingKID
		}
		if kid != m.config.KeyID {
			return nil, ErrUnknownKID
		}
	}

	if m.config.SigningMethod == MethodHS256 {
		return m.config.PrivateKey, nil
	}
	return parseEdPublicKey(m.config.PublicKey)
}

func (m *Manager) method() jwt.SigningMethod {
	if m.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (m *Manager) signKey() (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		return m.config.PrivateKey, nil
	}
	return parseEdPrivateKey(m.config.PrivateKey)
}

func (m *Manager) verifyKeyFrom(key []byte) (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		return key, nil
	}
	return parseEdPublicKey(key)
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
