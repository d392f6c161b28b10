package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const minSecretLength = 16

var (
	// ErrTokenInvalid covers bad signatures, malformed tokens and expiry.
	// Callers never learn which of those it was.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrInvalidConfig is returned by NewManager.
	ErrInvalidConfig = errors.New("invalid token codec configuration")
)

// Config configures the session token codec.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	// AcceptLegacy also accepts tokens that carry neither iss nor sid,
	// as minted before the session registry existed.
	AcceptLegacy bool
	// Now overrides the clock used for iat/exp and validation.
	Now func() time.Time
}

// Manager issues, verifies and refreshes HS256 session tokens.
//
// Manager is immutable after NewManager and safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
	parser *jwt.Parser
	// legacy is nil unless AcceptLegacy is set.
	legacy *jwt.Parser
}

// Claims is the payload of a session token. SessionID is empty only for
// legacy tokens issued before the session registry existed.
type Claims struct {
	User      string `json:"user"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and builds a codec.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%w: ttl must be > 0", ErrInvalidConfig)
	}
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("%w: secret must be at least %d bytes", ErrInvalidConfig, minSecretLength)
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	}
	var legacy *jwt.Parser
	if cfg.AcceptLegacy {
		legacy = jwt.NewParser(options...)
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	return &Manager{
		config: cfg,
		now:    now,
		parser: jwt.NewParser(options...),
		legacy: legacy,
	}, nil
}

// TTL returns the sliding window applied by Issue and Refresh.
func (m *Manager) TTL() time.Duration {
	return m.config.TTL
}

// Issue signs a token for user and sessionID that expires TTL from now.
func (m *Manager) Issue(user, sessionID string) (string, time.Time, error) {
	if user == "" {
		return "", time.Time{}, errors.New("token user must not be empty")
	}

	now := m.now()
	claims := Claims{
		User:      user,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
			Issuer:    m.config.Issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Parse verifies signature and expiry. A token is valid only while now is
// strictly before its exp.
//
// With AcceptLegacy, a token that fails only because it has no issuer is
// accepted when it also has no session id.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrTokenInvalid
	}

	claims, err := m.parseWith(m.parser, tokenStr)
	if err == nil {
		return claims, nil
	}
	if m.legacy == nil || !errors.Is(err, jwt.ErrTokenInvalidIssuer) {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, lerr := m.parseWith(m.legacy, tokenStr)
	if lerr != nil || claims.Issuer != "" || claims.SessionID != "" {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claims, nil
}

func (m *Manager) parseWith(parser *jwt.Parser, tokenStr string) (*Claims, error) {
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.User == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Refresh re-issues claims with a new expiry TTL from now.
func (m *Manager) Refresh(claims *Claims) (string, time.Time, error) {
	if claims == nil {
		return "", time.Time{}, ErrTokenInvalid
	}
	return m.Issue(claims.User, claims.SessionID)
}
