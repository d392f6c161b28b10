package gatekeeper

import (
	"encoding/base32"
	"strings"
	"time"
)

// Config is the full Engine configuration. Build one with DefaultConfig and
// override fields; the Builder validates it.
type Config struct {
	Session SessionConfig
	JWT     JWTConfig
	TOTP    TOTPConfig
	Lockout LockoutConfig
	Store   StoreConfig
	Notify  NotifyConfig
	Metrics MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the sliding session window.
type SessionConfig struct {
	// TTL is both the token lifetime and the idle timeout.
	TTL time.Duration
	// AdminUser is the identity every login is issued for.
	AdminUser string
	// AllowLegacyTokens accepts tokens without a session id without a
	// registry lookup. Such tokens cannot be revoked.
	AllowLegacyTokens bool
	RedisPrefix       string
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the HS256 signing secret.
type JWTConfig struct {
	Secret []byte
	Issuer string
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig holds the shared base32 secret. Codes are always six digits
// with a 30 second step and one step of skew.
type TOTPConfig struct {
	Secret      string
	Issuer      string
	AccountName string
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls per-address throttling.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
	RedisPrefix string
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig bounds registry and limiter calls.
type StoreConfig struct {
	// Timeout applies to each attempt; a failed attempt is retried once.
	Timeout time.Duration
	// TouchTimeout bounds the background last-activity update.
	TouchTimeout time.Duration
}

/*
====================================
NOTIFY CONFIG
====================================
*/

// NotifyConfig controls the async notification dispatcher.
type NotifyConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// DeliveryTimeout bounds one sink call. Zero means five seconds.
	DeliveryTimeout time.Duration
}

const defaultDeliveryTimeout = 5 * time.Second

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles in-process counters and the authorize latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

const minSecretLength = 16

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the stock configuration. JWT.Secret and TOTP.Secret
// are left empty and must be set.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:               15 * time.Minute,
			AdminUser:         "admin",
			AllowLegacyTokens: false,
			RedisPrefix:       "gk",
		},
		JWT: JWTConfig{
			Issuer: "gatekeeper",
		},
		TOTP: TOTPConfig{
			Issuer:      "Gatekeeper",
			AccountName: "admin",
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    15 * time.Minute,
			RedisPrefix: "gk",
		},
		Store: StoreConfig{
			Timeout:      3 * time.Second,
			TouchTimeout: 3 * time.Second,
		},
		Notify: NotifyConfig{
			Enabled:    true,
			BufferSize:      256,
			DropIfFull:      true,
			DeliveryTimeout: defaultDeliveryTimeout,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first problem found as an ErrConfiguration.
func (c *Config) Validate() error {
	// Session
	if c.Session.TTL <= 0 {
		return configError("Session TTL must be > 0")
	}
	if strings.TrimSpace(c.Session.AdminUser) == "" {
		return configError("Session AdminUser must not be empty")
	}

	// JWT
	if len(c.JWT.Secret) == 0 {
		return configError("JWT Secret is required")
	}
	if len(c.JWT.Secret) < minSecretLength {
		return configError("JWT Secret must be at least 16 bytes")
	}

	// TOTP
	if strings.TrimSpace(c.TOTP.Secret) == "" {
		return configError("TOTP Secret is required")
	}
	if !validBase32(c.TOTP.Secret) {
		return configError("TOTP Secret must be base32")
	}

	// Lockout
	if c.Lockout.MaxAttempts <= 0 {
		return configError("Lockout MaxAttempts must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return configError("Lockout Duration must be > 0")
	}

	// Store
	if c.Store.Timeout <= 0 {
		return configError("Store Timeout must be > 0")
	}
	if c.Store.TouchTimeout <= 0 {
		return configError("Store TouchTimeout must be > 0")
	}

	// Notify
	if c.Notify.Enabled && c.Notify.BufferSize <= 0 {
		return configError("Notify BufferSize must be > 0 when enabled")
	}
	if c.Notify.DeliveryTimeout < 0 {
		return configError("Notify DeliveryTimeout must be >= 0")
	}

	return nil
}

func validBase32(secret string) bool {
	s := strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
	if s == "" {
		return false
	}
	_, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	return err == nil
}
