// Package config loads the gatekeeper server configuration from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/gatekeeper"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendSQL    = "sql"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the flat server configuration. Engine converts it to a
// gatekeeper.Config.
type Config struct {
	Env  string `mapstructure:"APP_ENV"`
	Port int    `mapstructure:"PORT"`

	SessionSecret string `mapstructure:"SESSION_SECRET"`
	TOTPSecret    string `mapstructure:"TOTP_SECRET"`
	TOTPIssuer    string `mapstructure:"TOTP_ISSUER"`
	// SessionTimeout is in minutes.
	SessionTimeout    int           `mapstructure:"SESSION_TIMEOUT"`
	MaxAttempts       int           `mapstructure:"MAX_ATTEMPTS"`
	LockoutDuration   time.Duration `mapstructure:"LOCKOUT_DURATION"`
	AllowLegacyTokens bool          `mapstructure:"ALLOW_LEGACY_TOKENS"`

	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	SQLitePath     string        `mapstructure:"SQLITE_PATH"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	SessionBackend string        `mapstructure:"SESSION_BACKEND"`
	LimiterBackend string        `mapstructure:"LIMITER_BACKEND"`
	StoreTimeout   time.Duration `mapstructure:"STORE_TIMEOUT"`

	// TrustProxy reads the client address from forwarding headers. Enable
	// only behind a proxy that overwrites them.
	TrustProxy   bool `mapstructure:"TRUST_PROXY"`
	CookieSecure bool `mapstructure:"COOKIE_SECURE"`

	KafkaBrokers     string `mapstructure:"KAFKA_BROKERS"`
	NotifyKafkaTopic string `mapstructure:"NOTIFY_KAFKA_TOPIC"`
	NotifyBuffer     int    `mapstructure:"NOTIFY_BUFFER"`

	LogLevel       string `mapstructure:"LOG_LEVEL"`
	LogFormat      string `mapstructure:"LOG_FORMAT"`
	MetricsEnabled bool   `mapstructure:"METRICS_ENABLED"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `mapstructure:"GOOGLE_REDIRECT_URI"`
	AllowedEmail       string `mapstructure:"ALLOWED_EMAIL"`

	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

// Load reads .env when present (existing environment variables win), then
// the environment. A missing TOTP_SECRET is not an error here; the binary
// handles it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	// MAX_ATTEMPT is the historical spelling.
	if err := v.BindEnv("MAX_ATTEMPTS", "MAX_ATTEMPTS", "MAX_ATTEMPT"); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.SessionBackend = strings.ToLower(strings.TrimSpace(cfg.SessionBackend))
	cfg.LimiterBackend = strings.ToLower(strings.TrimSpace(cfg.LimiterBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", 3000)
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("TOTP_SECRET", "")
	v.SetDefault("TOTP_ISSUER", "Gatekeeper")
	v.SetDefault("SESSION_TIMEOUT", 15)
	v.SetDefault("MAX_ATTEMPTS", 5)
	v.SetDefault("LOCKOUT_DURATION", "15m")
	v.SetDefault("ALLOW_LEGACY_TOKENS", false)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SQLITE_PATH", "database.sqlite")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SESSION_BACKEND", BackendSQL)
	v.SetDefault("LIMITER_BACKEND", BackendMemory)
	v.SetDefault("STORE_TIMEOUT", "3s")
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("NOTIFY_KAFKA_TOPIC", "gatekeeper.notifications")
	v.SetDefault("NOTIFY_BUFFER", 256)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "")
	v.SetDefault("METRICS_ENABLED", false)
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_REDIRECT_URI", "")
	v.SetDefault("ALLOWED_EMAIL", "")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
}

// Validate checks everything Load can know without touching the network.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("config: PORT must be between 1 and 65535")
	}
	if strings.TrimSpace(c.SessionSecret) == "" {
		return errors.New("config: SESSION_SECRET must be set")
	}
	if c.SessionTimeout <= 0 {
		return errors.New("config: SESSION_TIMEOUT must be a positive number of minutes")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("config: MAX_ATTEMPTS must be > 0")
	}
	if c.LockoutDuration <= 0 {
		return errors.New("config: LOCKOUT_DURATION must be > 0")
	}
	if c.StoreTimeout <= 0 {
		return errors.New("config: STORE_TIMEOUT must be > 0")
	}

	switch c.SessionBackend {
	case BackendSQL:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("config: SESSION_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("config: unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	switch c.LimiterBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("config: LIMITER_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("config: unknown LIMITER_BACKEND %q", c.LimiterBackend)
	}

	if c.KafkaBrokers != "" && strings.TrimSpace(c.NotifyKafkaTopic) == "" {
		return errors.New("config: NOTIFY_KAFKA_TOPIC must be set with KAFKA_BROKERS")
	}
	return nil
}

// SessionTTL is SESSION_TIMEOUT as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTimeout) * time.Minute
}

// KafkaBrokerList splits KAFKA_BROKERS on commas.
func (c *Config) KafkaBrokerList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// GoogleEnabled reports whether every Google login setting is present.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" &&
		c.GoogleClientSecret != "" &&
		c.GoogleRedirectURI != "" &&
		c.AllowedEmail != ""
}

// Engine converts the server settings into an engine configuration.
func (c *Config) Engine() gatekeeper.Config {
	cfg := gatekeeper.DefaultConfig()
	cfg.Session.TTL = c.SessionTTL()
	cfg.Session.AllowLegacyTokens = c.AllowLegacyTokens
	cfg.JWT.Secret = []byte(c.SessionSecret)
	cfg.TOTP.Secret = c.TOTPSecret
	cfg.TOTP.Issuer = c.TOTPIssuer
	cfg.Lockout.MaxAttempts = c.MaxAttempts
	cfg.Lockout.Duration = c.LockoutDuration
	cfg.Store.Timeout = c.StoreTimeout
	cfg.Notify.BufferSize = c.NotifyBuffer
	cfg.Notify.Enabled = c.NotifyBuffer > 0
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.MetricsEnabled
	return cfg
}
