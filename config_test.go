package gatekeeper

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfigNeedsOnlySecrets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("default config without secrets should fail, got %v", err)
	}

	cfg.JWT.Secret = testJWTSecret
	cfg.TOTP.Secret = testTOTPSecret
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with secrets: %v", err)
	}
	if cfg.Session.TTL != 15*time.Minute || cfg.Lockout.MaxAttempts != 5 || cfg.Lockout.Duration != 15*time.Minute {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"zero ttl":           func(c *Config) { c.Session.TTL = 0 },
		"blank admin user":   func(c *Config) { c.Session.AdminUser = "  " },
		"missing jwt secret": func(c *Config) { c.JWT.Secret = nil },
		"short jwt secret":   func(c *Config) { c.JWT.Secret = []byte("too-short") },
		"missing totp":       func(c *Config) { c.TOTP.Secret = "" },
		"totp not base32":    func(c *Config) { c.TOTP.Secret = "not-base32!!" },
		"zero attempts":      func(c *Config) { c.Lockout.MaxAttempts = 0 },
		"zero lockout":       func(c *Config) { c.Lockout.Duration = 0 },
		"zero store timeout": func(c *Config) { c.Store.Timeout = 0 },
		"zero touch timeout": func(c *Config) { c.Store.TouchTimeout = 0 },
		"empty notify queue": func(c *Config) { c.Notify.BufferSize = 0 },
	}
	for name, mutate := range cases {
		cfg := testEngineConfig()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: expected ErrConfiguration, got %v", name, err)
		}
	}
}

func TestConfigAcceptsLowercaseTOTPSecret(t *testing.T) {
	cfg := testEngineConfig()
	cfg.TOTP.Secret = "jbswy3dpehpk3pxp"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("lowercase secret: %v", err)
	}
}

func TestBuildConfigImmutabilityAgainstExternalMutation(t *testing.T) {
	secret := []byte("immutability-secret-0123456789")
	h := newHarness(t, func(c *Config, _ *Builder) {
		c.JWT.Secret = secret
	})

	res := h.login(t, "192.0.2.60")
	secret[0] = 'X'

	if _, err := h.engine.Authorize(loginCtx("192.0.2.60"), res.Token); err != nil {
		t.Fatalf("engine should keep its own copy of the secret: %v", err)
	}
}
