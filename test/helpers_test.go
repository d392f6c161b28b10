//go:build integration
// +build integration

package test

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/gatekeeper"
	"github.com/MrEthical07/gatekeeper/api"
	"github.com/MrEthical07/gatekeeper/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
)

const testTOTPSecret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

type backend struct {
	name string
	open func(t *testing.T, rdb *redis.Client) session.Registry
}

var backends = []backend{
	{
		name: "redis",
		open: func(t *testing.T, rdb *redis.Client) session.Registry {
			return session.NewRedisStore(rdb, "gk")
		},
	},
	{
		name: "sqlite",
		open: func(t *testing.T, _ *redis.Client) session.Registry {
			store, err := session.OpenSQL(context.Background(), "", filepath.Join(t.TempDir(), "sessions.sqlite"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return store
		},
	},
}

type stack struct {
	engine *gatekeeper.Engine
	server *httptest.Server
	sink   *gatekeeper.ChannelSink
	redis  *redis.Client
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return rdb
}

func newStack(t *testing.T, b backend) *stack {
	t.Helper()
	rdb := newRedis(t)
	registry := b.open(t, rdb)

	cfg := gatekeeper.DefaultConfig()
	cfg.JWT.Secret = []byte("integration-secret-0123456789ab")
	cfg.TOTP.Secret = testTOTPSecret
	cfg.Metrics.Enabled = true

	sink := gatekeeper.NewChannelSink(128)
	engine, err := gatekeeper.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithRegistry(registry).
		WithNotificationSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	srv := httptest.NewServer(api.NewRouter(engine, api.Options{TrustProxy: true}, nil))
	t.Cleanup(func() {
		srv.Close()
		engine.Close()
		_ = registry.Close()
	})
	return &stack{engine: engine, server: srv, sink: sink, redis: rdb}
}

// client is a browser stand-in: one cookie jar, one forwarded address.
type client struct {
	t    *testing.T
	http *http.Client
	base string
	ip   string
}

func (s *stack) client(t *testing.T, ip string) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &client{
		t: t,
		http: &http.Client{
			Jar:     jar,
			Timeout: 5 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		base: s.server.URL,
		ip:   ip,
	}
}

func (c *client) do(method, path, body string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, strings.NewReader(body))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Forwarded-For", c.ip)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	c.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (c *client) login() {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/auth/login", `{"code":"`+currentCode(c.t)+`"}`)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login: status %d", resp.StatusCode)
	}
}

func currentCode(t *testing.T) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(testTOTPSecret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	return code
}
