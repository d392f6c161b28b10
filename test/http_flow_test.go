//go:build integration
// +build integration

package test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/MrEthical07/gatekeeper"
)

type sessionRow struct {
	SessionID string `json:"session_id"`
	IP        string `json:"ip"`
	Browser   string `json:"browser"`
	OS        string `json:"os"`
	IsCurrent bool   `json:"isCurrent"`
}

func decodeJSON(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := newStack(t, b)
			c := s.client(t, "203.0.113.10")
			c.login()

			if resp := c.do(http.MethodGet, "/api/ping", ""); resp.StatusCode != http.StatusOK {
				t.Fatalf("ping: status %d", resp.StatusCode)
			}

			var rows []sessionRow
			decodeJSON(t, c.do(http.MethodGet, "/admin/sessions", ""), &rows)
			if len(rows) != 1 {
				t.Fatalf("expected one session, got %+v", rows)
			}
			row := rows[0]
			if !row.IsCurrent || row.IP != "203.0.113.10" || row.Browser != "Firefox" || row.OS != "Linux" {
				t.Fatalf("unexpected session row %+v", row)
			}

			if resp := c.do(http.MethodPost, "/auth/logout", ""); resp.StatusCode != http.StatusOK {
				t.Fatalf("logout: status %d", resp.StatusCode)
			}
			if resp := c.do(http.MethodGet, "/api/ping", ""); resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("ping after logout: expected 401, got %d", resp.StatusCode)
			}
		})
	}
}

func TestRevokeFromAnotherDevice(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := newStack(t, b)
			laptop := s.client(t, "203.0.113.20")
			phone := s.client(t, "203.0.113.21")
			laptop.login()
			phone.login()

			var rows []sessionRow
			decodeJSON(t, laptop.do(http.MethodGet, "/admin/sessions", ""), &rows)
			if len(rows) != 2 {
				t.Fatalf("expected two sessions, got %+v", rows)
			}
			var phoneSID string
			for _, r := range rows {
				if r.IP == "203.0.113.21" {
					phoneSID = r.SessionID
				}
			}
			if phoneSID == "" {
				t.Fatalf("phone session not listed: %+v", rows)
			}

			resp := laptop.do(http.MethodPost, "/admin/sessions/revoke", `{"session_id":"`+phoneSID+`"}`)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("revoke: status %d", resp.StatusCode)
			}

			if resp := phone.do(http.MethodGet, "/api/ping", ""); resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("revoked phone: expected 401, got %d", resp.StatusCode)
			}
			if resp := laptop.do(http.MethodGet, "/api/ping", ""); resp.StatusCode != http.StatusOK {
				t.Fatalf("laptop: expected 200, got %d", resp.StatusCode)
			}
		})
	}
}

func TestLockoutIsPerAddress(t *testing.T) {
	s := newStack(t, backends[0])
	attacker := s.client(t, "198.51.100.66")
	owner := s.client(t, "198.51.100.67")

	for i := 0; i < 5; i++ {
		if resp := attacker.do(http.MethodPost, "/auth/login", `{"code":"000000"}`); resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, resp.StatusCode)
		}
	}

	resp := attacker.do(http.MethodPost, "/auth/login", `{"code":"`+currentCode(t)+`"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	var body struct {
		LockedUntil int64 `json:"lockedUntil"`
	}
	decodeJSON(t, resp, &body)
	remaining := time.Until(time.UnixMilli(body.LockedUntil))
	if remaining < 14*time.Minute || remaining > 15*time.Minute+time.Second {
		t.Fatalf("unexpected lock window %v", remaining)
	}

	owner.login()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.sink.Events():
			if ev.Type == gatekeeper.EventLoginLockout {
				if ev.Details["ip"] != "198.51.100.66" {
					t.Fatalf("unexpected lockout event %+v", ev)
				}
				return
			}
		case <-deadline:
			t.Fatal("no lockout notification")
		}
	}
}

func TestHealthReportsStore(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := newStack(t, b)
			resp := s.client(t, "203.0.113.30").do(http.MethodGet, "/health", "")
			var body map[string]string
			decodeJSON(t, resp, &body)
			if resp.StatusCode != http.StatusOK || body["store"] != "ok" {
				t.Fatalf("unexpected health %d %v", resp.StatusCode, body)
			}
		})
	}
}
