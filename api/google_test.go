package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/gatekeeper"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

func newFakeGoogle(t *testing.T, email string, verified bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"test-access","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"email": email, "verified_email": verified})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newGoogleHandler(t *testing.T, engine *gatekeeper.Engine, providerURL string) *handler {
	t.Helper()
	g := newGoogleLogin(GoogleConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/auth/google/callback",
		AllowedEmail: "Owner@Example.com",
	})
	g.oauth.Endpoint = oauth2.Endpoint{AuthURL: providerURL + "/auth", TokenURL: providerURL + "/token"}
	g.userInfoURL = providerURL + "/userinfo"
	return &handler{
		engine: engine,
		logger: zap.NewNop(),
		google: g,
		now:    time.Now,
	}
}

func callback(h *handler, state, cookieState string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state="+url.QueryEscape(state), nil)
	if cookieState != "" {
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: cookieState})
	}
	rec := httptest.NewRecorder()
	h.googleCallback(rec, req)
	return rec
}

func waitEvent(t *testing.T, sink *gatekeeper.ChannelSink, want string) gatekeeper.NotificationEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %q event", want)
		}
	}
}

func TestGoogleStartSetsStateAndRedirects(t *testing.T) {
	a := newAPIHarness(t, Options{})
	h := newGoogleHandler(t, a.engine, "https://accounts.test")

	rec := httptest.NewRecorder()
	h.googleStart(rec, httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}

	var state string
	for _, c := range rec.Result().Cookies() {
		if c.Name == oauthStateCookie {
			state = c.Value
		}
	}
	if state == "" {
		t.Fatal("state cookie missing")
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if loc.Query().Get("state") != state {
		t.Fatalf("redirect state %q does not match cookie %q", loc.Query().Get("state"), state)
	}
}

func TestGoogleCallbackAllowedEmail(t *testing.T) {
	a := newAPIHarness(t, Options{})
	srv := newFakeGoogle(t, "owner@example.com", true)
	h := newGoogleHandler(t, a.engine, srv.URL)

	rec := callback(h, "s1", "s1")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	cookie := sessionCookie(rec)
	if cookie == nil || cookie.Value == "" {
		t.Fatal("session cookie not set")
	}
	waitEvent(t, a.sink, gatekeeper.EventGoogleLoginSuccess)

	if ping := a.do(jsonRequest(http.MethodGet, "/api/ping", nil, cookie)); ping.Code != http.StatusOK {
		t.Fatalf("google session should authorize, got %d", ping.Code)
	}
}

func TestGoogleCallbackRejects(t *testing.T) {
	cases := map[string]struct {
		email       string
		verified    bool
		state       string
		cookieState string
		wantError   string
	}{
		"other email":    {"intruder@example.com", true, "s", "s", "Unauthorized Email"},
		"unverified":     {"owner@example.com", false, "s", "s", "Unauthorized Email"},
		"state mismatch": {"owner@example.com", true, "s", "other", "Authentication Failed"},
		"no state":       {"owner@example.com", true, "s", "", "Authentication Failed"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			a := newAPIHarness(t, Options{})
			srv := newFakeGoogle(t, tc.email, tc.verified)
			h := newGoogleHandler(t, a.engine, srv.URL)

			rec := callback(h, tc.state, tc.cookieState)
			want := "/auth/login?error=" + url.QueryEscape(tc.wantError)
			if rec.Code != http.StatusFound || rec.Header().Get("Location") != want {
				t.Fatalf("expected redirect to %q, got %d %q", want, rec.Code, rec.Header().Get("Location"))
			}
			if c := sessionCookie(rec); c != nil {
				t.Fatal("rejected login must not set a session")
			}
			if tc.wantError == "Unauthorized Email" {
				ev := waitEvent(t, a.sink, gatekeeper.EventGoogleLoginDenied)
				if !strings.EqualFold(ev.Details["email"], tc.email) {
					t.Fatalf("unexpected denied event %+v", ev)
				}
			}
		})
	}
}
