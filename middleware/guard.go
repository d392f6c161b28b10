package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrEthical07/gatekeeper"
)

type authResultContextKey struct{}

// IdentityFromContext returns the identity stored by Guard.
func IdentityFromContext(ctx context.Context) (*gatekeeper.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*gatekeeper.AuthResult)
	return res, ok
}

// GuardOptions configures Guard.
type GuardOptions struct {
	Cookie CookieOptions
	// LoginPath is where browser navigations are sent on failure.
	// Defaults to /auth/login.
	LoginPath string
}

// Guard authorizes the session cookie on every request.
//
// On success the cookie is re-issued with the refreshed token. A rejected
// or revoked token clears the cookie. Any other failure (store fault,
// closed engine, token signing) answers 503 and leaves the cookie alone.
func Guard(engine *gatekeeper.Engine, opts GuardOptions) func(http.Handler) http.Handler {
	if opts.LoginPath == "" {
		opts.LoginPath = "/auth/login"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeJSON(w, http.StatusUnauthorized, errorBody("Unauthorized"))
				return
			}

			token := SessionToken(r)
			res, err := engine.Authorize(r.Context(), token)
			if err != nil {
				rejectGuarded(w, r, err, token != "", opts)
				return
			}

			SetSessionCookie(w, res.Token, engine.SessionTTL(), opts.Cookie)
			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rejectGuarded(w http.ResponseWriter, r *http.Request, err error, hadCookie bool, opts GuardOptions) {
	revoked := errors.Is(err, gatekeeper.ErrSessionRevoked)
	if !revoked && !errors.Is(err, gatekeeper.ErrUnauthenticated) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("Service unavailable"))
		return
	}

	if hadCookie {
		ClearSessionCookie(w, opts.Cookie)
	}

	if wantsHTML(r) {
		target := opts.LoginPath
		if revoked {
			target += "?error=" + url.QueryEscape("Session Revoked")
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	message := "Unauthorized"
	if revoked {
		message = "Session revoked"
	}
	writeJSON(w, http.StatusUnauthorized, errorBody(message))
}

// wantsHTML reports a top-level browser navigation.
func wantsHTML(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func errorBody(message string) map[string]any {
	return map[string]any{"success": false, "message": message}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
