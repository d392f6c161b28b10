package middleware

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/gatekeeper"
	"github.com/MrEthical07/gatekeeper/internal/useragent"
)

// ClientContext stores the caller's address and headers for the Engine.
// With trustProxy the first X-Forwarded-For entry is the address.
func ClientContext(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := gatekeeper.WithClientIP(r.Context(), useragent.ClientIP(r, trustProxy))
			ctx = gatekeeper.WithUserAgent(ctx, r.UserAgent())
			ctx = gatekeeper.WithAcceptLanguage(ctx, r.Header.Get("Accept-Language"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoginGate answers 429 for a locked address before the wrapped login
// handler reads the request body.
func LoginGate(engine *gatekeeper.Engine, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := engine.Gate(r.Context(), useragent.ClientIP(r, trustProxy))
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			var lockout *gatekeeper.LockoutError
			switch {
			case errors.As(err, &lockout):
				WriteLockout(w, lockout)
			default:
				writeJSON(w, http.StatusServiceUnavailable, errorBody("Service unavailable"))
			}
		})
	}
}

// WriteLockout writes the 429 body; lockedUntil is epoch milliseconds.
func WriteLockout(w http.ResponseWriter, lockout *gatekeeper.LockoutError) {
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"success":     false,
		"message":     "Locked out",
		"lockedUntil": lockout.LockedUntil.UnixMilli(),
	})
}
