package api

import (
	"net/http"
	"time"

	"github.com/MrEthical07/gatekeeper"
	gkmiddleware "github.com/MrEthical07/gatekeeper/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Options configures the router.
type Options struct {
	// TrustProxy takes the client address from X-Forwarded-For. Off, the
	// lockout key is the TCP peer.
	TrustProxy   bool
	CookieSecure bool
	// RequestTimeout bounds each request. Defaults to 30s.
	RequestTimeout time.Duration
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Google enables /auth/google when set.
	Google *GoogleConfig
	// TOTPAccount names the account in /admin/setup-totp URIs.
	TOTPIssuer  string
	TOTPAccount string
}

type handler struct {
	engine *gatekeeper.Engine
	opts   Options
	cookie gkmiddleware.CookieOptions
	logger *zap.Logger
	google *googleLogin
	now    func() time.Time
}

// NewRouter wires every route onto a chi router.
func NewRouter(engine *gatekeeper.Engine, opts Options, logger *zap.Logger) chi.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	h := &handler{
		engine: engine,
		opts:   opts,
		cookie: gkmiddleware.CookieOptions{Secure: opts.CookieSecure},
		logger: logger,
		now:    time.Now,
	}
	if opts.Google != nil {
		h.google = newGoogleLogin(*opts.Google)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	if opts.TrustProxy {
		router.Use(middleware.RealIP)
	}
	router.Use(AccessLog(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(opts.RequestTimeout))
	router.Use(gkmiddleware.ClientContext(opts.TrustProxy))

	router.Get("/health", h.health)
	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	router.Route("/auth", func(r chi.Router) {
		r.With(gkmiddleware.LoginGate(engine, opts.TrustProxy)).Post("/login", h.login)
		r.Post("/logout", h.logout)
		if h.google != nil {
			r.Get("/google", h.googleStart)
			r.Get("/google/callback", h.googleCallback)
		}
	})

	router.Group(func(r chi.Router) {
		r.Use(gkmiddleware.Guard(engine, gkmiddleware.GuardOptions{Cookie: h.cookie}))

		r.Get("/api/ping", h.ping)
		r.Get("/api/session-config", h.sessionConfig)

		r.Get("/admin/sessions", h.listSessions)
		r.Post("/admin/sessions/revoke", h.revokeSession)
		r.Get("/admin/locked", h.listLocked)
		r.Post("/admin/unlock", h.unlock)
		r.Get("/admin/setup-totp", h.setupTOTP)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Not found"})
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"success": false, "message": "Method not allowed"})
	})

	return router
}

// AccessLog logs one line per request after it completes.
func AccessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Int("status", ww.Status()),
					zap.Duration("duration", time.Since(start)),
					zap.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
