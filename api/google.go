package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/gatekeeper"
	"github.com/MrEthical07/gatekeeper/internal/useragent"
	gkmiddleware "github.com/MrEthical07/gatekeeper/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	oauthStateCookie  = "oauth_state"
	oauthStateTTL     = 10 * time.Minute
)

// GoogleConfig enables sign-in with a single allowed Google account.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AllowedEmail string
}

type googleLogin struct {
	oauth       *oauth2.Config
	allowed     string
	userInfoURL string
}

func newGoogleLogin(cfg GoogleConfig) *googleLogin {
	return &googleLogin{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		allowed:     strings.TrimSpace(cfg.AllowedEmail),
		userInfoURL: googleUserInfoURL,
	}
}

type googleProfile struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
}

func (g *googleLogin) profile(ctx context.Context, code string) (googleProfile, error) {
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return googleProfile{}, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return googleProfile{}, err
	}
	resp, err := g.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return googleProfile{}, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return googleProfile{}, fmt.Errorf("fetch profile: status %d", resp.StatusCode)
	}

	var p googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return googleProfile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}

func (g *googleLogin) permits(p googleProfile) bool {
	return g.allowed != "" && p.VerifiedEmail && strings.EqualFold(p.Email, g.allowed)
}

func (h *handler) googleStart(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   int(oauthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.google.oauth.AuthCodeURL(state), http.StatusFound)
}

func (h *handler) googleCallback(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/auth/google",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	state, err := r.Cookie(oauthStateCookie)
	if err != nil || state.Value == "" || state.Value != r.URL.Query().Get("state") {
		h.redirectLoginError(w, r, "Authentication Failed")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectLoginError(w, r, "Authentication Failed")
		return
	}

	profile, err := h.google.profile(r.Context(), code)
	if err != nil {
		h.logger.Warn("google login failed", zap.Error(err))
		h.redirectLoginError(w, r, "Authentication Failed")
		return
	}

	details := map[string]string{
		"ip":        useragent.ClientIP(r, h.opts.TrustProxy),
		"userAgent": r.UserAgent(),
		"email":     profile.Email,
	}

	if !h.google.permits(profile) {
		h.engine.Notify(r.Context(), gatekeeper.NotificationEvent{
			Type:    gatekeeper.EventGoogleLoginDenied,
			Details: details,
		})
		h.redirectLoginError(w, r, "Unauthorized Email")
		return
	}

	res, err := h.engine.StartSession(r.Context(), h.engine.AdminUser())
	if err != nil {
		h.logger.Error("google login session failed", zap.Error(err))
		h.redirectLoginError(w, r, "Authentication Failed")
		return
	}

	gkmiddleware.SetSessionCookie(w, res.Token, h.engine.SessionTTL(), h.cookie)
	h.engine.Notify(r.Context(), gatekeeper.NotificationEvent{
		Type:    gatekeeper.EventGoogleLoginSuccess,
		Details: details,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *handler) redirectLoginError(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, "/auth/login?error="+url.QueryEscape(message), http.StatusFound)
}
