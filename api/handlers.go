package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/gatekeeper"
	gkmiddleware "github.com/MrEthical07/gatekeeper/middleware"
)

const maxBodyBytes = 4 << 10

// decodeBody reads a small JSON or form body into dst. Form fields are
// copied by JSON tag name.
func decodeBody(r *http.Request, dst map[string]*string) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return
		}
		for key, ptr := range dst {
			*ptr = r.PostForm.Get(key)
		}
		return
	}

	var raw map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&raw); err != nil {
		return
	}
	for key, ptr := range dst {
		if s, ok := raw[key].(string); ok {
			*ptr = s
		}
	}
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var code, legacy string
	decodeBody(r, map[string]*string{"code": &code, "token": &legacy})
	if code == "" {
		code = legacy
	}

	res, err := h.engine.Login(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	gkmiddleware.SetSessionCookie(w, res.Token, h.engine.SessionTTL(), h.cookie)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	err := h.engine.Logout(r.Context(), gkmiddleware.SessionToken(r))
	gkmiddleware.ClearSessionCookie(w, h.cookie)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	store := "ok"
	status := http.StatusOK
	if err := h.engine.Ping(r.Context()); err != nil {
		store = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":  "OK",
		"message": "Server is running",
		"store":   store,
	})
}

func (h *handler) ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": h.now().UnixMilli(),
	})
}

func (h *handler) sessionConfig(w http.ResponseWriter, r *http.Request) {
	minutes := int(h.engine.SessionTTL().Minutes())
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionTimeoutMinutes": minutes,
		"sessionTimeout":        minutes,
	})
}

type sessionView struct {
	SessionID  string `json:"session_id"`
	IP         string `json:"ip"`
	Device     string `json:"device"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	CreatedAt  int64  `json:"created_at"`
	LastActive int64  `json:"last_active"`
	IsCurrent  bool   `json:"isCurrent"`
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	var current string
	if id, ok := gkmiddleware.IdentityFromContext(r.Context()); ok {
		current = id.SessionID
	}

	sessions, err := h.engine.ListSessions(r.Context(), current)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView{
			SessionID:  s.SessionID,
			IP:         s.IP,
			Device:     s.Device,
			Browser:    s.Browser,
			OS:         s.OS,
			CreatedAt:  s.CreatedAt.UnixMilli(),
			LastActive: s.LastActive.UnixMilli(),
			IsCurrent:  s.Current,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	var sessionID string
	decodeBody(r, map[string]*string{"session_id": &sessionID})

	if err := h.engine.RevokeSession(r.Context(), sessionID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type lockedView struct {
	IP          string `json:"ip"`
	LockedUntil int64  `json:"lockedUntil"`
}

func (h *handler) listLocked(w http.ResponseWriter, r *http.Request) {
	locked, err := h.engine.ListLocked(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]lockedView, 0, len(locked))
	for _, l := range locked {
		out = append(out, lockedView{IP: l.IP, LockedUntil: l.LockedUntil.UnixMilli()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) unlock(w http.ResponseWriter, r *http.Request) {
	var ip string
	decodeBody(r, map[string]*string{"ip": &ip})

	if err := h.engine.Unlock(r.Context(), ip); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// setupTOTP returns a fresh secret for enrolling a new authenticator. The
// running server keeps verifying against its configured secret until the
// operator replaces TOTP_SECRET.
func (h *handler) setupTOTP(w http.ResponseWriter, r *http.Request) {
	issuer := h.opts.TOTPIssuer
	if issuer == "" {
		issuer = "Gatekeeper"
	}
	account := h.opts.TOTPAccount
	if account == "" {
		account = h.engine.AdminUser()
	}

	secret, uri, err := gatekeeper.GenerateTOTPSecret(issuer, account)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("totp enrollment secret generated")
	writeJSON(w, http.StatusOK, map[string]any{
		"secret":      secret,
		"otpauth_url": uri,
	})
}
