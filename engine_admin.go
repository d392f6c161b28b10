package gatekeeper

import (
	"context"
	"strings"

	"github.com/MrEthical07/gatekeeper/session"
)

// ListSessions returns the admin user's sessions, most recently active
// first. The session whose id equals currentSessionID is flagged Current.
func (e *Engine) ListSessions(ctx context.Context, currentSessionID string) ([]SessionInfo, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}

	var rows []session.Session
	err := e.withStore(ctx, "session.list", true, func(ctx context.Context, _ int) error {
		var err error
		rows, err = e.registry.ListByUser(ctx, e.config.Session.AdminUser)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]SessionInfo, 0, len(rows))
	for _, s := range rows {
		out = append(out, SessionInfo{
			SessionID:  s.ID,
			IP:         s.IP,
			Device:     s.Device,
			Browser:    s.Browser,
			OS:         s.OS,
			CreatedAt:  s.CreatedAt,
			LastActive: s.LastActive,
			Current:    currentSessionID != "" && s.ID == currentSessionID,
		})
	}
	return out, nil
}

// RevokeSession deletes a session. The next request carrying its token is
// rejected with ErrSessionRevoked. Revoking an unknown id succeeds.
func (e *Engine) RevokeSession(ctx context.Context, sessionID string) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrInvalidInput
	}
	if err := e.revokeSession(ctx, sessionID); err != nil {
		return err
	}
	e.metricInc(MetricSessionRevoked)
	e.logger.Sugar().Infow("session revoked", "session", sessionHint(sessionID))
	return nil
}

// ListLocked returns addresses whose lock has not yet expired.
func (e *Engine) ListLocked(ctx context.Context) ([]LockedIP, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	now := e.now()
	var locked []LockedIP
	err := e.withStore(ctx, "limiter.list_locked", true, func(ctx context.Context, _ int) error {
		var err error
		locked, err = e.limiter.ListLocked(ctx, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	if locked == nil {
		locked = []LockedIP{}
	}
	return locked, nil
}

// Unlock clears the lock and attempt count for ip.
func (e *Engine) Unlock(ctx context.Context, ip string) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ErrInvalidInput
	}
	if err := e.limiterReset(ctx, ip); err != nil {
		return err
	}
	e.metricInc(MetricUnlock)
	e.logger.Sugar().Infow("address unlocked", "ip", ip)
	return nil
}

// Ping reports whether the session registry answers.
func (e *Engine) Ping(ctx context.Context) error {
	return e.withStore(ctx, "session.ping", false, func(ctx context.Context, _ int) error {
		return e.registry.Ping(ctx)
	})
}
