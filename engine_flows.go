package gatekeeper

import (
	"context"
	"time"

	internalflows "github.com/MrEthical07/gatekeeper/internal/flows"
	"github.com/MrEthical07/gatekeeper/internal/useragent"
	"github.com/MrEthical07/gatekeeper/jwt"
	"github.com/MrEthical07/gatekeeper/session"
	"go.uber.org/zap"
)

func (e *Engine) buildFlowDeps() internalflows.Deps {
	return internalflows.Deps{
		Login:     e.loginFlowDeps(),
		Authorize: e.authorizeFlowDeps(),
		Logout:    e.logoutFlowDeps(),
	}
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	secret := e.config.TOTP.Secret
	return internalflows.LoginDeps{
		MaxAttempts:         e.config.Lockout.MaxAttempts,
		Now:                 e.now,
		ClientIPFromContext: clientIPFromContext,
		Check: func(ctx context.Context, ip string, now time.Time) (LimitStatus, error) {
			return e.limiterCheck(ctx, ip, now)
		},
		RecordFailure: e.limiterRecordFailure,
		Reset:         e.limiterReset,
		VerifyCode: func(code string, now time.Time) bool {
			return VerifyTOTP(code, secret, now)
		},
		StartSession: func(ctx context.Context) (*internalflows.IssuedSession, error) {
			return e.startSession(ctx, e.config.Session.AdminUser)
		},
		OnLockout: e.onLockout,
		OnSuccess: e.onLoginSuccess,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		Warn: func(msg string, kv ...any) {
			e.logger.Sugar().Warnw(msg, kv...)
		},
		Metrics: internalflows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginRateLimited: int(MetricLoginRateLimited),
			Lockout:          int(MetricLockout),
		},
	}
}

func (e *Engine) authorizeFlowDeps() internalflows.AuthorizeDeps {
	return internalflows.AuthorizeDeps{
		Parse:       e.jwtManager.Parse,
		AllowLegacy: e.config.Session.AllowLegacyTokens,
		GetSession:  e.getSession,
		Touch: func(_ context.Context, id string) {
			e.touchAsync(id)
		},
		Refresh: func(claims *jwt.Claims) (string, time.Time, error) {
			return e.jwtManager.Refresh(claims)
		},
		NotFound: session.ErrNotFound,
	}
}

func (e *Engine) logoutFlowDeps() internalflows.LogoutDeps {
	return internalflows.LogoutDeps{
		Parse:  e.jwtManager.Parse,
		Revoke: e.revokeSession,
	}
}

func (e *Engine) onLockout(ctx context.Context, ip string, until time.Time) {
	e.logger.Warn("address locked out",
		zap.String("ip", ip),
		zap.Time("locked_until", until),
	)
	e.Notify(ctx, NotificationEvent{
		Type: EventLoginLockout,
		Details: map[string]string{
			"ip":          ip,
			"location":    locationLabel(ip),
			"lockedUntil": until.UTC().Format(time.RFC3339),
			"userAgent":   userAgentFromContext(ctx),
		},
	})
}

func (e *Engine) onLoginSuccess(ctx context.Context, ip string, issued *internalflows.IssuedSession) {
	e.logger.Info("login succeeded",
		zap.String("ip", ip),
		zap.String("session", sessionHint(issued.SessionID)),
	)
	e.Notify(ctx, NotificationEvent{
		Type: EventLoginSuccess,
		Details: map[string]string{
			"ip":        ip,
			"location":  locationLabel(ip),
			"userAgent": userAgentFromContext(ctx),
			"language":  acceptLanguageFromContext(ctx),
			"session":   sessionHint(issued.SessionID),
		},
	})
}

func locationLabel(ip string) string {
	if useragent.IsLoopback(ip) {
		return "Localhost"
	}
	return "Unknown"
}
