package gatekeeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	internalflows "github.com/MrEthical07/gatekeeper/internal/flows"
	"github.com/MrEthical07/gatekeeper/internal/useragent"
	"github.com/MrEthical07/gatekeeper/jwt"
	"github.com/MrEthical07/gatekeeper/session"
	"go.uber.org/zap"
)

// Engine guards the admin surface: it gates and verifies logins, issues and
// refreshes session tokens and answers the admin session and lockout
// queries.
//
// Engine is safe for concurrent use. It is built once by [Builder.Build]
// and released with Close.
type Engine struct {
	config     Config
	registry   session.Registry
	limiter    IPLimiter
	jwtManager *jwt.Manager
	notify     *notifyDispatcher
	metrics    *Metrics
	logger     *zap.Logger

	now   func() time.Time
	newID func() string
	flows internalflows.Deps

	mu      sync.Mutex
	closed  bool
	touches sync.WaitGroup
}

// Close stops background work. It waits for in-flight session touches and
// drains queued notifications. The registry and limiter are left open; the
// caller owns them.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.touches.Wait()
	e.notify.Close()
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// NotifyDropped returns how many notifications were discarded because the
// dispatcher buffer was full.
func (e *Engine) NotifyDropped() uint64 {
	if e == nil || e.notify == nil {
		return 0
	}
	return e.notify.Dropped()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// SessionTTL is the sliding window applied to every issued token.
func (e *Engine) SessionTTL() time.Duration {
	return e.config.Session.TTL
}

// AdminUser is the identity sessions are issued for.
func (e *Engine) AdminUser() string {
	return e.config.Session.AdminUser
}

// Notify queues event for the notification sink. It never blocks the
// caller when the buffer is full.
func (e *Engine) Notify(ctx context.Context, event NotificationEvent) {
	if e == nil || e.notify == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	e.notify.Emit(ctx, event)
}

// Gate reports whether the address may attempt a login. A locked address
// gets a *LockoutError; a limiter fault gets ErrStoreUnavailable.
func (e *Engine) Gate(ctx context.Context, ip string) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	now := e.now()
	status, err := e.limiterCheck(ctx, ip, now)
	if err != nil {
		return err
	}
	if status.Locked(now) {
		e.metricInc(MetricLoginRateLimited)
		return &LockoutError{IP: ip, LockedUntil: status.LockedUntil}
	}
	return nil
}

// Login gates the caller's address (WithClientIP), verifies code and on
// success creates a session for the admin user.
//
// Errors: *LockoutError (matches ErrRateLimited) for a locked address,
// ErrInvalidCredentials for a wrong code, ErrStoreUnavailable when the
// limiter or registry cannot answer.
func (e *Engine) Login(ctx context.Context, code string) (*LoginResult, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}

	res := internalflows.RunLogin(ctx, code, e.flows.Login)
	switch res.Failure {
	case internalflows.LoginFailureNone:
		return &LoginResult{
			SessionID: res.Session.SessionID,
			Token:     res.Session.Token,
			ExpiresAt: res.Session.ExpiresAt,
		}, nil
	case internalflows.LoginFailureLocked:
		return nil, &LockoutError{IP: res.IP, LockedUntil: res.LockedUntil}
	case internalflows.LoginFailureInvalidCode:
		return nil, ErrInvalidCredentials
	case internalflows.LoginFailureLimiter, internalflows.LoginFailureSession:
		return nil, res.Err
	default:
		return nil, configError("engine not ready")
	}
}

// StartSession records a new registry session for userID and issues its
// first token. Client metadata is read from ctx (WithClientIP,
// WithUserAgent). Login calls it after a verified code; alternate login
// paths call it directly.
func (e *Engine) StartSession(ctx context.Context, userID string) (*LoginResult, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	issued, err := e.startSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		SessionID: issued.SessionID,
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	}, nil
}

func (e *Engine) startSession(ctx context.Context, userID string) (*internalflows.IssuedSession, error) {
	ua := useragent.Parse(userAgentFromContext(ctx))
	now := e.now()
	sess := &session.Session{
		ID:         e.newID(),
		UserID:     userID,
		IP:         clientIPFromContext(ctx),
		Browser:    ua.Browser,
		OS:         ua.OS,
		Device:     ua.Device,
		CreatedAt:  now,
		LastActive: now,
	}

	err := e.withStore(ctx, "session.create", true, func(ctx context.Context, attempt int) error {
		err := e.registry.Create(ctx, sess)
		// A retried create that collides was written by the attempt that
		// timed out.
		if attempt > 0 && isDuplicate(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := e.jwtManager.Issue(userID, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	e.metricInc(MetricSessionCreated)

	return &internalflows.IssuedSession{
		SessionID: sess.ID,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// Authorize checks a session token for a guarded request. On success the
// session's last activity is updated in the background and a refreshed
// token is returned.
//
// Errors: ErrUnauthenticated (missing, malformed, forged or expired token),
// ErrSessionRevoked (valid token, session gone), ErrStoreUnavailable
// (registry fault; the request must be denied).
func (e *Engine) Authorize(ctx context.Context, token string) (*AuthResult, error) {
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricAuthorizeLatency, time.Since(start)) }()
	}
	if e.isClosed() {
		return nil, ErrEngineClosed
	}

	res := internalflows.RunAuthorize(ctx, token, e.flows.Authorize)
	switch res.Failure {
	case internalflows.AuthorizeFailureNone:
		e.metricInc(MetricAuthorizeSuccess)
		out := &AuthResult{
			UserID:    res.Claims.User,
			SessionID: res.Claims.SessionID,
			Legacy:    res.Legacy,
			Token:     res.Token,
			ExpiresAt: res.ExpiresAt,
		}
		if res.Legacy {
			e.logger.Debug("legacy session token accepted", zap.String("user", out.UserID))
		}
		return out, nil
	case internalflows.AuthorizeFailureRevoked:
		e.metricInc(MetricAuthorizeRevoked)
		return nil, ErrSessionRevoked
	case internalflows.AuthorizeFailureStore:
		return nil, res.Err
	case internalflows.AuthorizeFailureRefresh:
		return nil, fmt.Errorf("refresh session token: %w", res.Err)
	default:
		e.metricInc(MetricAuthorizeUnauthenticated)
		return nil, ErrUnauthenticated
	}
}

// Logout revokes the session behind token. A missing, invalid or legacy
// token has nothing to revoke and is not an error.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	res := internalflows.RunLogout(ctx, token, e.flows.Logout)
	if res.Err != nil {
		return res.Err
	}
	e.metricInc(MetricLogout)
	if res.SessionID != "" {
		e.metricInc(MetricSessionRevoked)
	}
	return nil
}
