package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/gatekeeper/internal/limiters"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureLocked
	LoginFailureInvalidCode
	LoginFailureLimiter
	LoginFailureSession
	LoginFailureNotReady
)

// IssuedSession is a freshly created registry row and its first token.
type IssuedSession struct {
	SessionID string
	Token     string
	ExpiresAt time.Time
}

// LoginResult carries either the issued session or a classified failure.
type LoginResult struct {
	Failure     LoginFailureKind
	Err         error
	IP          string
	LockedUntil time.Time
	Session     *IssuedSession
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginRateLimited int
	Lockout          int
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	// MaxAttempts identifies the failure that sets the lock so OnLockout
	// fires once per lockout.
	MaxAttempts int

	Now                 func() time.Time
	ClientIPFromContext func(context.Context) string

	Check         func(ctx context.Context, ip string, now time.Time) (limiters.Status, error)
	RecordFailure func(ctx context.Context, ip string, now time.Time) (limiters.Status, error)
	Reset         func(ctx context.Context, ip string) error

	VerifyCode   func(code string, now time.Time) bool
	StartSession func(ctx context.Context) (*IssuedSession, error)

	OnLockout func(ctx context.Context, ip string, until time.Time)
	OnSuccess func(ctx context.Context, ip string, issued *IssuedSession)
	MetricInc func(int)
	Warn      func(string, ...any)

	Metrics LoginMetrics
}

// RunLogin gates the caller's address, verifies code, and on success resets
// the address and starts a session. A locked address is rejected before the
// code is looked at.
func RunLogin(ctx context.Context, code string, deps LoginDeps) LoginResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.OnLockout == nil {
		deps.OnLockout = func(context.Context, string, time.Time) {}
	}
	if deps.OnSuccess == nil {
		deps.OnSuccess = func(context.Context, string, *IssuedSession) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.Check == nil ||
		deps.RecordFailure == nil ||
		deps.Reset == nil ||
		deps.VerifyCode == nil ||
		deps.StartSession == nil {
		return LoginResult{Failure: LoginFailureNotReady}
	}

	now := deps.Now()
	ip := deps.ClientIPFromContext(ctx)

	status, err := deps.Check(ctx, ip, now)
	if err != nil {
		return LoginResult{Failure: LoginFailureLimiter, Err: err, IP: ip}
	}
	if status.Locked(now) {
		deps.MetricInc(deps.Metrics.LoginRateLimited)
		return LoginResult{Failure: LoginFailureLocked, IP: ip, LockedUntil: status.LockedUntil}
	}

	if !deps.VerifyCode(code, now) {
		status, err := deps.RecordFailure(ctx, ip, now)
		if err != nil {
			return LoginResult{Failure: LoginFailureLimiter, Err: err, IP: ip}
		}
		deps.MetricInc(deps.Metrics.LoginFailure)
		if status.Locked(now) && (deps.MaxAttempts <= 0 || status.Attempts == deps.MaxAttempts) {
			deps.MetricInc(deps.Metrics.Lockout)
			deps.OnLockout(ctx, ip, status.LockedUntil)
		}
		return LoginResult{Failure: LoginFailureInvalidCode, IP: ip}
	}

	if err := deps.Reset(ctx, ip); err != nil {
		deps.Warn("limiter reset after successful login failed", "ip", ip, "error", err)
	}

	issued, err := deps.StartSession(ctx)
	if err != nil {
		return LoginResult{Failure: LoginFailureSession, Err: err, IP: ip}
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.OnSuccess(ctx, ip, issued)
	return LoginResult{IP: ip, Session: issued}
}
