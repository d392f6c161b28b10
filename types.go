package gatekeeper

import (
	"context"
	"time"

	"github.com/MrEthical07/gatekeeper/internal/limiters"
)

// LockedIP is an address with a lock still in the future.
type LockedIP = limiters.LockedIP

// LimitStatus is the limiter's view of one address.
type LimitStatus = limiters.Status

// IPLimiter throttles failed logins per client address. Implementations must
// make the transitions on one address linearizable.
//
//	Implemented by limiters.MemoryLimiter and limiters.RedisLimiter.
type IPLimiter interface {
	Check(ctx context.Context, ip string, now time.Time) (LimitStatus, error)
	RecordFailure(ctx context.Context, ip string, now time.Time) (LimitStatus, error)
	Reset(ctx context.Context, ip string) error
	ListLocked(ctx context.Context, now time.Time) ([]LockedIP, error)
}

// LoginResult is returned by [Engine.Login] and [Engine.StartSession].
// Token belongs in the session cookie; it expires at ExpiresAt unless a
// guarded request refreshes it first.
type LoginResult struct {
	SessionID string
	Token     string
	ExpiresAt time.Time
}

// AuthResult is returned by [Engine.Authorize]. Token is the refreshed
// session token the caller must send back.
type AuthResult struct {
	UserID    string
	SessionID string
	// Legacy is set for tokens without a session id. They are accepted only
	// with SessionConfig.AllowLegacyTokens and are never revocable.
	Legacy bool

	Token     string
	ExpiresAt time.Time
}

// SessionInfo is one row of the admin session list.
type SessionInfo struct {
	SessionID  string
	IP         string
	Device     string
	Browser    string
	OS         string
	CreatedAt  time.Time
	LastActive time.Time
	// Current marks the session the listing request itself was made with.
	Current bool
}
