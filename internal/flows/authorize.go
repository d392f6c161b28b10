package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/gatekeeper/jwt"
	"github.com/MrEthical07/gatekeeper/session"
)

// AuthorizeFailureKind classifies authorization failures for root-level
// mapping.
type AuthorizeFailureKind int

const (
	AuthorizeFailureNone AuthorizeFailureKind = iota
	AuthorizeFailureUnauthenticated
	AuthorizeFailureRevoked
	AuthorizeFailureStore
	AuthorizeFailureRefresh
)

// AuthorizeResult returns the refreshed token or a classified failure.
type AuthorizeResult struct {
	Failure   AuthorizeFailureKind
	Err       error
	Claims    *jwt.Claims
	Session   *session.Session
	Legacy    bool
	Token     string
	ExpiresAt time.Time
}

// AuthorizeDeps captures per-request authorization dependencies.
type AuthorizeDeps struct {
	Parse       func(string) (*jwt.Claims, error)
	AllowLegacy bool
	GetSession  func(ctx context.Context, id string) (*session.Session, error)
	// Touch must not block; the heartbeat is not part of the decision.
	Touch    func(ctx context.Context, id string)
	Refresh  func(*jwt.Claims) (string, time.Time, error)
	NotFound error
}

// RunAuthorize verifies token, confirms its session still exists, and
// re-issues the token with a fresh expiry.
func RunAuthorize(ctx context.Context, token string, deps AuthorizeDeps) AuthorizeResult {
	if token == "" {
		return AuthorizeResult{Failure: AuthorizeFailureUnauthenticated}
	}

	claims, err := deps.Parse(token)
	if err != nil {
		return AuthorizeResult{Failure: AuthorizeFailureUnauthenticated, Err: err}
	}

	var sess *session.Session
	legacy := claims.SessionID == ""
	if legacy {
		if !deps.AllowLegacy {
			return AuthorizeResult{Failure: AuthorizeFailureUnauthenticated}
		}
	} else {
		sess, err = deps.GetSession(ctx, claims.SessionID)
		if err != nil {
			if deps.NotFound != nil && errors.Is(err, deps.NotFound) {
				return AuthorizeResult{Failure: AuthorizeFailureRevoked, Err: err, Claims: claims}
			}
			return AuthorizeResult{Failure: AuthorizeFailureStore, Err: err, Claims: claims}
		}
		if sess.UserID != claims.User {
			return AuthorizeResult{Failure: AuthorizeFailureUnauthenticated, Claims: claims}
		}
		if deps.Touch != nil {
			deps.Touch(ctx, claims.SessionID)
		}
	}

	refreshed, expiresAt, err := deps.Refresh(claims)
	if err != nil {
		return AuthorizeResult{Failure: AuthorizeFailureRefresh, Err: err, Claims: claims}
	}

	return AuthorizeResult{
		Claims:    claims,
		Session:   sess,
		Legacy:    legacy,
		Token:     refreshed,
		ExpiresAt: expiresAt,
	}
}
