package flows

import (
	"context"

	"github.com/MrEthical07/gatekeeper/jwt"
)

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Parse  func(string) (*jwt.Claims, error)
	Revoke func(ctx context.Context, id string) error
}

// LogoutResult names the revoked session, if any.
type LogoutResult struct {
	SessionID string
	Err       error
}

// RunLogout revokes the session behind token. Absent, invalid and legacy
// tokens have nothing to revoke and succeed.
func RunLogout(ctx context.Context, token string, deps LogoutDeps) LogoutResult {
	if token == "" {
		return LogoutResult{}
	}
	claims, err := deps.Parse(token)
	if err != nil || claims.SessionID == "" {
		return LogoutResult{}
	}
	return LogoutResult{
		SessionID: claims.SessionID,
		Err:       deps.Revoke(ctx, claims.SessionID),
	}
}
