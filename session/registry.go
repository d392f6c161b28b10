package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when no session has the given id.
	ErrNotFound = errors.New("session not found")
	// ErrDuplicate is returned by Create when the id is already taken.
	ErrDuplicate = errors.New("session id already exists")
	// ErrStoreUnavailable wraps every backend failure. Callers treat it as
	// fail-closed.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrInvalidSession is returned by Create for a session missing its id or
	// user.
	ErrInvalidSession = errors.New("invalid session")
)

// Registry is the durable set of active sessions.
//
// Implementations must be safe for concurrent use. Single-row operations
// rely on the backend's own atomicity.
type Registry interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// Touch moves LastActive forward to at. A missing id is not an error.
	Touch(ctx context.Context, id string, at time.Time) error
	// ListByUser returns the user's sessions, most recently active first.
	ListByUser(ctx context.Context, userID string) ([]Session, error)
	// Revoke deletes the session. Revoking an absent id is not an error.
	Revoke(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

func validateNew(s *Session) error {
	if s == nil || s.ID == "" || s.UserID == "" {
		return ErrInvalidSession
	}
	return nil
}
