package gatekeeper

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned by Login for a wrong or malformed code.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited is matched by every *LockoutError.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnauthenticated covers a missing, malformed, forged or expired token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSessionRevoked means the token is valid but its session is gone.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrStoreUnavailable means the registry or limiter could not answer.
	// Requests that hit it are denied.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrConfiguration is returned by Config.Validate and Builder.Build.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidInput rejects an empty session id or address in an admin
	// call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEngineClosed is returned after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// LockoutError reports that an address is locked until LockedUntil.
type LockoutError struct {
	IP          string
	LockedUntil time.Time
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("address locked until %s", e.LockedUntil.UTC().Format(time.RFC3339))
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *LockoutError) Is(target error) bool {
	return target == ErrRateLimited
}

func configError(msg string) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, msg)
}
