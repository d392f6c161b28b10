package limiters

import (
	"errors"
	"time"
)

const (
	DefaultMaxAttempts     = 5
	DefaultLockoutDuration = 15 * time.Minute
)

// Config holds the lockout policy shared by every limiter implementation.
type Config struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

var (
	// ErrLimiterUnavailable indicates the limiter backend is unreachable.
	ErrLimiterUnavailable = errors.New("limiter backend unavailable")
	// ErrInvalidConfig is returned by constructors for a non-positive policy.
	ErrInvalidConfig = errors.New("invalid limiter configuration")
)

// Status is the state of one address after an operation.
// LockedUntil is zero unless the address is locked.
type Status struct {
	Attempts    int
	LockedUntil time.Time
}

// Locked reports whether the status denies access at now.
func (s Status) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// LockedIP is one entry of a ListLocked result.
type LockedIP struct {
	IP          string
	LockedUntil time.Time
}

func (c Config) normalized() (Config, error) {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.LockoutDuration == 0 {
		c.LockoutDuration = DefaultLockoutDuration
	}
	if c.MaxAttempts < 1 || c.LockoutDuration < 0 {
		return Config{}, ErrInvalidConfig
	}
	return c, nil
}
