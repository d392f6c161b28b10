package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/gatekeeper/internal/limiters"
	"github.com/MrEthical07/gatekeeper/session"
	"go.uber.org/zap"
)

// withStore runs fn with the per-attempt store timeout. A fault is retried
// once when retry is set; the final fault is logged and returned wrapped in
// ErrStoreUnavailable. Answers such as not-found pass through unwrapped.
func (e *Engine) withStore(ctx context.Context, op string, retry bool, fn func(ctx context.Context, attempt int) error) error {
	attempts := 1
	if retry {
		attempts = 2
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				break
			}
			e.metricInc(MetricStoreRetry)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.config.Store.Timeout)
		err = fn(attemptCtx, attempt)
		cancel()

		if err == nil || !isStoreFault(err) {
			return err
		}
	}

	e.metricInc(MetricStoreError)
	e.logger.Error("store call failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func isStoreFault(err error) bool {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrDuplicate),
		errors.Is(err, session.ErrInvalidSession),
		errors.Is(err, limiters.ErrInvalidConfig):
		return false
	}
	return true
}

func isDuplicate(err error) bool {
	return errors.Is(err, session.ErrDuplicate)
}

// touchAsync bumps last activity without holding up the request. Close waits
// for touches already started.
func (e *Engine) touchAsync(id string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.touches.Add(1)
	e.mu.Unlock()

	at := e.now()
	go func() {
		defer e.touches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.config.Store.TouchTimeout)
		defer cancel()

		if err := e.registry.Touch(ctx, id, at); err != nil {
			e.metricInc(MetricTouchFailure)
			e.logger.Warn("session touch failed",
				zap.String("session", sessionHint(id)),
				zap.Error(err),
			)
		}
	}()
}

func (e *Engine) getSession(ctx context.Context, id string) (*session.Session, error) {
	var sess *session.Session
	err := e.withStore(ctx, "session.get", true, func(ctx context.Context, _ int) error {
		var err error
		sess, err = e.registry.Get(ctx, id)
		return err
	})
	return sess, err
}

func (e *Engine) revokeSession(ctx context.Context, id string) error {
	return e.withStore(ctx, "session.revoke", true, func(ctx context.Context, _ int) error {
		return e.registry.Revoke(ctx, id)
	})
}

// sessionHint shortens a session id for logs and notifications.
func sessionHint(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:10] + "..."
}

func (e *Engine) limiterCheck(ctx context.Context, ip string, now time.Time) (LimitStatus, error) {
	var status LimitStatus
	err := e.withStore(ctx, "limiter.check", true, func(ctx context.Context, _ int) error {
		var err error
		status, err = e.limiter.Check(ctx, ip, now)
		return err
	})
	return status, err
}

// limiterRecordFailure is not retried: a timed-out increment may have been
// applied.
func (e *Engine) limiterRecordFailure(ctx context.Context, ip string, now time.Time) (LimitStatus, error) {
	var status LimitStatus
	err := e.withStore(ctx, "limiter.record_failure", false, func(ctx context.Context, _ int) error {
		var err error
		status, err = e.limiter.RecordFailure(ctx, ip, now)
		return err
	})
	return status, err
}

func (e *Engine) limiterReset(ctx context.Context, ip string) error {
	return e.withStore(ctx, "limiter.reset", true, func(ctx context.Context, _ int) error {
		return e.limiter.Reset(ctx, ip)
	})
}
