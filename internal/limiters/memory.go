package limiters

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const memoryShardCount = 32

type record struct {
	attempts    int
	lockedUntil time.Time
}

type memoryShard struct {
	mu      sync.Mutex
	records map[string]*record
}

// MemoryLimiter keeps rate-limit records in process memory. Operations on the
// same address serialize on that address's shard; different shards never
// contend.
type MemoryLimiter struct {
	config Config
	shards [memoryShardCount]memoryShard
}

// NewMemoryLimiter creates an empty in-memory limiter.
func NewMemoryLimiter(cfg Config) (*MemoryLimiter, error) {
	cfg, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	l := &MemoryLimiter{config: cfg}
	for i := range l.shards {
		l.shards[i].records = make(map[string]*record)
	}
	return l, nil
}

func (l *MemoryLimiter) shard(ip string) *memoryShard {
	return &l.shards[xxhash.Sum64String(ip)%memoryShardCount]
}

// Check returns the current status of ip. An expired lock is removed and the
// address returns to Clear.
func (l *MemoryLimiter) Check(_ context.Context, ip string, now time.Time) (Status, error) {
	s := l.shard(ip)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[ip]
	if !ok {
		return Status{}, nil
	}
	if !rec.lockedUntil.IsZero() {
		if now.Before(rec.lockedUntil) {
			return Status{Attempts: rec.attempts, LockedUntil: rec.lockedUntil}, nil
		}
		delete(s.records, ip)
		return Status{}, nil
	}
	return Status{Attempts: rec.attempts}, nil
}

// RecordFailure counts one failed verification. The attempt that reaches
// MaxAttempts sets the lock.
func (l *MemoryLimiter) RecordFailure(_ context.Context, ip string, now time.Time) (Status, error) {
	s := l.shard(ip)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[ip]
	if !ok {
		rec = &record{}
		s.records[ip] = rec
	}
	rec.attempts++
	if rec.attempts >= l.config.MaxAttempts {
		rec.lockedUntil = now.Add(l.config.LockoutDuration)
	}
	return Status{Attempts: rec.attempts, LockedUntil: rec.lockedUntil}, nil
}

// Reset deletes the record for ip.
func (l *MemoryLimiter) Reset(_ context.Context, ip string) error {
	s := l.shard(ip)
	s.mu.Lock()
	delete(s.records, ip)
	s.mu.Unlock()
	return nil
}

// ListLocked returns addresses whose lock is still in the future, soonest
// expiry first. Expired locks are left in place for Check to clear.
func (l *MemoryLimiter) ListLocked(_ context.Context, now time.Time) ([]LockedIP, error) {
	var out []LockedIP
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for ip, rec := range s.records {
			if !rec.lockedUntil.IsZero() && now.Before(rec.lockedUntil) {
				out = append(out, LockedIP{IP: ip, LockedUntil: rec.lockedUntil})
			}
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LockedUntil.Equal(out[j].LockedUntil) {
			return out[i].IP < out[j].IP
		}
		return out[i].LockedUntil.Before(out[j].LockedUntil)
	})
	return out, nil
}
