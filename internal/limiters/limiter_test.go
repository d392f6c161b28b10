package limiters

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type ipLimiter interface {
	Check(ctx context.Context, ip string, now time.Time) (Status, error)
	RecordFailure(ctx context.Context, ip string, now time.Time) (Status, error)
	Reset(ctx context.Context, ip string) error
	ListLocked(ctx context.Context, now time.Time) ([]LockedIP, error)
}

var testBase = time.UnixMilli(1_700_000_000_000)

func testConfig() Config {
	return Config{MaxAttempts: 5, LockoutDuration: 15 * time.Minute}
}

func newMemoryTestLimiter(t *testing.T) (ipLimiter, func()) {
	t.Helper()
	l, err := NewMemoryLimiter(testConfig())
	if err != nil {
		t.Fatalf("new memory limiter: %v", err)
	}
	return l, func() {}
}

func newRedisTestLimiter(t *testing.T) (ipLimiter, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l, err := NewRedisLimiter(rdb, "gk-test", testConfig())
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	return l, func() {
		rdb.Close()
		mr.Close()
	}
}

var implementations = []struct {
	name string
	new  func(t *testing.T) (ipLimiter, func())
}{
	{"memory", newMemoryTestLimiter},
	{"redis", newRedisTestLimiter},
}

func TestLockoutAtExactlyMaxAttempts(t *testing.T) {
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			l, done := impl.new(t)
			defer done()
			ctx := context.Background()

			var last Status
			for i := 1; i <= 5; i++ {
				failAt := testBase.Add(time.Duration(i) * time.Second)
				st, err := l.RecordFailure(ctx, "1.2.3.4", failAt)
				if err != nil {
					t.Fatalf("record failure %d: %v", i, err)
				}
				if st.Attempts != i {
					t.Fatalf("failure %d: expected attempts %d, got %d", i, i, st.Attempts)
				}
				if i < 5 && !st.LockedUntil.IsZero() {
					t.Fatalf("failure %d: locked before threshold", i)
				}
				last = st
			}

			want := testBase.Add(5 * time.Second).Add(15 * time.Minute)
			if !last.LockedUntil.Equal(want) {
				t.Fatalf("expected lockedUntil %v, got %v", want, last.LockedUntil)
			}

			st, err := l.Check(ctx, "1.2.3.4", testBase.Add(6*time.Second))
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if !st.Locked(testBase.Add(6 * time.Second)) {
				t.Fatal("expected address to be locked after fifth failure")
			}
			if !st.LockedUntil.Equal(want) {
				t.Fatalf("check returned lockedUntil %v, want %v", st.LockedUntil, want)
			}
		})
	}
}

func TestBelowThresholdStaysAllowed(t *testing.T) {
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			for k := 0; k < 5; k++ {
				l, done := impl.new(t)
				ctx := context.Background()
				for i := 0; i < k; i++ {
					if _, err := l.RecordFailure(ctx, "5.6.7.8", testBase); err != nil {
						t.Fatalf("record failure: %v", err)
					}
				}
				st, err := l.Check(ctx, "5.6.7.8", testBase)
				if err != nil {
					t.Fatalf("check: %v", err)
				}
				if st.Locked(testBase) {
					t.Fatalf("k=%d: expected allowed", k)
				}
				done()
			}
		})
	}
}

func TestResetClearsLock(t *testing.T) {
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			l, done := impl.new(t)
			defer done()
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				_, _ = l.RecordFailure(ctx, "9.9.9.9", testBase)
			}
			if err := l.Reset(ctx, "9.9.9.9"); err != nil {
				t.Fatalf("reset: %v", err)
			}
			st, err := l.Check(ctx, "9.9.9.9", testBase)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if st.Locked(testBase) || st.Attempts != 0 {
				t.Fatalf("expected clear status after reset, got %+v", st)
			}

			// Counting starts from zero again.
			st, err = l.RecordFailure(ctx, "9.9.9.9", testBase)
			if err != nil {
				t.Fatalf("record failure: %v", err)
			}
			if st.Attempts != 1 {
				t.Fatalf("expected attempts 1 after reset, got %d", st.Attempts)
			}

			locked, err := l.ListLocked(ctx, testBase)
			if err != nil {
				t.Fatalf("list locked: %v", err)
			}
			if len(locked) != 0 {
				t.Fatalf("expected no locked addresses, got %v", locked)
			}
		})
	}
}

func TestLockExpiresLazily(t *testing.T) {
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			l, done := impl.new(t)
			defer done()
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				_, _ = l.RecordFailure(ctx, "4.4.4.4", testBase)
			}
			after := testBase.Add(15 * time.Minute)

			locked, err := l.ListLocked(ctx, after)
			if err != nil {
				t.Fatalf("list locked: %v", err)
			}
			if len(locked) != 0 {
				t.Fatalf("expired lock must not be listed, got %v", locked)
			}

			st, err := l.Check(ctx, "4.4.4.4", after)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if st.Locked(after) || st.Attempts != 0 {
				t.Fatalf("expected clear status once lock passed, got %+v", st)
			}

			st, err = l.RecordFailure(ctx, "4.4.4.4", after)
			if err != nil {
				t.Fatalf("record failure: %v", err)
			}
			if st.Attempts != 1 || !st.LockedUntil.IsZero() {
				t.Fatalf("expected counting from zero, got %+v", st)
			}
		})
	}
}

func TestListLockedReportsOnlyFutureLocks(t *testing.T) {
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			l, done := impl.new(t)
			defer done()
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				_, _ = l.RecordFailure(ctx, "10.0.0.1", testBase)
				_, _ = l.RecordFailure(ctx, "10.0.0.2", testBase.Add(10*time.Minute))
			}
			_, _ = l.RecordFailure(ctx, "10.0.0.3", testBase)

			now := testBase.Add(20 * time.Minute)
			locked, err := l.ListLocked(ctx, now)
			if err != nil {
				t.Fatalf("list locked: %v", err)
			}
			if len(locked) != 1 || locked[0].IP != "10.0.0.2" {
				t.Fatalf("expected only 10.0.0.2 locked, got %v", locked)
			}
			want := testBase.Add(25 * time.Minute)
			if !locked[0].LockedUntil.Equal(want) {
				t.Fatalf("expected lockedUntil %v, got %v", want, locked[0].LockedUntil)
			}
		})
	}
}

func TestConcurrentFailuresAreAllCounted(t *testing.T) {
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			l, done := impl.new(t)
			defer done()
			ctx := context.Background()

			const n = 5
			var wg sync.WaitGroup
			results := make(chan int, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					st, err := l.RecordFailure(ctx, "7.7.7.7", testBase)
					if err != nil {
						t.Errorf("record failure: %v", err)
						return
					}
					results <- st.Attempts
				}()
			}
			wg.Wait()
			close(results)

			seen := make(map[int]bool, n)
			for attempts := range results {
				if seen[attempts] {
					t.Fatalf("attempt count %d observed twice: lost update", attempts)
				}
				seen[attempts] = true
			}
			for i := 1; i <= n; i++ {
				if !seen[i] {
					t.Fatalf("attempt count %d never observed", i)
				}
			}

			st, err := l.Check(ctx, "7.7.7.7", testBase)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if st.Attempts != n {
				t.Fatalf("expected %d attempts, got %d", n, st.Attempts)
			}
		})
	}
}

func TestAddressesAreIndependent(t *testing.T) {
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			l, done := impl.new(t)
			defer done()
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				_, _ = l.RecordFailure(ctx, "1.1.1.1", testBase)
			}
			st, err := l.Check(ctx, "2.2.2.2", testBase)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if st.Locked(testBase) || st.Attempts != 0 {
				t.Fatalf("unrelated address affected: %+v", st)
			}
		})
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	if _, err := NewMemoryLimiter(Config{MaxAttempts: -1}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	l, err := NewMemoryLimiter(Config{})
	if err != nil {
		t.Fatalf("zero config should take defaults: %v", err)
	}
	if l.config.MaxAttempts != DefaultMaxAttempts || l.config.LockoutDuration != DefaultLockoutDuration {
		t.Fatalf("unexpected defaults: %+v", l.config)
	}
}

func TestMemoryCheckPurgesExpiredRecord(t *testing.T) {
	l, err := NewMemoryLimiter(testConfig())
	if err != nil {
		t.Fatalf("new memory limiter: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = l.RecordFailure(ctx, "3.3.3.3", testBase)
	}
	if _, err := l.Check(ctx, "3.3.3.3", testBase.Add(time.Hour)); err != nil {
		t.Fatalf("check: %v", err)
	}

	s := l.shard("3.3.3.3")
	s.mu.Lock()
	_, ok := s.records["3.3.3.3"]
	s.mu.Unlock()
	if ok {
		t.Fatal("expected expired record to be deleted on check")
	}
}

func TestRedisLimiterUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	l, err := NewRedisLimiter(rdb, "", testConfig())
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	mr.Close()

	if _, err := l.Check(context.Background(), "1.2.3.4", testBase); !errors.Is(err, ErrLimiterUnavailable) {
		t.Fatalf("expected ErrLimiterUnavailable, got %v", err)
	}
	if err := l.Reset(context.Background(), "1.2.3.4"); !errors.Is(err, ErrLimiterUnavailable) {
		t.Fatalf("expected ErrLimiterUnavailable on reset, got %v", err)
	}
}

func TestRedisLimiterKeysShareOneSlot(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	l, err := NewRedisLimiter(rdb, "ops", testConfig())
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := l.RecordFailure(ctx, "203.0.113.5", testBase); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	keys := mr.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected address record and lock index, got %v", keys)
	}
	for _, k := range keys {
		if k != "{ops}:rli:203.0.113.5" && k != "{ops}:rll" {
			t.Fatalf("unexpected key %q", k)
		}
	}
}
