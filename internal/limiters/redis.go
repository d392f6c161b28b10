package limiters

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const checkScript = `
local lu = redis.call("HGET", KEYS[1], "locked_until")
if lu then
  lu = tonumber(lu)
  if tonumber(ARGV[1]) < lu then
    local attempts = tonumber(redis.call("HGET", KEYS[1], "attempts") or "0")
    return {attempts, lu}
  end
  redis.call("DEL", KEYS[1])
  redis.call("ZREM", KEYS[2], ARGV[2])
  return {0, 0}
end
local attempts = tonumber(redis.call("HGET", KEYS[1], "attempts") or "0")
return {attempts, 0}
`

const recordFailureScript = `
local attempts = redis.call("HINCRBY", KEYS[1], "attempts", 1)
if attempts >= tonumber(ARGV[2]) then
  redis.call("HSET", KEYS[1], "locked_until", ARGV[3])
  redis.call("ZADD", KEYS[2], ARGV[3], ARGV[1])
  return {attempts, tonumber(ARGV[3])}
end
return {attempts, 0}
`

var (
	checkLua         = redis.NewScript(checkScript)
	recordFailureLua = redis.NewScript(recordFailureScript)
)

// RedisLimiter shares rate-limit records between processes. Each address is
// a hash holding attempts and locked_until (unix ms); locked addresses are
// also indexed in a sorted set scored by locked_until.
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
	prefix string
}

// NewRedisLimiter creates a limiter whose keys live under {prefix}
// (default "gk"). The hash tag keeps an address record and the lock index
// in one Redis Cluster slot.
func NewRedisLimiter(redisClient redis.UniversalClient, prefix string, cfg Config) (*RedisLimiter, error) {
	cfg, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "gk"
	}
	return &RedisLimiter{redis: redisClient, config: cfg, prefix: prefix}, nil
}

func (l *RedisLimiter) key(ip string) string {
	return "{" + l.prefix + "}:rli:" + ip
}

func (l *RedisLimiter) lockedKey() string {
	return "{" + l.prefix + "}:rll"
}

// Check returns the current status of ip, deleting an expired lock.
func (l *RedisLimiter) Check(ctx context.Context, ip string, now time.Time) (Status, error) {
	res, err := checkLua.Run(ctx, l.redis,
		[]string{l.key(ip), l.lockedKey()},
		now.UnixMilli(), ip,
	).Slice()
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return statusFromReply(res)
}

// RecordFailure increments attempts and sets the lock once MaxAttempts is
// reached.
func (l *RedisLimiter) RecordFailure(ctx context.Context, ip string, now time.Time) (Status, error) {
	lockedUntil := now.Add(l.config.LockoutDuration).UnixMilli()
	res, err := recordFailureLua.Run(ctx, l.redis,
		[]string{l.key(ip), l.lockedKey()},
		ip, l.config.MaxAttempts, strconv.FormatInt(lockedUntil, 10),
	).Slice()
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return statusFromReply(res)
}

// Reset deletes the record and its lock index entry.
func (l *RedisLimiter) Reset(ctx context.Context, ip string) error {
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, l.key(ip))
		pipe.ZRem(ctx, l.lockedKey(), ip)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return nil
}

// ListLocked returns addresses whose lock ends after now, soonest first.
func (l *RedisLimiter) ListLocked(ctx context.Context, now time.Time) ([]LockedIP, error) {
	entries, err := l.redis.ZRangeByScoreWithScores(ctx, l.lockedKey(), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}

	out := make([]LockedIP, 0, len(entries))
	for _, z := range entries {
		ip, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, LockedIP{IP: ip, LockedUntil: time.UnixMilli(int64(z.Score))})
	}
	return out, nil
}

func statusFromReply(res []interface{}) (Status, error) {
	if len(res) != 2 {
		return Status{}, fmt.Errorf("%w: unexpected script reply %v", ErrLimiterUnavailable, res)
	}
	attempts, ok1 := res[0].(int64)
	lockedUntil, ok2 := res[1].(int64)
	if !ok1 || !ok2 {
		return Status{}, fmt.Errorf("%w: unexpected script reply %v", ErrLimiterUnavailable, res)
	}

	st := Status{Attempts: int(attempts)}
	if lockedUntil > 0 {
		st.LockedUntil = time.UnixMilli(lockedUntil)
	}
	return st, nil
}
