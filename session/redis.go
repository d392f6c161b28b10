package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const createSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "u", ARGV[2], "d", ARGV[3], "la", ARGV[4])
redis.call("ZADD", KEYS[2], ARGV[4], ARGV[1])
return 1
`

const touchSessionScript = `
local la = redis.call("HGET", KEYS[1], "la")
if not la then
  return 0
end
if tonumber(ARGV[1]) > tonumber(la) then
  redis.call("HSET", KEYS[1], "la", ARGV[1])
end
return 1
`

// KEYS[2] is the index of the owner read before the call; a session that
// changed hands or vanished in between is left alone.
const revokeSessionScript = `
if redis.call("HGET", KEYS[1], "u") ~= ARGV[2] then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
return 1
`

var (
	createSessionLua = redis.NewScript(createSessionScript)
	touchSessionLua  = redis.NewScript(touchSessionScript)
	revokeSessionLua = redis.NewScript(revokeSessionScript)
)

// RedisStore is a [Registry] on Redis. Each session is a hash holding the
// owner, an encoded metadata blob and last activity in unix ms. A sorted set
// per user indexes session ids by creation time.
//
// Every key carries the prefix as a hash tag, so the whole registry lives
// in one Redis Cluster slot and each script declares all keys it touches.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store whose keys live under {prefix} (default
// "gk").
// The store does not own the client; Close is a no-op.
func NewRedisStore(redisClient redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gk"
	}
	return &RedisStore{redis: redisClient, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return "{" + s.prefix + "}:s:" + id
}

func (s *RedisStore) userKey(userID string) string {
	return "{" + s.prefix + "}:u:" + userID
}

// Create stores sess and indexes it under its user.
func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	if err := validateNew(sess); err != nil {
		return err
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	created, err := createSessionLua.Run(ctx, s.redis,
		[]string{s.key(sess.ID), s.userKey(sess.UserID)},
		sess.ID, sess.UserID, data, strconv.FormatInt(sess.LastActive.UnixMilli(), 10),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if created == 0 {
		return ErrDuplicate
	}
	return nil
}

// Get loads one session.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	vals, err := s.redis.HMGet(ctx, s.key(id), "d", "la").Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeHash(id, vals)
}

// Touch moves last activity forward.
func (s *RedisStore) Touch(ctx context.Context, id string, at time.Time) error {
	err := touchSessionLua.Run(ctx, s.redis,
		[]string{s.key(id)},
		strconv.FormatInt(at.UnixMilli(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ListByUser reads the user's index and orders it by last activity, newest
// first. Index entries whose hash has gone are skipped.
func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	ids, err := s.redis.ZRevRange(ctx, s.userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.SliceCmd, len(ids))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HMGet(ctx, s.key(id), "d", "la")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]Session, 0, len(ids))
	for i, cmd := range cmds {
		sess, err := decodeHash(ids[i], cmd.Val())
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastActive.Equal(out[j].LastActive) {
			return out[i].LastActive.After(out[j].LastActive)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Revoke deletes the session and its index entry.
func (s *RedisStore) Revoke(ctx context.Context, id string) error {
	user, err := s.redis.HGet(ctx, s.key(id), "u").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	err = revokeSessionLua.Run(ctx, s.redis,
		[]string{s.key(id), s.userKey(user)},
		id, user,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close is a no-op; the caller owns the Redis client.
func (s *RedisStore) Close() error {
	return nil
}

func decodeHash(id string, vals []interface{}) (*Session, error) {
	if len(vals) != 2 || vals[0] == nil {
		return nil, ErrNotFound
	}
	blob, ok := vals[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected blob type %T", ErrStoreUnavailable, vals[0])
	}
	sess, err := Decode([]byte(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt session %s: %v", ErrStoreUnavailable, id, err)
	}
	sess.ID = id

	if raw, ok := vals[1].(string); ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt last_active for %s: %v", ErrStoreUnavailable, id, err)
		}
		sess.LastActive = time.UnixMilli(ms)
	}
	return sess, nil
}
