// Package limiters provides the per-IP failed-login limiter used to gate the
// login endpoint.
//
// # Limiters
//
//   - [MemoryLimiter]: process-local table sharded by xxhash, one mutex per shard.
//   - [RedisLimiter]: shared table in Redis, each transition is a Lua script.
//
// Both implement the same state machine: Clear, Accumulating(attempts) and
// Locked(until). Lock expiry is evaluated lazily on Check; there are no
// background timers.
//
// # What this package must NOT do
//
//   - Import gatekeeper or any sibling internal package.
//   - Reveal remaining attempts to callers outside the engine.
package limiters
