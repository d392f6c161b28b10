// Package session holds the revocable session registry: the [Session] model,
// the [Registry] contract and its SQL and Redis adapters.
//
// # Backends
//
// [SQLStore] persists sessions in an active_sessions table on SQLite or
// Postgres, migrated from SQL files embedded in this package. [RedisStore]
// keeps each session in a hash and indexes sessions per user in a sorted set
// scored by last activity.
//
// # Lifetime
//
// Rows never expire on their own. Token expiry bounds access; a row is only
// removed by [Registry.Revoke].
//
// # What this package must NOT do
//
//   - Import gatekeeper or jwt (no upward imports).
//   - Decide whether a request is authorized.
package session
