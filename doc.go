// Package gatekeeper guards a single administrative web surface with a TOTP
// login, sliding session tokens, a revocable server-side session registry and
// per-address lockout.
//
// Engine methods are safe to call from multiple goroutines once
// [Builder.Build] has returned.
//
// # Architecture boundaries
//
// gatekeeper is the library surface. It exposes [Engine], [Builder],
// [Config], the error sentinels, notification sinks and metrics. Flow
// orchestration and limiter implementations live under internal/. Session
// persistence lives in the session package and token encoding in jwt.
//
// # Fail-closed
//
// Any registry or limiter failure denies the request. A store error is
// retried once per call, each attempt bounded by Config.Store.Timeout.
//
// # What this package must NOT do
//
//   - Write HTTP responses or cookies (see middleware and api).
//   - Keep package-level mutable state; every table is owned by an Engine.
package gatekeeper
