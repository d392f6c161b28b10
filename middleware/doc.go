// Package middleware adapts gatekeeper.Engine to net/http.
//
// # Handlers
//
//   - [ClientContext] copies the client address, User-Agent and
//     Accept-Language into the request context.
//   - [LoginGate] rejects locked addresses with 429 before the login handler
//     runs.
//   - [Guard] authorizes the session cookie, re-issues it with a fresh
//     expiry and stores the identity in the request context.
//
// Browser navigations that fail the guard are redirected to the login page;
// API calls get a JSON error body.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Every decision
// is delegated to the Engine.
//
// # What this package must NOT do
//
//   - Parse or sign tokens directly.
//   - Touch the session registry or limiter.
//   - Put internal error text in a response.
package middleware
