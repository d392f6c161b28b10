// Package flows contains the orchestration behind each Engine operation.
//
// Each Run function (RunLogin, RunAuthorize, RunLogout) takes a dependency
// struct of plain functions and returns a result carrying a failure kind.
// The Engine builds the dependencies once and maps failure kinds to its own
// error sentinels.
//
// # Architecture boundaries
//
// Flows sequence calls to the limiter, the token codec and the session
// registry. They do NOT own any of those resources and never apply timeouts
// or retries themselves; the Engine wraps store calls before handing them
// over.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import gatekeeper (no import cycles).
package flows
