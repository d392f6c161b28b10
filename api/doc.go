// Package api is the HTTP surface of the gatekeeper server: login and
// logout, the guarded keep-alive and admin endpoints, health, metrics and
// the optional Google login.
//
// Routing uses chi. Every response body is JSON except redirects and the
// metrics exposition. Engine errors are mapped to status codes in one place
// (writeError); internal error text never reaches a client.
package api
