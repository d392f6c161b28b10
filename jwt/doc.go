// Package jwt signs and verifies the compact session tokens carried in the
// session cookie. Tokens hold the user, the registry session id and an
// expiry; refreshing re-signs the same claims with a later expiry, which is
// how the sliding session window is implemented.
package jwt
