// Package jwt mints and verifies the two bearer token shapes: full session
// tokens that carry an account role, and short-lived tokens that only allow
// the holder to finish a second-factor challenge.
//
// The shape lives in a typed [Scope] claim. Decoding a token always yields a
// concrete [Full] or [PendingSecondFactor] value, so callers switch on types
// instead of comparing strings. Verification errors are split into
// [ErrExpired], [ErrNotYetValid], [ErrMalformed] and [ErrWrongScope].
//
// Tokens are stateless. There is no revocation list here.
package jwt
