// Package internal holds the small primitives the engine builds on: random
// codes and tokens, one-way code hashing with constant-time comparison,
// device fingerprints, and sealing of TOTP secrets at rest.
//
// Nothing here keeps state between calls except the key inside a Sealer.
package internal
