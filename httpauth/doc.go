// Package httpauth adapts a credcore engine to net/http.
//
// # Middleware
//
//   - [RequestContext] resolves the client IP and user agent once and
//     stores them on the request context, where the engine reads them for
//     device fingerprints and last-login records.
//   - [RequireFull] verifies a full-scope bearer token through
//     Engine.Authenticate and injects the [credcore.Principal].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into engine calls. It does not
// parse tokens or touch storage; every decision is the engine's.
package httpauth
