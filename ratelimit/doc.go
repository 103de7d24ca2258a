// Package ratelimit bounds how often an identity may trigger an action
// within a fixed window.
//
// Two implementations share the [Limiter] contract. [Memory] keeps counters
// in process, reads time from an injected clock and evicts stale windows on
// a sweep ticker it owns until [Memory.Close]. [Redis] keeps the same
// counters in Redis so several instances share one budget.
//
// Keys are opaque. Callers pass a normalised identity whether or not an
// account exists for it, so limiter behaviour never reveals existence.
package ratelimit
