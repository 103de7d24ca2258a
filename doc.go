// Package credcore is the credential and account-security core: password
// verification with lockout, dual-tier bearer tokens, TOTP second factor,
// trusted devices, and single-use email verification and reset codes.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// credcore is the public surface. It exposes [Engine], [Builder], [Config],
// the [AccountStore] and [Notifier] collaborator contracts, and value types.
// Token signing lives in jwt, hashing in password, request budgets in
// ratelimit. Durable stores live under store/ and delivery channels under
// notify/.
//
// # What this package must NOT do
//
//   - Reveal whether an email is registered through Login or the reset flow.
//   - Return store or notifier error details to callers; they are logged and
//     surfaced as ErrUnavailable.
//   - Let a caller's cancellation cut short the failure delay or roll back a
//     committed write.
//
// # Tokens
//
// Full tokens carry a role and live about a day. Pending tokens are issued
// when a second factor is still owed, live about fifteen minutes, and are
// accepted only by [Engine.VerifySecondFactor]. Tokens are stateless; a
// lock on the account is the only server-side revocation and is enforced by
// [Engine.Authenticate].
package credcore
