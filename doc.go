// Package authcore is a pluggable user-authentication core: it authenticates
// credentials against a user store, issues "remember me" tokens, locks
// accounts after repeated failures, and verifies new accounts with one-time
// codes or signed links.
//
// An [Engine] is assembled once with [Builder] and is safe for concurrent
// use. Each client gets its own [AuthSession] from [Engine.NewSession].
//
// # Lockout
//
// [AccountLock] counts consecutive failures. The failure that reaches
// [LockConfig.MaxAttempts] engages a lock for [LockConfig.Timeout]. An
// account is locked only while its lock is enabled and unexpired. A store
// implementing [FailureCounter] gets atomic increments.
//
// The counter is incremented before it is compared, so MaxAttempts
// failures lock the account. Schemes that compare first lock one failure
// later; rows migrated from them with login_attempts already equal to
// MaxAttempts lock on their next failure.
//
// # Architecture boundaries
//
// authcore owns the authentication and lockout state machine and the
// verification pipeline. Persistence is a [Store] (see stores/), hashing a
// [Hasher] (see password/), and event delivery an [EventSink]. Transport,
// cookies, and HTTP adapters belong to the caller.
//
// # What this package must NOT do
//
//   - Keep process-global state; the driver [Registry] lives on the Engine.
//   - Retry store writes or interpret store errors.
//   - Log or audit plaintext secrets, remember tokens, or verification codes.
package authcore
