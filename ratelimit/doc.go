// Package ratelimit provides attempt limiters that satisfy
// [authcore.AttemptLimiter]: [Limiter], a Redis fixed window shared across
// instances, and [Local], an in-process token bucket.
//
// # Window semantics
//
// For [Limiter], the first hit on a key starts its window: INCR and PEXPIRE
// run in one Lua script, so a crash between them cannot leave a counter
// without a TTL.
// Keys are "<prefix>:<key>"; the engine passes "verify:<account id>" and
// "issue:<account id>".
//
// # What this package must NOT do
//
//   - Decide which operations are throttled; the engine picks the keys.
//   - Fail open. A Redis error is returned, never treated as allowed.
package ratelimit
