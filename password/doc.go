// Package password implements secret hashing and verification with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsRehash] returns true when a stored digest was produced with
// weaker parameters, so callers can re-hash on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Lockout policy and
// credential lookup live in the root authcore package.
//
// # What this package must NOT do
//
//   - Store or retrieve secrets; callers supply plaintext and receive digests.
//   - Import any other authcore package.
//   - Log plaintext secrets or hash parameters at runtime.
package password
