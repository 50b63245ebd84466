// Package verification provides account verification tokens and the
// adapters that check them.
//
// Two methods ship with the package: [OTPAdapter] ("otp") for six-digit
// codes and [LinkAdapter] ("weburl") for random tokens delivered in links.
// Token digests use bcrypt and are independent of the password hasher.
//
// [LinkSigner] turns a link token into an HS256-signed URL so handlers can
// recover the account id and token from an incoming request without a
// database lookup.
//
// # What this package must NOT do
//
//   - Persist tokens or decide expiry; the caller owns account state.
//   - Import the root authcore package.
package verification
