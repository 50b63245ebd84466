// Package internal contains helpers private to authcore: secure random
// generation and remember-token digests.
//
// # Sub-packages
//
//   - audit: async audit record dispatch (Dispatcher and Sink implementations)
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
