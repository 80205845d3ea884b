// Package csrf derives and verifies the anti-forgery token bound to a visit key.
//
// # Token formats
//
//   - [Legacy] is the lowercase hex SHA-1 digest of the visit key. It carries no
//     server secret: anyone holding the visit key can compute it. Holding the
//     visit key is already enough to act as the session, so the token only proves
//     the request came from a page that knew the key.
//   - [Keyed] is an HMAC-SHA256 of the visit key under a server secret, for
//     deployments that do not need to interoperate with legacy-rendered pages.
//
// # Empty keys
//
// A request without a visit key has no session to protect. Derive returns the
// empty string for an empty key and Verify always reports false for it, even when
// the candidate token is also empty.
//
// # What this package must NOT do
//
//   - Read requests or cookies; callers pass the key and token in.
//   - Import any other jsonfas package.
package csrf
