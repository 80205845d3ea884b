// Package jsonfas identifies web requests against a remote JSON account service
// that owns users, groups and login sessions.
//
// A visitor's session is an opaque visit key kept in a cookie. For each request a
// [Provider] builds an [Identity] bound to that key. The identity asks the account
// service who the key belongs to at most once, and only reports that user from
// [Identity.User] when the request also carries the anti-forgery token derived
// from the key (see package csrf). Certificate-authenticated requests, whose
// username comes from a TLS terminating proxy, are looked up with privileged
// service credentials instead.
//
// The service may replace a visit key on any call. The identity adopts the new
// key and rewrites the cookie through the [RequestContext] it was given.
//
// # Architecture boundaries
//
// jsonfas is the public surface. It exposes [Provider], [Builder], [Config],
// [Identity] and the collaborator interfaces [AccountService] and
// [RequestContext]. The HTTP client for the account service lives in package
// client; the net/http adapter in package middleware. Throttling and audit
// dispatch live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Touch framework globals; all request state flows through RequestContext.
//   - Return account-service failures from request-time operations. They are
//     logged and degrade to "no identity" or "no user". Only [Builder.Build]
//     returns errors, for configuration that cannot work.
//   - Hold credentials beyond the lifetime of one Identity.
//
// # Concurrency
//
// Provider and Metrics are safe for concurrent use. An Identity belongs to one
// request and must not be shared.
package jsonfas
