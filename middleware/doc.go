// Package middleware adapts jsonfas identity resolution to net/http.
//
// # Handlers
//
//   - [Identify] builds a jsonfas.Identity for every request and stores it in
//     the request context.
//   - [RequireUser] rejects requests whose identity resolves to no user.
//   - [RequireGroup] additionally requires membership in a group.
//
// [Request] is the jsonfas.RequestContext over an http.Request and its
// http.ResponseWriter. Visit key rotations reported by the account service are
// written back as Set-Cookie headers.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Provider calls. It does NOT
// implement identity policy itself; anti-forgery checks, certificate handling
// and memoization all happen in jsonfas.Identity.
//
// # What this package must NOT do
//
//   - Call the account service directly (Provider handles I/O).
//   - Make decisions beyond pass/reject from the resolved Identity.
package middleware
