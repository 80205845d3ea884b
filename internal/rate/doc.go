// Package rate provides the Redis-backed fixed-window counters behind the
// interactive login throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys live under a
// caller-chosen prefix:
//   - <prefix>:lu:<username>  failed logins per username
//   - <prefix>:li:<ip>        failed logins per client IP
//
// # What this package must NOT do
//
//   - Decide what counts as a failed login (the Provider does).
//   - Be imported outside the jsonfas module.
package rate
