// Package internal holds helpers private to jsonfas.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - rate: Redis-backed login throttle
//
// # What this package must NOT do
//
//   - Export types that appear in the public jsonfas API except through aliases.
//   - Be imported from outside the jsonfas module.
package internal
