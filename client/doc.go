// Package client talks to the account service over its JSON-over-HTTP protocol.
//
// Every call is a form-encoded POST to <base URL>/<method> with tg_format=json.
// The visit key travels in a cookie; when the service answers with a new value
// for that cookie the [Session] adopts it, and [Session.SessionID] reports it.
//
// A [Client] is shared by the whole process and is safe for concurrent use. A
// [Session] belongs to one inbound request.
//
// # What this package must NOT do
//
//   - Decide identity policy. Anti-forgery checks, certificate handling and
//     memoization belong to package jsonfas.
//   - Log passwords or visit keys.
package client
