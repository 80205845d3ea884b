// Package audit delivers identity events to a caller-supplied sink off the
// request path.
//
// # Components
//
//   - [Event] is the record handed to sinks.
//   - [Sink] consumes events. [NoOpSink], [ChannelSink], [JSONWriterSink],
//     [SinkFunc] and [MultiSink] cover the common cases.
//   - [Dispatcher] buffers events and feeds them to one sink from a single
//     goroutine, either dropping or waiting when the buffer is full.
//
// # What this package must NOT do
//
//   - Decide which events exist; the provider does.
//   - Import jsonfas or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
