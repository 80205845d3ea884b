// Package otel publishes jsonfas counters through an OpenTelemetry meter.
//
// [NewExporter] registers one Int64ObservableCounter per counter and, for the
// retrieve latency histogram, a bucket gauge keyed by an le attribute plus a
// count gauge. A single callback reads the provider snapshot on each
// collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate provider state.
package otel
