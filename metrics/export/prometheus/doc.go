// Package prometheus renders jsonfas metrics in Prometheus text exposition
// format.
//
// [NewExporter] wraps a provider and exposes an [http.Handler] for a scrape
// endpoint. Counters are named jsonfas_*_total and the one histogram is
// jsonfas_retrieve_latency_seconds.
//
// # What this package must NOT do
//
//   - Register anything in a global Prometheus registry. Callers mount Handler.
//   - Mutate provider state.
package prometheus
