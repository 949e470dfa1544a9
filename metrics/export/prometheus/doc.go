// Package prometheus exposes hubauth engine metrics as a Prometheus
// collector.
//
// [NewCollector] wraps an engine (or any [MetricsSource]) in a
// prometheus.Collector that reads one MetricsSnapshot per scrape. Counters
// are named hubauth_*_total. Latency histograms are in seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry; callers choose the registry.
//   - Mutate engine state.
package prometheus
