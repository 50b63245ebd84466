// Package prometheus exposes authcore engine metrics as a Prometheus
// collector.
//
// [Exporter] implements prometheus.Collector. Counter names are
// authcore_*_total and the single histogram is authcore_auth_latency_seconds.
// [Exporter.Handler] serves the collector from its own registry.
//
// # What this package must NOT do
//
//   - Register into the default Prometheus registry.
//   - Mutate engine state.
package prometheus
