// Package otel binds authcore engine counters to OpenTelemetry observable
// instruments.
//
// [NewExporter] registers one Int64ObservableCounter per counter, and for
// each histogram a cumulative bucket gauge keyed by an "le" attribute plus a
// count gauge. A single callback reads [authcore.Engine.MetricsSnapshot] on
// each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
