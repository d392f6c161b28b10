// Package otel publishes gatekeeper metrics through an OpenTelemetry Meter.
//
// Each counter becomes an Int64ObservableCounter. The latency histogram is
// exposed as an Int64ObservableGauge of cumulative bucket counts labelled
// by "le", plus a _count gauge. One callback reads
// [gatekeeper.Engine.MetricsSnapshot] per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
