// Package prometheus renders gatekeeper metrics in the Prometheus text
// exposition format.
//
// Counter names are gatekeeper_*_total; the one histogram is
// gatekeeper_authorize_latency_seconds, present only when latency
// histograms are enabled on the Engine.
//
// # What this package must NOT do
//
//   - Register with a global Prometheus registry. Callers mount Handler.
//   - Mutate engine state.
package prometheus
