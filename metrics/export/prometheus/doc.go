// Package prometheus provides Prometheus collectors for kongmint metrics.
//
// [NewPrometheusExporter] accepts a [kongmint.Service] and exposes an [http.Handler]
// that renders all kongmint counters and histograms in Prometheus text exposition
// format. Counter names are prefixed kongmint_*_total; the single histogram is
// kongmint_kong_admin_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate service state.
package prometheus
