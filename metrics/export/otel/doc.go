// Package otel provides OpenTelemetry metric exporter bindings for kongmint counters
// and histograms.
//
// [NewOTelExporter] registers Int64ObservableCounter instruments for each kongmint
// metric and Int64ObservableGauge per histogram bucket. A single callback reads
// [kongmint.Service.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider — callers supply the Meter.
//   - Mutate service state.
package otel
