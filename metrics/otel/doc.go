// Package otel exposes credcore engine counters as OpenTelemetry
// instruments.
//
// [NewExporter] creates one Int64ObservableCounter per counter family
// (credcore.logins, credcore.codes, ...) with the Prometheus labels carried
// as attributes, plus credcore.audit.dropped. A single callback reads
// [credcore.Engine.MetricsSnapshot] on each collection cycle.
//
// Callers own the MeterProvider and pass in a Meter. The exporter never
// mutates engine state.
package otel
