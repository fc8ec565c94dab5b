// Package otel exports the security core's counters through the
// OpenTelemetry metric API.
//
// [NewExporter] registers an Int64ObservableCounter per counter and
// reads one [appsec.Metrics.Snapshot] per collection cycle. Callers
// supply the Meter and own the MeterProvider.
package otel
