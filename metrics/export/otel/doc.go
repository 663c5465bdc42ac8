// Package otel reports authstatus controller metrics through an
// OpenTelemetry [metric.Meter].
//
// Counters become Int64ObservableCounter instruments. The fetch latency
// histogram is reported as one Int64ObservableGauge per cumulative bucket plus
// a _count gauge. Callers own the MeterProvider.
package otel
