// Package prometheus exposes authstatus controller metrics through
// github.com/prometheus/client_golang.
//
// [NewCollector] returns a [prometheus.Collector] that callers may register
// with any registry. Counter names are prefixed authstatus_*_total and the
// fetch latency histogram is authstatus_fetch_latency_seconds.
// [Collector.Handler] serves the collector alone without touching the
// default registry.
package prometheus
