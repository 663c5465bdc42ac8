package prometheus

import (
	"net/http"

	"github.com/MrEthical07/authstatus"
	"github.com/MrEthical07/authstatus/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() authstatus.MetricsSnapshot
	AuditDropped() uint64
}

// Collector exposes controller metrics as a [prometheus.Collector]. Values
// are read from the source on every scrape.
type Collector struct {
	source       metricsSource
	counters     map[authstatus.MetricID]*prometheus.Desc
	histograms   map[authstatus.MetricID]*prometheus.Desc
	auditDropped *prometheus.Desc
}

// NewCollector creates a collector reading from a [authstatus.Controller].
func NewCollector(controller *authstatus.Controller) *Collector {
	return NewCollectorFromSource(controller)
}

// NewCollectorFromSource creates a collector from any snapshot source.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:     source,
		counters:   make(map[authstatus.MetricID]*prometheus.Desc, len(internaldefs.CounterDefs)),
		histograms: make(map[authstatus.MetricID]*prometheus.Desc, len(internaldefs.HistogramDefs)),
		auditDropped: prometheus.NewDesc(
			internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil,
		),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	return c
}

// Describe implements [prometheus.Collector].
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, def := range internaldefs.CounterDefs {
		ch <- c.counters[def.ID]
	}
	for _, def := range internaldefs.HistogramDefs {
		ch <- c.histograms[def.ID]
	}
	ch <- c.auditDropped
}

// Collect implements [prometheus.Collector]. Nothing is emitted while the
// source has metrics disabled and no audit drops.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()
	dropped := c.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return
	}

	for _, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(c.counters[def.ID], prometheus.CounterValue, float64(snapshot.Counters[def.ID]))
	}

	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		// +Inf is implied by the sample count.
		buckets := make(map[float64]uint64, len(internaldefs.HistogramBounds)-1)
		for i := 0; i < len(internaldefs.HistogramBounds)-1; i++ {
			buckets[internaldefs.HistogramBounds[i]] = cumulative[i]
		}
		// Snapshots carry no sum.
		ch <- prometheus.MustNewConstHistogram(c.histograms[def.ID], cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(dropped))
}

// Handler returns an http.Handler serving only this collector's series from a
// private registry.
func (c *Collector) Handler() http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(c)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
