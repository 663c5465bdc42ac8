package authstatus

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by authstatus APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable.
type MetricID uint16

const (
	// MetricSessionPresent counts notifications carrying a session.
	MetricSessionPresent MetricID = iota
	// MetricSessionAbsent counts notifications without a session.
	MetricSessionAbsent
	// MetricNavigation counts navigations to the login destination.
	MetricNavigation
	// MetricFetchStarted counts protected-data fetches started.
	MetricFetchStarted
	// MetricFetchSuccess counts fetches that stored a payload.
	MetricFetchSuccess
	// MetricFetchStatusFailure counts non-2xx responses.
	MetricFetchStatusFailure
	// MetricFetchCredentialFailure counts sessions that failed to produce a credential.
	MetricFetchCredentialFailure
	// MetricFetchTransportFailure counts requests that could not be sent.
	MetricFetchTransportFailure
	// MetricFetchDecodeFailure counts 2xx bodies that could not be parsed.
	MetricFetchDecodeFailure
	// MetricFetchSuperseded counts fetches whose result was discarded.
	MetricFetchSuperseded
	// MetricFetchLatency is the fetch latency histogram.
	MetricFetchLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a lock-free counter set with a single fetch latency histogram.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
// Histogram buckets are non-cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a metrics set. Disabled sets ignore all writes.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram id. Only MetricFetchLatency has buckets.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricFetchLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricFetchLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricFetchLatency].buckets[i])
		}
		s.Histograms[MetricFetchLatency] = buckets
	}

	return s
}

// buckets: 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s, +Inf
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 50:
		return 0
	case ms <= 100:
		return 1
	case ms <= 250:
		return 2
	case ms <= 500:
		return 3
	case ms <= 1000:
		return 4
	case ms <= 2500:
		return 5
	case ms <= 5000:
		return 6
	default:
		return 7
	}
}
