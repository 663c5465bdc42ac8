package internaldefs

import (
	"math"

	"github.com/MrEthical07/authstatus"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authstatus.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   authstatus.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "authstatus_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// CounterDefs lists every controller counter in export order.
var CounterDefs = []CounterDef{
	{ID: authstatus.MetricSessionPresent, Name: "authstatus_session_present_total", Help: "Session notifications carrying a session."},
	{ID: authstatus.MetricSessionAbsent, Name: "authstatus_session_absent_total", Help: "Session notifications without a session."},
	{ID: authstatus.MetricNavigation, Name: "authstatus_navigation_total", Help: "Navigations to the login destination."},
	{ID: authstatus.MetricFetchStarted, Name: "authstatus_fetch_started_total", Help: "Protected-data fetches started."},
	{ID: authstatus.MetricFetchSuccess, Name: "authstatus_fetch_success_total", Help: "Fetches that stored a payload."},
	{ID: authstatus.MetricFetchStatusFailure, Name: "authstatus_fetch_status_failure_total", Help: "Fetches answered with a non-2xx status."},
	{ID: authstatus.MetricFetchCredentialFailure, Name: "authstatus_fetch_credential_failure_total", Help: "Sessions that failed to produce a credential."},
	{ID: authstatus.MetricFetchTransportFailure, Name: "authstatus_fetch_transport_failure_total", Help: "Fetches that could not be sent."},
	{ID: authstatus.MetricFetchDecodeFailure, Name: "authstatus_fetch_decode_failure_total", Help: "2xx responses whose body was not JSON."},
	{ID: authstatus.MetricFetchSuperseded, Name: "authstatus_fetch_superseded_total", Help: "Fetch results discarded after a newer session change."},
}

// HistogramDefs lists every controller histogram.
var HistogramDefs = []HistogramDef{
	{ID: authstatus.MetricFetchLatency, Name: "authstatus_fetch_latency_seconds", Help: "Protected-data fetch latency."},
}

// HistogramBounds are the upper bounds in seconds matching the controller's
// latency buckets. The last bound is +Inf.
var HistogramBounds = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, math.Inf(1)}

// NormalizeBuckets copies raw into a fixed-size bucket array, zero filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
