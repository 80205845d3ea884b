package jsonfas

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter or histogram kept by [Metrics].
type MetricID uint16

const (
	// MetricIdentityLoaded counts identities rebuilt from a visit key alone.
	MetricIdentityLoaded MetricID = iota
	// MetricIdentityValidated counts identities built from submitted credentials.
	MetricIdentityValidated
	// MetricIdentityRejected counts ValidateIdentity calls that produced no identity.
	MetricIdentityRejected
	// MetricServiceError counts failed account-service calls of any kind.
	MetricServiceError
	// MetricUserRetrieved counts remote user fetches that returned a person.
	MetricUserRetrieved
	// MetricUserNotFound counts remote user fetches that completed without a person.
	MetricUserNotFound
	// MetricUserRetrieveFailure counts remote user fetches that failed.
	MetricUserRetrieveFailure
	// MetricCSRFRejected counts resolutions refused for a missing or wrong token.
	MetricCSRFRejected
	// MetricSSLVerified counts accepted client-certificate verifications.
	MetricSSLVerified
	// MetricSSLRejected counts rejected client-certificate verifications.
	MetricSSLRejected
	// MetricVisitKeyRotated counts visit keys replaced by the account service.
	MetricVisitKeyRotated
	// MetricLogout counts logout calls sent to the account service.
	MetricLogout
	// MetricLogoutFailure counts logout calls that failed.
	MetricLogoutFailure
	// MetricPasswordCheckSuccess counts successful local password checks.
	MetricPasswordCheckSuccess
	// MetricPasswordCheckFailure counts failed local password checks.
	MetricPasswordCheckFailure
	// MetricLoginRateLimited counts interactive logins refused by the throttle.
	MetricLoginRateLimited
	// MetricRetrieveLatency is the latency histogram of remote user fetches.
	MetricRetrieveLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of every latency bucket but
// the last, which takes everything slower.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const (
	histBucketCount = len(latencyBounds) + 1
	cacheLineSize   = 64
)

type paddedCounter struct {
	value atomic.Uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters and one latency histogram.
//
// All methods are safe for concurrent use and are no-ops on a nil or disabled
// receiver.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	latency       [histBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
}

// NewMetrics returns metrics honoring cfg.
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
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].value.Add(1)
}

// Observe records d in the histogram id. Only [MetricRetrieveLatency] is a
// histogram; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricRetrieveLatency {
		return
	}
	m.latency[bucketIndex(d)].Add(1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].value.Load()
}

// Snapshot copies every counter, and the histogram when latency is enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if !m.Enabled() {
		return emptySnapshot()
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := range metricIDCount {
		s.Counters[id] = m.counters[id].value.Load()
	}
	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = m.latency[i].Load()
		}
		s.Histograms[MetricRetrieveLatency] = buckets
	}
	return s
}

// bucketIndex compares whole milliseconds, so 5.9ms still lands in the 5ms
// bucket.
func bucketIndex(d time.Duration) int {
	d = d.Truncate(time.Millisecond)
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
