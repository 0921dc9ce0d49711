package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID names one in-process counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	// MetricLoginLocked counts attempts refused because the account was
	// already locked.
	MetricLoginLocked
	// MetricLockoutEngaged counts failures that crossed the threshold.
	MetricLockoutEngaged
	MetricRegisterSuccess
	MetricRegisterDuplicate
	MetricRegisterInvalid
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshExpired
	MetricLogout
	MetricTokenRevoked
	MetricValidateSuccess
	MetricValidateFailure
	// MetricTokenRateLimited counts fingerprint comparison throttling.
	MetricTokenRateLimited
	MetricSocialSuccess
	MetricSocialFailure
	MetricSocialAccountCreated
	MetricSocialAccountLinked
	MetricProviderFailure
	MetricStateRejected
	MetricLoginLatency
	MetricRefreshLatency
	MetricValidateLatency
	MetricSocialLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:         "login_success",
	MetricLoginFailure:         "login_failure",
	MetricLoginLocked:          "login_locked",
	MetricLockoutEngaged:       "lockout_engaged",
	MetricRegisterSuccess:      "register_success",
	MetricRegisterDuplicate:    "register_duplicate",
	MetricRegisterInvalid:      "register_invalid",
	MetricRefreshSuccess:       "refresh_success",
	MetricRefreshFailure:       "refresh_failure",
	MetricRefreshExpired:       "refresh_expired",
	MetricLogout:               "logout",
	MetricTokenRevoked:         "token_revoked",
	MetricValidateSuccess:      "validate_success",
	MetricValidateFailure:      "validate_failure",
	MetricTokenRateLimited:     "token_rate_limited",
	MetricSocialSuccess:        "social_success",
	MetricSocialFailure:        "social_failure",
	MetricSocialAccountCreated: "social_account_created",
	MetricSocialAccountLinked:  "social_account_linked",
	MetricProviderFailure:      "provider_failure",
	MetricStateRejected:        "oauth_state_rejected",
	MetricLoginLatency:         "login_latency",
	MetricRefreshLatency:       "refresh_latency",
	MetricValidateLatency:      "validate_latency",
	MetricSocialLatency:        "social_latency",
}

// String returns the snake_case metric name used by exporters.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// MetricIDs returns every metric id in declaration order.
func MetricIDs() []MetricID {
	ids := make([]MetricID, 0, int(metricIDCount))
	for id := MetricID(0); id < metricIDCount; id++ {
		ids = append(ids, id)
	}
	return ids
}

// IsLatency reports whether id is a histogram rather than a counter.
func (id MetricID) IsLatency() bool {
	switch id {
	case MetricLoginLatency, MetricRefreshLatency, MetricValidateLatency, MetricSocialLatency:
		return true
	default:
		return false
	}
}

// HistogramBounds are the upper bounds, in milliseconds, of every latency
// bucket but the last, which is unbounded.
var HistogramBounds = [histBucketCount - 1]int64{5, 10, 25, 50, 100, 250, 500}

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

// Metrics is a fixed set of lock-free counters. A nil or disabled Metrics
// ignores every call.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and, when
// latency is enabled, every histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a Metrics configured by cfg.
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

// LatencyEnabled reports whether histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount || id.IsLatency() {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in a latency histogram. Counter ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || !id.IsLatency() {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) since(id MetricID, start time.Time) {
	if m.LatencyEnabled() {
		m.Observe(id, time.Since(start))
	}
}

// Value returns the current value of a counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 4),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id.IsLatency() {
			if !m.enableLatency {
				continue
			}
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range HistogramBounds {
		if ms <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
