package appsec

import "sync/atomic"

// MetricID identifies one counter in the in-process metrics set.
type MetricID int

const (
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected logins, including store outages.
	MetricLoginFailure
	// MetricAccountLockout counts lockout transitions.
	MetricAccountLockout
	// MetricRefreshSuccess counts successful refresh-token exchanges.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh attempts.
	MetricRefreshFailure
	// MetricRecoveryRequest counts password recovery initiations.
	MetricRecoveryRequest
	// MetricAuthzAllowed counts authorization checks that passed.
	MetricAuthzAllowed
	// MetricAuthzDenied counts authorization checks that were denied.
	MetricAuthzDenied
	// MetricCacheRefresh counts successful security-cache refreshes.
	MetricCacheRefresh
	// MetricCacheRefreshFailure counts refreshes that left the cache stale.
	MetricCacheRefreshFailure

	metricCount
)

var metricNames = [metricCount]string{
	"appsec_login_success_total",
	"appsec_login_failure_total",
	"appsec_account_lockout_total",
	"appsec_refresh_success_total",
	"appsec_refresh_failure_total",
	"appsec_recovery_request_total",
	"appsec_authz_allowed_total",
	"appsec_authz_denied_total",
	"appsec_cache_refresh_total",
	"appsec_cache_refresh_failure_total",
}

// MetricName returns the export name for a counter, or "".
func MetricName(id MetricID) string {
	if id < 0 || id >= metricCount {
		return ""
	}
	return metricNames[id]
}

// MetricIDs lists every defined counter id, in export order.
func MetricIDs() []MetricID {
	ids := make([]MetricID, metricCount)
	for i := range ids {
		ids[i] = MetricID(i)
	}
	return ids
}

// Metrics is a fixed set of atomic counters. A nil *Metrics is a valid
// no-op receiver so instrumentation points never need nil checks.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

// NewMetrics creates an empty counter set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id < 0 || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot returns a point-in-time copy of every counter.
func (m *Metrics) Snapshot() map[MetricID]uint64 {
	out := make(map[MetricID]uint64, metricCount)
	if m == nil {
		return out
	}
	for i := MetricID(0); i < metricCount; i++ {
		out[i] = m.counters[i].Load()
	}
	return out
}
