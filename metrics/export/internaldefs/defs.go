package internaldefs

import (
	"github.com/MrEthical07/gatekeeper"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   gatekeeper.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   gatekeeper.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: gatekeeper.MetricLoginSuccess, Name: "gatekeeper_login_success_total", Help: "Logins that verified a code and started a session."},
	{ID: gatekeeper.MetricLoginFailure, Name: "gatekeeper_login_failure_total", Help: "Logins rejected for a wrong or malformed code."},
	{ID: gatekeeper.MetricLoginRateLimited, Name: "gatekeeper_login_rate_limited_total", Help: "Logins refused because the address was locked."},
	{ID: gatekeeper.MetricLockout, Name: "gatekeeper_lockout_total", Help: "Addresses locked after too many failures."},
	{ID: gatekeeper.MetricAuthorizeSuccess, Name: "gatekeeper_authorize_success_total", Help: "Guarded requests authorized."},
	{ID: gatekeeper.MetricAuthorizeUnauthenticated, Name: "gatekeeper_authorize_unauthenticated_total", Help: "Guarded requests with a missing or invalid token."},
	{ID: gatekeeper.MetricAuthorizeRevoked, Name: "gatekeeper_authorize_revoked_total", Help: "Guarded requests whose session was revoked."},
	{ID: gatekeeper.MetricStoreError, Name: "gatekeeper_store_error_total", Help: "Registry or limiter calls that failed after retry."},
	{ID: gatekeeper.MetricStoreRetry, Name: "gatekeeper_store_retry_total", Help: "Registry or limiter calls retried."},
	{ID: gatekeeper.MetricSessionCreated, Name: "gatekeeper_session_created_total", Help: "Sessions created."},
	{ID: gatekeeper.MetricSessionRevoked, Name: "gatekeeper_session_revoked_total", Help: "Sessions revoked by logout or an admin."},
	{ID: gatekeeper.MetricLogout, Name: "gatekeeper_logout_total", Help: "Logout requests."},
	{ID: gatekeeper.MetricUnlock, Name: "gatekeeper_unlock_total", Help: "Addresses unlocked by an admin."},
	{ID: gatekeeper.MetricTouchFailure, Name: "gatekeeper_touch_failure_total", Help: "Background last-activity updates that failed."},
	{ID: gatekeeper.MetricNotifyDelivered, Name: "gatekeeper_notify_delivered_total", Help: "Notifications handed to the sink."},
	{ID: gatekeeper.MetricNotifyFailure, Name: "gatekeeper_notify_failure_total", Help: "Notifications whose sink timed out or panicked."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: gatekeeper.MetricAuthorizeLatency, Name: "gatekeeper_authorize_latency_seconds", Help: "Authorize latency."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's eight
// latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array.
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
