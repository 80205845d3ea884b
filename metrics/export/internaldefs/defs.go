package internaldefs

import (
	"github.com/MrEthical07/jsonfas"
)

// CounterDef names one counter for export.
type CounterDef struct {
	ID   jsonfas.MetricID
	Name string
	Help string
}

// HistogramDef names one histogram for export.
type HistogramDef struct {
	ID   jsonfas.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter, in exposition order.
var CounterDefs = []CounterDef{
	{ID: jsonfas.MetricIdentityLoaded, Name: "jsonfas_identity_loaded_total", Help: "Identities rebuilt from a visit key."},
	{ID: jsonfas.MetricIdentityValidated, Name: "jsonfas_identity_validated_total", Help: "Identities built from submitted credentials."},
	{ID: jsonfas.MetricIdentityRejected, Name: "jsonfas_identity_rejected_total", Help: "Credential validations that produced no identity."},
	{ID: jsonfas.MetricServiceError, Name: "jsonfas_service_error_total", Help: "Failed account service calls."},
	{ID: jsonfas.MetricUserRetrieved, Name: "jsonfas_user_retrieved_total", Help: "User fetches that returned a person."},
	{ID: jsonfas.MetricUserNotFound, Name: "jsonfas_user_not_found_total", Help: "User fetches that completed without a person."},
	{ID: jsonfas.MetricUserRetrieveFailure, Name: "jsonfas_user_retrieve_failure_total", Help: "User fetches that failed."},
	{ID: jsonfas.MetricCSRFRejected, Name: "jsonfas_csrf_rejected_total", Help: "Resolutions refused for a missing or wrong anti-forgery token."},
	{ID: jsonfas.MetricSSLVerified, Name: "jsonfas_ssl_verified_total", Help: "Accepted client certificate verifications."},
	{ID: jsonfas.MetricSSLRejected, Name: "jsonfas_ssl_rejected_total", Help: "Rejected client certificate verifications."},
	{ID: jsonfas.MetricVisitKeyRotated, Name: "jsonfas_visit_key_rotated_total", Help: "Visit keys replaced by the account service."},
	{ID: jsonfas.MetricLogout, Name: "jsonfas_logout_total", Help: "Logout calls sent to the account service."},
	{ID: jsonfas.MetricLogoutFailure, Name: "jsonfas_logout_failure_total", Help: "Logout calls that failed."},
	{ID: jsonfas.MetricPasswordCheckSuccess, Name: "jsonfas_password_check_success_total", Help: "Successful local password checks."},
	{ID: jsonfas.MetricPasswordCheckFailure, Name: "jsonfas_password_check_failure_total", Help: "Failed local password checks."},
	{ID: jsonfas.MetricLoginRateLimited, Name: "jsonfas_login_rate_limited_total", Help: "Interactive logins refused by the throttle."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: jsonfas.MetricRetrieveLatency, Name: "jsonfas_retrieve_latency_seconds", Help: "Latency of remote user fetches."},
}

// HistogramBounds are the upper bounds of the eight buckets, as Prometheus le
// labels.
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

// NormalizeBuckets copies raw into a fixed array, zero filling short input.
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
