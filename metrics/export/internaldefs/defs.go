package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful password or credential logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Login attempts with a wrong secret."},
	{ID: authcore.MetricLoginUnknownAccount, Name: "authcore_login_unknown_account_total", Help: "Login attempts for unknown or inactive accounts."},
	{ID: authcore.MetricLoginLockedRejected, Name: "authcore_login_locked_rejected_total", Help: "Lookups rejected because the account is locked."},
	{ID: authcore.MetricRememberTokenSuccess, Name: "authcore_remember_token_success_total", Help: "Successful remember-token sign-ins."},
	{ID: authcore.MetricRememberTokenFailure, Name: "authcore_remember_token_failure_total", Help: "Rejected remember-token sign-ins."},
	{ID: authcore.MetricAccountLocked, Name: "authcore_account_locked_total", Help: "Locks engaged after repeated failures."},
	{ID: authcore.MetricAccountUnlocked, Name: "authcore_account_unlocked_total", Help: "Locks removed."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logouts."},
	{ID: authcore.MetricPasswordRehashed, Name: "authcore_password_rehashed_total", Help: "Secrets rehashed with current parameters on login."},
	{ID: authcore.MetricVerificationIssued, Name: "authcore_verification_issued_total", Help: "Verification codes and links issued."},
	{ID: authcore.MetricVerificationSuccess, Name: "authcore_verification_success_total", Help: "Accounts verified."},
	{ID: authcore.MetricVerificationFailure, Name: "authcore_verification_failure_total", Help: "Rejected verification attempts."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricAuthLatency, Name: "authcore_auth_latency_seconds", Help: "Secret validation latency."},
}

// AuditDroppedName is the counter exporters publish for dropped audit records.
const (
	AuditDroppedName = "authcore_audit_dropped_total"
	AuditDroppedHelp = "Audit records dropped under dispatcher backpressure."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets copies raw into a fixed eight-bucket array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
