package internaldefs

import (
	goVerify "github.com/MrEthical07/goVerify"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   goVerify.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   goVerify.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: goVerify.MetricFactorEnabled, Name: "goverify_factor_enabled_total", Help: "Factors that reached the enabled state."},
	{ID: goVerify.MetricFactorDisabled, Name: "goverify_factor_disabled_total", Help: "Factors disabled."},
	{ID: goVerify.MetricTOTPSuccess, Name: "goverify_totp_success_total", Help: "Successful TOTP verifications."},
	{ID: goVerify.MetricTOTPFailure, Name: "goverify_totp_failure_total", Help: "Failed TOTP verifications."},
	{ID: goVerify.MetricReplayDetected, Name: "goverify_replay_detected_total", Help: "TOTP codes rejected as replays."},
	{ID: goVerify.MetricSMSSent, Name: "goverify_sms_sent_total", Help: "SMS verification codes sent."},
	{ID: goVerify.MetricSMSSuccess, Name: "goverify_sms_success_total", Help: "Successful SMS verifications."},
	{ID: goVerify.MetricSMSFailure, Name: "goverify_sms_failure_total", Help: "Failed SMS verifications."},
	{ID: goVerify.MetricSMSAttemptsExceeded, Name: "goverify_sms_attempts_exceeded_total", Help: "SMS sessions destroyed after the attempt limit."},
	{ID: goVerify.MetricBackupCodeUsed, Name: "goverify_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: goVerify.MetricBackupCodeFailed, Name: "goverify_backup_code_failed_total", Help: "Failed backup code verifications."},
	{ID: goVerify.MetricBackupCodeRegenerated, Name: "goverify_backup_code_regenerated_total", Help: "Backup code sets generated."},
	{ID: goVerify.MetricRateLimitHit, Name: "goverify_rate_limit_hit_total", Help: "Verifications denied by an attempt limit."},
	{ID: goVerify.MetricPolicyRejected, Name: "goverify_policy_rejected_total", Help: "Disable or unlink requests refused by policy."},
	{ID: goVerify.MetricAccountLinked, Name: "goverify_account_linked_total", Help: "External identities linked."},
	{ID: goVerify.MetricAccountUnlinked, Name: "goverify_account_unlinked_total", Help: "External identities unlinked."},
	{ID: goVerify.MetricLinkedSignIn, Name: "goverify_linked_sign_in_total", Help: "Sign-ins resolved through a linked identity."},
	{ID: goVerify.MetricTokensRefreshed, Name: "goverify_tokens_refreshed_total", Help: "Provider tokens refreshed."},
	{ID: goVerify.MetricRefreshFailure, Name: "goverify_refresh_failure_total", Help: "Failed provider token refreshes."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goVerify.MetricVerifyLatency, Name: "goverify_verify_latency_seconds", Help: "Factor verification latency."},
}

// HistogramBounds are the upper bounds of the engine's latency buckets.
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

// HistogramBoundSuffix renders HistogramBounds into instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling short input.
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
