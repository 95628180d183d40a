package goVerify

import (
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks a configuration warning.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("LintSeverity(%d)", int(s))
	}
}

// LintWarning is a setting that validates but weakens verification.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered output of Config.Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, len(r))
	for i, w := range r {
		out[i] = w.Code
	}
	return out
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError returns a configuration error listing every warning at or above
// min, or nil when there is none.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, len(hits))
	for i, w := range hits {
		parts[i] = w.Severity.String() + " " + w.Code + ": " + w.Message
	}
	return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(parts, "; "))
}

// Lint reports settings that pass Validate but are risky in production.
// It never modifies c.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if !c.TOTP.EnforceReplayProtection {
		add("totp_replay_unprotected", LintHigh, "a TOTP code can be used again within its window")
	}
	if c.TOTP.Skew > 2 {
		add("totp_skew_wide", LintWarn, fmt.Sprintf("%d periods of skew accepts codes minutes old", c.TOTP.Skew))
	}
	if c.TOTP.MaxAttempts > 10 {
		add("totp_attempts_high", LintWarn, "more than 10 TOTP attempts per cooldown")
	}
	if c.SMS.MaxAttempts > 5 {
		add("sms_attempts_high", LintWarn, "more than 5 attempts per SMS code")
	}
	if c.SMS.SessionTTL > 15*time.Minute {
		add("sms_ttl_long", LintWarn, "SMS codes stay valid longer than 15 minutes")
	}
	if c.SMS.ResendCooldown == 0 {
		add("sms_resend_unthrottled", LintWarn, "SMS codes can be resent without delay")
	}
	if c.BackupCodes.Length < 8 {
		add("backup_code_short", LintWarn, "backup codes shorter than 8 characters")
	}
	if c.OAuth.ChallengeTTL > 30*time.Minute {
		add("oauth_challenge_ttl_long", LintWarn, "pending OAuth flows live longer than 30 minutes")
	}
	if len(c.Vault.EncryptionKey) == 0 {
		add("vault_unencrypted", LintWarn, "vault values are stored without encryption")
	}
	if !c.Policy.RequireAuthMethod {
		add("auth_method_not_required", LintHigh, "a user can remove every way to sign in")
	}
	if !c.Policy.MFARequired {
		add("mfa_optional", LintInfo, "users may disable their last second factor")
	}
	if !c.Dispatcher.Enabled {
		add("events_disabled", LintInfo, "no lifecycle events are published")
	}
	if !c.Metrics.Enabled {
		add("metrics_disabled", LintInfo, "counters are not recorded")
	}
	return ws
}
