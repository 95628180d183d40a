package goVerify

import "github.com/MrEthical07/goVerify/internal/security"

// SecurityReport summarizes the protections the engine runs with. It holds
// no secrets and is safe to log.
type SecurityReport = security.Report

// SecurityReport derives the report from the engine's configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config
	return security.BuildReport(security.ReportInput{
		TOTPReplayProtection: c.TOTP.EnforceReplayProtection,
		TOTPPeriod:           c.TOTP.Period,
		TOTPSkew:             c.TOTP.Skew,
		TOTPMaxAttempts:      c.TOTP.MaxAttempts,
		SMSSessionTTL:        c.SMS.SessionTTL,
		SMSMaxAttempts:       c.SMS.MaxAttempts,
		SMSResendCooldown:    c.SMS.ResendCooldown,
		BackupCodeLength:     c.BackupCodes.Length,
		BackupMaxAttempts:    c.BackupCodes.MaxAttempts,
		EncryptionKeyLength:  len(c.Vault.EncryptionKey),
		RedisConfigured:      e.sharedState,
		MFARequired:          c.Policy.MFARequired,
		RequireAuthMethod:    c.Policy.RequireAuthMethod,
		MaxLinkedIdentities:  c.Link.MaxLinkedIdentities,
		DispatcherEnabled:    c.Dispatcher.Enabled,
		DispatcherDropIfFull: c.Dispatcher.DropIfFull,
	})
}
