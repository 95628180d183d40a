package security

import "time"

// Report summarizes the protections an engine runs with.
type Report struct {
	TOTPReplayProtection bool
	TOTPSkewWindow       time.Duration
	AttemptLimits        AttemptLimits
	SMSCodeTTL           time.Duration
	SMSResendThrottled   bool
	BackupCodeEntropy    int
	VaultSealed          bool
	SharedState          bool
	MFARequired          bool
	AuthMethodRequired   bool
	MaxLinkedIdentities  int
	EventsEnabled        bool
	EventsMayDrop        bool
}

// AttemptLimits lists the failed attempts tolerated before lockout.
type AttemptLimits struct {
	TOTP       int
	SMS        int
	BackupCode int
}

type ReportInput struct {
	TOTPReplayProtection bool
	TOTPPeriod           time.Duration
	TOTPSkew             int
	TOTPMaxAttempts      int
	SMSSessionTTL        time.Duration
	SMSMaxAttempts       int
	SMSResendCooldown    time.Duration
	BackupCodeLength     int
	BackupMaxAttempts    int
	EncryptionKeyLength  int
	RedisConfigured      bool
	MFARequired          bool
	RequireAuthMethod    bool
	MaxLinkedIdentities  int
	DispatcherEnabled    bool
	DispatcherDropIfFull bool
}

// backupAlphabetBits is log2 of the 32-symbol backup code alphabet.
const backupAlphabetBits = 5

func BuildReport(input ReportInput) Report {
	return Report{
		TOTPReplayProtection: input.TOTPReplayProtection,
		TOTPSkewWindow:       time.Duration(2*input.TOTPSkew+1) * input.TOTPPeriod,
		AttemptLimits: AttemptLimits{
			TOTP:       input.TOTPMaxAttempts,
			SMS:        input.SMSMaxAttempts,
			BackupCode: input.BackupMaxAttempts,
		},
		SMSCodeTTL:          input.SMSSessionTTL,
		SMSResendThrottled:  input.SMSResendCooldown > 0,
		BackupCodeEntropy:   input.BackupCodeLength * backupAlphabetBits,
		VaultSealed:         input.EncryptionKeyLength > 0,
		SharedState:         input.RedisConfigured,
		MFARequired:         input.MFARequired,
		AuthMethodRequired:  input.RequireAuthMethod,
		MaxLinkedIdentities: input.MaxLinkedIdentities,
		EventsEnabled:       input.DispatcherEnabled,
		EventsMayDrop:       input.DispatcherEnabled && input.DispatcherDropIfFull,
	}
}
