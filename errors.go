package goVerify

import (
	"github.com/MrEthical07/goVerify/autherr"
	"github.com/MrEthical07/goVerify/oauth"
)

// Kind sentinels, re-exported so callers can classify failures without
// importing autherr.
var (
	ErrValidation          = autherr.ErrValidation
	ErrExpired             = autherr.ErrExpired
	ErrAttemptsExceeded    = autherr.ErrAttemptsExceeded
	ErrCapExceeded         = autherr.ErrCapExceeded
	ErrProvider            = autherr.ErrProvider
	ErrConfiguration       = autherr.ErrConfiguration
	ErrRefreshNotSupported = oauth.ErrRefreshNotSupported
)

var (
	// ErrEngineNotReady is returned by managers built without their collaborators.
	ErrEngineNotReady = autherr.New(autherr.KindConfiguration, "verification engine not initialized")
	// ErrUnsupportedMethod is returned for an unknown factor method.
	ErrUnsupportedMethod = autherr.New(autherr.KindValidation, "unsupported factor method")
	// ErrInvalidUserID is returned for a blank user id.
	ErrInvalidUserID = autherr.New(autherr.KindValidation, "user id is required")
	// ErrFactorAlreadyEnabled is returned by Enable when the factor is already active.
	ErrFactorAlreadyEnabled = autherr.New(autherr.KindValidation, "factor already enabled")
	// ErrFactorNotEnrolled is returned when the user has no enrollment for the method.
	ErrFactorNotEnrolled = autherr.New(autherr.KindValidation, "factor not enrolled")
	// ErrFactorSecretMissing is returned when an enrollment exists but its vault record does not.
	ErrFactorSecretMissing = autherr.New(autherr.KindConfiguration, "factor secret missing from vault")
	// ErrLastFactor is returned when MFA is required and the last enabled factor would be disabled.
	ErrLastFactor = autherr.New(autherr.KindConfiguration, "cannot disable the last enabled factor")
	// ErrLastAuthMethod is returned when an operation would leave the user no way to authenticate.
	ErrLastAuthMethod = autherr.New(autherr.KindConfiguration, "cannot remove the last authentication method")

	// ErrTOTPInvalid is an incorrect, malformed or replayed TOTP code.
	ErrTOTPInvalid = autherr.New(autherr.KindValidation, "invalid totp code")
	// ErrTOTPRateLimited is returned once the TOTP failure budget is spent.
	ErrTOTPRateLimited = autherr.New(autherr.KindAttemptsExceeded, "totp attempts exceeded")
	// ErrTOTPUnavailable is returned when the TOTP attempt limiter cannot be reached.
	ErrTOTPUnavailable = autherr.New(autherr.KindProvider, "totp backend unavailable")

	// ErrBackupCodeInvalid is an unknown or already consumed backup code.
	ErrBackupCodeInvalid = autherr.New(autherr.KindValidation, "invalid backup code")
	// ErrBackupCodeRateLimited is returned once the backup code failure budget is spent.
	ErrBackupCodeRateLimited = autherr.New(autherr.KindAttemptsExceeded, "backup code attempts exceeded")
	// ErrBackupCodeUnavailable is returned when codes cannot be generated or checked.
	ErrBackupCodeUnavailable = autherr.New(autherr.KindProvider, "backup code backend unavailable")

	// ErrPhoneNotVerified is returned by Enable(SMS) for users without a verified phone.
	ErrPhoneNotVerified = autherr.New(autherr.KindValidation, "verified phone number required")
	// ErrSMSSessionNotFound is returned when no SMS verification session is pending.
	ErrSMSSessionNotFound = autherr.New(autherr.KindValidation, "sms verification session not found")
	// ErrSMSSessionExpired is returned for a session past its deadline.
	ErrSMSSessionExpired = autherr.New(autherr.KindExpired, "sms verification session expired")
	// ErrSMSAttemptsExceeded is terminal for the session it was raised on.
	ErrSMSAttemptsExceeded = autherr.New(autherr.KindAttemptsExceeded, "sms verification attempts exceeded")
	// ErrSMSCodeInvalid is an incorrect SMS code with attempts remaining.
	ErrSMSCodeInvalid = autherr.New(autherr.KindValidation, "invalid sms code")
	// ErrSMSResendCooldown is returned when a code was sent too recently.
	ErrSMSResendCooldown = autherr.New(autherr.KindValidation, "sms resend cooldown active")
	// ErrSMSUnavailable is returned when the session could not be updated.
	ErrSMSUnavailable = autherr.New(autherr.KindProvider, "sms session backend unavailable")

	// ErrLinkCapExceeded is returned when the user already has the maximum number of linked identities.
	ErrLinkCapExceeded = autherr.New(autherr.KindCapExceeded, "linked identity limit reached")
	// ErrAlreadyLinked is returned when the user already has a link for the provider.
	ErrAlreadyLinked = autherr.New(autherr.KindValidation, "provider already linked")
	// ErrIdentityLinkedElsewhere is returned when the external account belongs to another local user.
	ErrIdentityLinkedElsewhere = autherr.New(autherr.KindValidation, "identity linked to another account")
	// ErrIdentityInvalid is returned for identity data without a provider user id or access token.
	ErrIdentityInvalid = autherr.New(autherr.KindValidation, "invalid identity data")
	// ErrIdentityTokenExpired is returned for identity data whose access token already expired.
	ErrIdentityTokenExpired = autherr.New(autherr.KindExpired, "identity access token expired")
	// ErrNotLinked is returned when no link exists for the provider.
	ErrNotLinked = autherr.New(autherr.KindValidation, "identity not linked")
)
