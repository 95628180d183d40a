package vault

// Key builders. Every key is derived deterministically from a user id and a purpose.

func TOTPSettingsKey(userID string) string { return "totp_settings_" + userID }

func EnrollmentsKey(userID string) string { return "mfa_enrollments_" + userID }

func BackupCodesKey(userID string) string { return "backup_codes_" + userID }

func SMSSessionKey(userID string) string { return "sms_session_" + userID }

// SMSLastSentKey holds the time of the last code sent to the user. It
// outlives the session so a destroyed session does not reset the cooldown.
func SMSLastSentKey(userID string) string { return "sms_last_sent_" + userID }

func LinkedIdentitiesKey(userID string) string { return "linked_identities_" + userID }

// LinkedIndexKey maps a provider account back to its local user.
func LinkedIndexKey(provider, providerUserID string) string {
	return "linked_index_" + provider + "_" + providerUserID
}
