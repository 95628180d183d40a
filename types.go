package goVerify

import (
	"context"
	"time"
)

// Method identifies a second factor.
type Method string

const (
	MethodTOTP        Method = "TOTP"
	MethodSMS         Method = "SMS"
	MethodBackupCodes Method = "BACKUP_CODES"
)

func (m Method) valid() bool {
	switch m {
	case MethodTOTP, MethodSMS, MethodBackupCodes:
		return true
	}
	return false
}

// EnrollmentStatus is the persisted status of a factor enrollment.
type EnrollmentStatus string

const (
	StatusPending  EnrollmentStatus = "PENDING"
	StatusEnabled  EnrollmentStatus = "ENABLED"
	StatusDisabled EnrollmentStatus = "DISABLED"
)

// FactorEnrollment records that a user has set up one factor.
type FactorEnrollment struct {
	UserID     string           `json:"user_id"`
	Method     Method           `json:"method"`
	Status     EnrollmentStatus `json:"status"`
	EnrolledAt time.Time        `json:"enrolled_at"`
}

// EnableResult is returned once by Enable. Secret material in it is never
// available again.
type EnableResult struct {
	Enrollment FactorEnrollment

	// TOTP
	Secret          string
	ProvisioningURI string

	// BACKUP_CODES
	BackupCodes []string

	// SMS
	SessionExpiresAt time.Time
}

// LinkedIdentity binds an account at an external provider to a local user.
type LinkedIdentity struct {
	LocalUserID    string    `json:"local_user_id"`
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	Email          string    `json:"email,omitempty"`
	AccessToken    string    `json:"access_token"`
	RefreshToken   string    `json:"refresh_token,omitempty"`
	TokenExpiry    time.Time `json:"token_expiry"`
	LinkedAt       time.Time `json:"linked_at"`
	LastUsed       time.Time `json:"last_used"`
}

// Summary drops the tokens.
func (l LinkedIdentity) Summary() IdentitySummary {
	return IdentitySummary{
		Provider:       l.Provider,
		ProviderUserID: l.ProviderUserID,
		TokenExpiry:    l.TokenExpiry,
		LinkedAt:       l.LinkedAt,
		LastUsed:       l.LastUsed,
	}
}

// IdentitySummary is the token-free view of a LinkedIdentity carried by events.
type IdentitySummary struct {
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	TokenExpiry    time.Time `json:"token_expiry"`
	LinkedAt       time.Time `json:"linked_at"`
	LastUsed       time.Time `json:"last_used"`
}

// IdentityData is what a completed OAuth flow yields about the external account.
type IdentityData struct {
	ProviderUserID string
	Email          string
	AccessToken    string
	RefreshToken   string
	TokenExpiry    time.Time
}

// AccountDirectory answers questions about the local account that live
// outside the verification core.
type AccountDirectory interface {
	// VerifiedPhone returns the user's verified phone number, or "" when the
	// user has none.
	VerifiedPhone(ctx context.Context, userID string) (string, error)
	// HasPassword reports whether the user can still sign in with a password.
	HasPassword(ctx context.Context, userID string) (bool, error)
}
