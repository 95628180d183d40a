package goVerify

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/goVerify/autherr"
	"github.com/MrEthical07/goVerify/totp"
)

// Config holds every tunable of the engine. Build copies it; later changes
// to the caller's value have no effect.
type Config struct {
	TOTP        TOTPConfig
	SMS         SMSConfig
	BackupCodes BackupCodeConfig
	OAuth       OAuthConfig
	Link        LinkConfig
	Policy      Policy
	Vault       VaultConfig
	Dispatcher  DispatcherConfig
	Metrics     MetricsConfig

	// Logger receives best-effort failures (rollbacks, revocations, dropped
	// events). Defaults to slog.Default().
	Logger *slog.Logger
}

/*
====================================
FACTOR CONFIG
====================================
*/

type TOTPConfig struct {
	Issuer    string
	Period    time.Duration
	Digits    int
	Algorithm string
	// Skew is the number of periods accepted either side of now.
	Skew int
	// EnforceReplayProtection rejects a code whose time step was already used.
	EnforceReplayProtection bool
	MaxAttempts             int
	Cooldown                time.Duration
}

type SMSConfig struct {
	SessionTTL  time.Duration
	MaxAttempts int
	// ResendCooldown is measured from the session's last send.
	ResendCooldown time.Duration
}

type BackupCodeConfig struct {
	Count       int
	Length      int
	MaxAttempts int
	Cooldown    time.Duration
}

/*
====================================
IDENTITY CONFIG
====================================
*/

type OAuthConfig struct {
	ChallengeTTL time.Duration
	RedisPrefix  string
}

type LinkConfig struct {
	MaxLinkedIdentities int
	// RefreshBuffer is how close to expiry RefreshIfNeeded starts refreshing.
	RefreshBuffer time.Duration
}

// Policy decides which removals are allowed.
type Policy struct {
	// MFARequired forbids disabling the last enabled factor.
	MFARequired bool
	// RequireAuthMethod forbids any removal that leaves the user with no
	// enabled factor, no linked identity and no password.
	RequireAuthMethod bool
}

/*
====================================
INFRASTRUCTURE CONFIG
====================================
*/

type VaultConfig struct {
	RedisPrefix string
	// EncryptionKey, when set, seals every vault value with
	// XChaCha20-Poly1305. It must be 32 bytes.
	EncryptionKey []byte
}

type DispatcherConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration Build uses when none is given.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		TOTP: TOTPConfig{
			Issuer:                  "goVerify",
			Period:                  30 * time.Second,
			Digits:                  6,
			Algorithm:               "SHA1",
			Skew:                    1,
			EnforceReplayProtection: true,
			MaxAttempts:             5,
			Cooldown:                time.Minute,
		},
		SMS: SMSConfig{
			SessionTTL:     5 * time.Minute,
			MaxAttempts:    3,
			ResendCooldown: 60 * time.Second,
		},
		BackupCodes: BackupCodeConfig{
			Count:       10,
			Length:      8,
			MaxAttempts: 5,
			Cooldown:    time.Minute,
		},
		OAuth: OAuthConfig{
			ChallengeTTL: 10 * time.Minute,
			RedisPrefix:  "gvpk",
		},
		Link: LinkConfig{
			MaxLinkedIdentities: 5,
			RefreshBuffer:       5 * time.Minute,
		},
		Policy: Policy{
			MFARequired:       false,
			RequireAuthMethod: true,
		},
		Vault: VaultConfig{
			RedisPrefix: "gv",
		},
		Dispatcher: DispatcherConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Vault.EncryptionKey = cloneBytes(cfg.Vault.EncryptionKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting as a configuration error.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return autherr.WithKind(autherr.KindConfiguration, "config.Validate", err)
	}
	return nil
}

func (c *Config) validate() error {
	// TOTP
	if strings.TrimSpace(c.TOTP.Issuer) == "" {
		return errors.New("TOTP Issuer is required")
	}
	if _, err := totp.New(c.totpEngineConfig()); err != nil {
		return fmt.Errorf("TOTP: %w", err)
	}
	if c.TOTP.MaxAttempts <= 0 {
		return errors.New("TOTP MaxAttempts must be > 0")
	}
	if c.TOTP.Cooldown <= 0 {
		return errors.New("TOTP Cooldown must be > 0")
	}

	// SMS
	if c.SMS.SessionTTL <= 0 {
		return errors.New("SMS SessionTTL must be > 0")
	}
	if c.SMS.MaxAttempts <= 0 || c.SMS.MaxAttempts > 1000 {
		return errors.New("SMS MaxAttempts must be between 1 and 1000")
	}
	if c.SMS.ResendCooldown < 0 {
		return errors.New("SMS ResendCooldown must be >= 0")
	}

	// Backup codes
	if c.BackupCodes.Count <= 0 || c.BackupCodes.Count > 100 {
		return errors.New("BackupCodes Count must be between 1 and 100")
	}
	if c.BackupCodes.Length < 6 {
		return errors.New("BackupCodes Length must be >= 6")
	}
	if c.BackupCodes.MaxAttempts <= 0 {
		return errors.New("BackupCodes MaxAttempts must be > 0")
	}
	if c.BackupCodes.Cooldown <= 0 {
		return errors.New("BackupCodes Cooldown must be > 0")
	}

	// OAuth and linking
	if c.OAuth.ChallengeTTL <= 0 {
		return errors.New("OAuth ChallengeTTL must be > 0")
	}
	if c.Link.MaxLinkedIdentities <= 0 {
		return errors.New("Link MaxLinkedIdentities must be > 0")
	}
	if c.Link.RefreshBuffer < 0 {
		return errors.New("Link RefreshBuffer must be >= 0")
	}

	// Infrastructure
	if n := len(c.Vault.EncryptionKey); n != 0 && n != 32 {
		return errors.New("Vault EncryptionKey must be 32 bytes")
	}
	if c.Dispatcher.Enabled && c.Dispatcher.BufferSize <= 0 {
		return errors.New("Dispatcher BufferSize must be > 0")
	}
	return nil
}

func (c *Config) totpEngineConfig() totp.Config {
	return totp.Config{
		Period:    c.TOTP.Period,
		Digits:    c.TOTP.Digits,
		Algorithm: totp.Algorithm(c.TOTP.Algorithm),
		Skew:      c.TOTP.Skew,
	}
}
