package goVerify

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goVerify/autherr"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable LoadConfig reads.
const EnvPrefix = "GOVERIFY"

// fileConfig is the flat key space read from the environment and an
// optional .env file. Keys in the file omit the GOVERIFY_ prefix.
type fileConfig struct {
	TOTPIssuer                  string        `mapstructure:"TOTP_ISSUER"`
	TOTPPeriod                  time.Duration `mapstructure:"TOTP_PERIOD"`
	TOTPDigits                  int           `mapstructure:"TOTP_DIGITS"`
	TOTPAlgorithm               string        `mapstructure:"TOTP_ALGORITHM"`
	TOTPSkew                    int           `mapstructure:"TOTP_SKEW"`
	TOTPEnforceReplayProtection bool          `mapstructure:"TOTP_ENFORCE_REPLAY_PROTECTION"`
	TOTPMaxAttempts             int           `mapstructure:"TOTP_MAX_ATTEMPTS"`
	TOTPCooldown                time.Duration `mapstructure:"TOTP_COOLDOWN"`

	SMSSessionTTL     time.Duration `mapstructure:"SMS_SESSION_TTL"`
	SMSMaxAttempts    int           `mapstructure:"SMS_MAX_ATTEMPTS"`
	SMSResendCooldown time.Duration `mapstructure:"SMS_RESEND_COOLDOWN"`

	BackupCodeCount       int           `mapstructure:"BACKUP_CODE_COUNT"`
	BackupCodeLength      int           `mapstructure:"BACKUP_CODE_LENGTH"`
	BackupCodeMaxAttempts int           `mapstructure:"BACKUP_CODE_MAX_ATTEMPTS"`
	BackupCodeCooldown    time.Duration `mapstructure:"BACKUP_CODE_COOLDOWN"`

	OAuthChallengeTTL time.Duration `mapstructure:"OAUTH_CHALLENGE_TTL"`
	OAuthRedisPrefix  string        `mapstructure:"OAUTH_REDIS_PREFIX"`

	LinkMaxIdentities int           `mapstructure:"LINK_MAX_IDENTITIES"`
	LinkRefreshBuffer time.Duration `mapstructure:"LINK_REFRESH_BUFFER"`

	PolicyMFARequired       bool `mapstructure:"POLICY_MFA_REQUIRED"`
	PolicyRequireAuthMethod bool `mapstructure:"POLICY_REQUIRE_AUTH_METHOD"`

	VaultRedisPrefix   string `mapstructure:"VAULT_REDIS_PREFIX"`
	VaultEncryptionKey string `mapstructure:"VAULT_ENCRYPTION_KEY"`

	DispatcherEnabled    bool `mapstructure:"DISPATCHER_ENABLED"`
	DispatcherBufferSize int  `mapstructure:"DISPATCHER_BUFFER_SIZE"`
	DispatcherDropIfFull bool `mapstructure:"DISPATCHER_DROP_IF_FULL"`

	MetricsEnabled          bool `mapstructure:"METRICS_ENABLED"`
	MetricsLatencyHistogram bool `mapstructure:"METRICS_LATENCY_HISTOGRAMS"`
}

// LoadConfig reads configuration from GOVERIFY_* environment variables and,
// when path is not empty, from a .env style file at path. Environment
// variables override the file; unset keys keep DefaultConfig values. The
// result is validated.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, defaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, autherr.WithKind(autherr.KindConfiguration, "config.Load", fmt.Errorf("read %s: %w", path, err))
		}
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return Config{}, autherr.WithKind(autherr.KindConfiguration, "config.Load", err)
	}

	cfg, err := fc.toConfig()
	if err != nil {
		return Config{}, autherr.WithKind(autherr.KindConfiguration, "config.Load", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("TOTP_ISSUER", d.TOTP.Issuer)
	v.SetDefault("TOTP_PERIOD", d.TOTP.Period)
	v.SetDefault("TOTP_DIGITS", d.TOTP.Digits)
	v.SetDefault("TOTP_ALGORITHM", d.TOTP.Algorithm)
	v.SetDefault("TOTP_SKEW", d.TOTP.Skew)
	v.SetDefault("TOTP_ENFORCE_REPLAY_PROTECTION", d.TOTP.EnforceReplayProtection)
	v.SetDefault("TOTP_MAX_ATTEMPTS", d.TOTP.MaxAttempts)
	v.SetDefault("TOTP_COOLDOWN", d.TOTP.Cooldown)

	v.SetDefault("SMS_SESSION_TTL", d.SMS.SessionTTL)
	v.SetDefault("SMS_MAX_ATTEMPTS", d.SMS.MaxAttempts)
	v.SetDefault("SMS_RESEND_COOLDOWN", d.SMS.ResendCooldown)

	v.SetDefault("BACKUP_CODE_COUNT", d.BackupCodes.Count)
	v.SetDefault("BACKUP_CODE_LENGTH", d.BackupCodes.Length)
	v.SetDefault("BACKUP_CODE_MAX_ATTEMPTS", d.BackupCodes.MaxAttempts)
	v.SetDefault("BACKUP_CODE_COOLDOWN", d.BackupCodes.Cooldown)

	v.SetDefault("OAUTH_CHALLENGE_TTL", d.OAuth.ChallengeTTL)
	v.SetDefault("OAUTH_REDIS_PREFIX", d.OAuth.RedisPrefix)

	v.SetDefault("LINK_MAX_IDENTITIES", d.Link.MaxLinkedIdentities)
	v.SetDefault("LINK_REFRESH_BUFFER", d.Link.RefreshBuffer)

	v.SetDefault("POLICY_MFA_REQUIRED", d.Policy.MFARequired)
	v.SetDefault("POLICY_REQUIRE_AUTH_METHOD", d.Policy.RequireAuthMethod)

	v.SetDefault("VAULT_REDIS_PREFIX", d.Vault.RedisPrefix)
	v.SetDefault("VAULT_ENCRYPTION_KEY", "")

	v.SetDefault("DISPATCHER_ENABLED", d.Dispatcher.Enabled)
	v.SetDefault("DISPATCHER_BUFFER_SIZE", d.Dispatcher.BufferSize)
	v.SetDefault("DISPATCHER_DROP_IF_FULL", d.Dispatcher.DropIfFull)

	v.SetDefault("METRICS_ENABLED", d.Metrics.Enabled)
	v.SetDefault("METRICS_LATENCY_HISTOGRAMS", d.Metrics.EnableLatencyHistograms)
}

func (fc fileConfig) toConfig() (Config, error) {
	cfg := defaultConfig()

	cfg.TOTP = TOTPConfig{
		Issuer:                  fc.TOTPIssuer,
		Period:                  fc.TOTPPeriod,
		Digits:                  fc.TOTPDigits,
		Algorithm:               fc.TOTPAlgorithm,
		Skew:                    fc.TOTPSkew,
		EnforceReplayProtection: fc.TOTPEnforceReplayProtection,
		MaxAttempts:             fc.TOTPMaxAttempts,
		Cooldown:                fc.TOTPCooldown,
	}
	cfg.SMS = SMSConfig{
		SessionTTL:     fc.SMSSessionTTL,
		MaxAttempts:    fc.SMSMaxAttempts,
		ResendCooldown: fc.SMSResendCooldown,
	}
	cfg.BackupCodes = BackupCodeConfig{
		Count:       fc.BackupCodeCount,
		Length:      fc.BackupCodeLength,
		MaxAttempts: fc.BackupCodeMaxAttempts,
		Cooldown:    fc.BackupCodeCooldown,
	}
	cfg.OAuth = OAuthConfig{ChallengeTTL: fc.OAuthChallengeTTL, RedisPrefix: fc.OAuthRedisPrefix}
	cfg.Link = LinkConfig{MaxLinkedIdentities: fc.LinkMaxIdentities, RefreshBuffer: fc.LinkRefreshBuffer}
	cfg.Policy = Policy{MFARequired: fc.PolicyMFARequired, RequireAuthMethod: fc.PolicyRequireAuthMethod}
	cfg.Vault.RedisPrefix = fc.VaultRedisPrefix
	cfg.Dispatcher = DispatcherConfig{
		Enabled:    fc.DispatcherEnabled,
		BufferSize: fc.DispatcherBufferSize,
		DropIfFull: fc.DispatcherDropIfFull,
	}
	cfg.Metrics = MetricsConfig{Enabled: fc.MetricsEnabled, EnableLatencyHistograms: fc.MetricsLatencyHistogram}

	if fc.VaultEncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(fc.VaultEncryptionKey)
		if err != nil {
			return Config{}, errors.New("VAULT_ENCRYPTION_KEY must be standard base64")
		}
		cfg.Vault.EncryptionKey = key
	}
	return cfg, nil
}
