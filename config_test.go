package goVerify

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty issuer", mutate: func(c *Config) { c.TOTP.Issuer = " " }},
		{name: "digits below six", mutate: func(c *Config) { c.TOTP.Digits = 4 }},
		{name: "unknown algorithm", mutate: func(c *Config) { c.TOTP.Algorithm = "MD5" }},
		{name: "zero totp attempts", mutate: func(c *Config) { c.TOTP.MaxAttempts = 0 }},
		{name: "zero totp cooldown", mutate: func(c *Config) { c.TOTP.Cooldown = 0 }},
		{name: "zero sms ttl", mutate: func(c *Config) { c.SMS.SessionTTL = 0 }},
		{name: "zero sms attempts", mutate: func(c *Config) { c.SMS.MaxAttempts = 0 }},
		{name: "zero backup count", mutate: func(c *Config) { c.BackupCodes.Count = 0 }},
		{name: "short backup codes", mutate: func(c *Config) { c.BackupCodes.Length = 4 }},
		{name: "zero challenge ttl", mutate: func(c *Config) { c.OAuth.ChallengeTTL = 0 }},
		{name: "zero link cap", mutate: func(c *Config) { c.Link.MaxLinkedIdentities = 0 }},
		{name: "negative refresh buffer", mutate: func(c *Config) { c.Link.RefreshBuffer = -time.Second }},
		{name: "short encryption key", mutate: func(c *Config) { c.Vault.EncryptionKey = make([]byte, 16) }},
		{name: "zero dispatcher buffer", mutate: func(c *Config) { c.Dispatcher.BufferSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected configuration kind, got %v", err)
			}
		})
	}
}

func TestConfigValidateAccepts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "eight digits sha256", mutate: func(c *Config) { c.TOTP.Digits = 8; c.TOTP.Algorithm = "SHA256" }},
		{name: "disabled dispatcher ignores buffer", mutate: func(c *Config) { c.Dispatcher.Enabled = false; c.Dispatcher.BufferSize = 0 }},
		{name: "32 byte key", mutate: func(c *Config) { c.Vault.EncryptionKey = make([]byte, 32) }},
		{name: "zero refresh buffer", mutate: func(c *Config) { c.Link.RefreshBuffer = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
		})
	}
}

func TestBuilderCopiesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Vault.EncryptionKey = make([]byte, 32)
	b := New().WithConfig(cfg)

	cfg.Vault.EncryptionKey[0] = 9
	cfg.TOTP.Issuer = "mutated"

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	got := engine.Config()
	if got.TOTP.Issuer != "goVerify" || got.Vault.EncryptionKey[0] != 0 {
		t.Fatalf("builder must copy the config, got issuer %q key[0]=%d", got.TOTP.Issuer, got.Vault.EncryptionKey[0])
	}
	got.Vault.EncryptionKey[0] = 7
	if engine.Config().Vault.EncryptionKey[0] != 0 {
		t.Fatal("Config must return a copy")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	want := DefaultConfig()
	if cfg.TOTP != want.TOTP || cfg.SMS != want.SMS || cfg.Link != want.Link || cfg.Policy != want.Policy {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	key := make([]byte, 32)
	key[31] = 1
	t.Setenv("GOVERIFY_TOTP_ISSUER", "Acme")
	t.Setenv("GOVERIFY_TOTP_DIGITS", "8")
	t.Setenv("GOVERIFY_SMS_RESEND_COOLDOWN", "45s")
	t.Setenv("GOVERIFY_POLICY_MFA_REQUIRED", "true")
	t.Setenv("GOVERIFY_VAULT_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(key))

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.TOTP.Issuer != "Acme" || cfg.TOTP.Digits != 8 {
		t.Fatalf("unexpected totp config %+v", cfg.TOTP)
	}
	if cfg.SMS.ResendCooldown != 45*time.Second {
		t.Fatalf("expected 45s cooldown, got %v", cfg.SMS.ResendCooldown)
	}
	if !cfg.Policy.MFARequired {
		t.Fatal("expected MFARequired from environment")
	}
	if len(cfg.Vault.EncryptionKey) != 32 || cfg.Vault.EncryptionKey[31] != 1 {
		t.Fatalf("unexpected encryption key %v", cfg.Vault.EncryptionKey)
	}
}

func TestLoadConfigFileWithEnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goverify.env")
	content := strings.Join([]string{
		"TOTP_ISSUER=FromFile",
		"LINK_MAX_IDENTITIES=2",
		"OAUTH_CHALLENGE_TTL=2m",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("GOVERIFY_LINK_MAX_IDENTITIES", "3")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.TOTP.Issuer != "FromFile" {
		t.Fatalf("expected issuer from file, got %q", cfg.TOTP.Issuer)
	}
	if cfg.Link.MaxLinkedIdentities != 3 {
		t.Fatalf("expected environment to override file, got %d", cfg.Link.MaxLinkedIdentities)
	}
	if cfg.OAuth.ChallengeTTL != 2*time.Minute {
		t.Fatalf("expected 2m challenge ttl, got %v", cfg.OAuth.ChallengeTTL)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env")); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error for missing file, got %v", err)
	}

	t.Setenv("GOVERIFY_VAULT_ENCRYPTION_KEY", "not base64!")
	if _, err := LoadConfig(""); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error for bad key, got %v", err)
	}

	t.Setenv("GOVERIFY_VAULT_ENCRYPTION_KEY", "")
	t.Setenv("GOVERIFY_TOTP_DIGITS", "12")
	if _, err := LoadConfig(""); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error for bad digits, got %v", err)
	}
}
