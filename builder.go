package goVerify

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goVerify/internal/rate"
	"github.com/MrEthical07/goVerify/oauth"
	"github.com/MrEthical07/goVerify/sms"
	"github.com/MrEthical07/goVerify/vault"
	"github.com/MrEthical07/goVerify/vault/redisvault"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine.
//
// Builder instances are intended to be configured during initialization and
// used for exactly one Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	vault  vault.Vault

	smsChannel sms.Channel
	accounts   AccountDirectory

	providers []oauth.ProviderConfig
	clients   []oauth.Client
	sinks     []Sink

	now func() time.Time

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis makes Redis the home of vault values, attempt counters and
// pending OAuth challenges. An explicit WithVault still wins for the vault.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithVault sets the vault. Without it the engine uses Redis when
// configured and an in-memory vault otherwise.
func (b *Builder) WithVault(v vault.Vault) *Builder {
	b.vault = v
	return b
}

// WithSMSChannel sets the channel used by the SMS factor.
func (b *Builder) WithSMSChannel(ch sms.Channel) *Builder {
	b.smsChannel = ch
	return b
}

// WithAccountDirectory sets the source of verified phones and password presence.
func (b *Builder) WithAccountDirectory(d AccountDirectory) *Builder {
	b.accounts = d
	return b
}

// WithProviders registers OAuth providers backed by golang.org/x/oauth2.
func (b *Builder) WithProviders(cfgs ...oauth.ProviderConfig) *Builder {
	b.providers = append(b.providers, cfgs...)
	return b
}

// WithOAuthClients registers custom OAuth clients.
func (b *Builder) WithOAuthClients(clients ...oauth.Client) *Builder {
	b.clients = append(b.clients, clients...)
	return b
}

// WithSink subscribes sink to the event dispatcher at build time.
func (b *Builder) WithSink(sink Sink) *Builder {
	b.sinks = append(b.sinks, sink)
	return b
}

// WithLogger sets Config.Logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.config.Logger = logger
	return b
}

// WithClock replaces time.Now for every component. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the verification latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
//
// Build may be called once per Builder.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- VAULT --------
	v := b.vault
	if v == nil {
		if b.redis != nil {
			v = redisvault.New(b.redis, cfg.Vault.RedisPrefix)
		} else {
			v = vault.NewMemory()
		}
	}
	if len(cfg.Vault.EncryptionKey) > 0 {
		sealed, err := vault.NewSealed(v, cfg.Vault.EncryptionKey)
		if err != nil {
			return nil, err
		}
		v = sealed
	}

	// -------- ATTEMPT COUNTERS --------
	var counter rate.Counter = rate.NewMemoryCounter().WithClock(now)
	if b.redis != nil {
		counter = rate.NewRedisCounter(b.redis, cfg.Vault.RedisPrefix)
	}

	// -------- OAUTH --------
	var challenges oauth.ChallengeStore
	if b.redis != nil {
		challenges = oauth.NewRedisChallengeStore(b.redis, cfg.OAuth.RedisPrefix).WithClock(now)
	}
	clients := make([]oauth.Client, 0, len(b.providers)+len(b.clients))
	for _, p := range b.providers {
		c, err := oauth.NewOAuth2Client(p)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	clients = append(clients, b.clients...)
	flows, err := oauth.NewFlowManager(challenges, oauth.FlowConfig{
		ChallengeTTL: cfg.OAuth.ChallengeTTL,
		Logger:       cfg.Logger,
		Now:          now,
	}, clients...)
	if err != nil {
		return nil, err
	}

	// -------- EVENTS AND METRICS --------
	dispatcher := NewDispatcher(cfg.Dispatcher, cfg.Logger, b.sinks...)
	metrics := NewMetrics(cfg.Metrics)

	// -------- MANAGERS --------
	sh := newShared(v, dispatcher, metrics, b.accounts, cfg.Logger, now)
	factors, err := newFactorManager(cfg, sh, b.smsChannel, counter)
	if err != nil {
		dispatcher.Close()
		return nil, err
	}
	links := newLinkedIdentityManager(cfg, sh, flows)

	b.built = true

	return &Engine{
		config:     cloneConfig(cfg),
		vault:      v,
		factors:    factors,
		links:      links,
		flows:      flows,
		dispatcher: dispatcher,
		metrics:    metrics,

		sharedState: b.redis != nil,
	}, nil
}
