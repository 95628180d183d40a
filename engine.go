package goVerify

import (
	"context"
	"strings"

	"github.com/MrEthical07/goVerify/oauth"
	"github.com/MrEthical07/goVerify/vault"
)

// Engine ties the factor manager, the OAuth flow manager and the linked
// identity manager to one vault, one event dispatcher and one metrics set.
//
// Engine instances are built once by Builder and are safe for concurrent use.
type Engine struct {
	config     Config
	vault      vault.Vault
	factors    *FactorManager
	links      *LinkedIdentityManager
	flows      *oauth.FlowManager
	dispatcher *Dispatcher
	metrics    *Metrics

	// sharedState is true when counters and challenges live in Redis.
	sharedState bool
}

// Factors returns the second-factor manager.
func (e *Engine) Factors() *FactorManager { return e.factors }

// Links returns the linked identity manager.
func (e *Engine) Links() *LinkedIdentityManager { return e.links }

// OAuth returns the authorization flow manager.
func (e *Engine) OAuth() *oauth.FlowManager { return e.flows }

// Vault returns the vault every manager writes to. When an encryption key
// is configured this is the sealing wrapper.
func (e *Engine) Vault() vault.Vault { return e.vault }

// Config returns a copy of the configuration the engine was built with.
func (e *Engine) Config() Config { return cloneConfig(e.config) }

// Subscribe adds sink to the event dispatcher and returns a function that
// removes it. It is a no-op when the dispatcher is disabled.
func (e *Engine) Subscribe(sink Sink) func() {
	if e == nil {
		return func() {}
	}
	return e.dispatcher.Subscribe(sink)
}

// Close drains queued events and stops the dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.dispatcher.Close()
}

// EventsDropped returns how many events were discarded under backpressure.
func (e *Engine) EventsDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

// MetricsSnapshot returns the current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

/*
====================================
OAUTH CALLBACKS
====================================
*/

// LinkFromCallback completes the authorization flow identified by state and
// links the resulting external account to userID.
func (e *Engine) LinkFromCallback(ctx context.Context, userID, provider, code, state string) (*LinkedIdentity, error) {
	data, err := e.identityFromCallback(ctx, provider, code, state)
	if err != nil {
		return nil, e.links.shared.emitFailure(ctx, "link", userID, "", provider, err)
	}
	return e.links.Link(ctx, userID, provider, data)
}

// SignInFromCallback completes the authorization flow identified by state
// and signs in with the linked account it yields.
func (e *Engine) SignInFromCallback(ctx context.Context, provider, code, state string) (*LinkedIdentity, error) {
	data, err := e.identityFromCallback(ctx, provider, code, state)
	if err != nil {
		return nil, e.links.shared.emitFailure(ctx, "sign_in", "", "", provider, err)
	}
	return e.links.SignInWithLinkedAccount(ctx, provider, data)
}

func (e *Engine) identityFromCallback(ctx context.Context, provider, code, state string) (IdentityData, error) {
	res, err := e.flows.Complete(ctx, provider, code, state)
	if err != nil {
		return IdentityData{}, err
	}

	data := IdentityData{
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		TokenExpiry:  res.Tokens.Expiry,
	}
	if res.IDClaims != nil {
		data.ProviderUserID = res.IDClaims.Subject
		data.Email = res.IDClaims.Email
	}
	if data.ProviderUserID == "" {
		profile, err := e.flows.UserInfo(ctx, provider, res.Tokens.AccessToken)
		if err != nil {
			return IdentityData{}, err
		}
		data.ProviderUserID = profile.ProviderUserID
		if data.Email == "" {
			data.Email = profile.Email
		}
	}
	if strings.TrimSpace(data.ProviderUserID) == "" {
		return IdentityData{}, ErrIdentityInvalid
	}
	return data, nil
}
