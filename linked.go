package goVerify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/goVerify/oauth"
	"github.com/MrEthical07/goVerify/vault"
)

// TokenAuthority refreshes and revokes provider tokens. *oauth.FlowManager
// implements it.
type TokenAuthority interface {
	Refresh(ctx context.Context, provider, refreshToken string) (*oauth.Tokens, error)
	Revoke(ctx context.Context, provider, token string) error
}

// LinkDeps are the collaborators of a LinkedIdentityManager.
type LinkDeps struct {
	Vault vault.Vault
	// Tokens is required by RefreshIfNeeded. Without it Unlink skips revocation.
	Tokens     TokenAuthority
	Accounts   AccountDirectory
	Dispatcher *Dispatcher
	Metrics    *Metrics
	Now        func() time.Time
}

// LinkedIdentityManager binds external provider accounts to local users and
// keeps the reverse index that sign-in resolves through. An external
// account is linked to at most one local user, and a user has at most one
// link per provider.
type LinkedIdentityManager struct {
	cfg    Config
	shared *shared
	tokens TokenAuthority
}

// NewLinkedIdentityManager validates cfg and wires a manager over deps.
func NewLinkedIdentityManager(cfg Config, deps LinkDeps) (*LinkedIdentityManager, error) {
	cfg = cloneConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Vault == nil {
		return nil, ErrEngineNotReady
	}
	sh := newShared(deps.Vault, deps.Dispatcher, deps.Metrics, deps.Accounts, cfg.Logger, deps.Now)
	return newLinkedIdentityManager(cfg, sh, deps.Tokens), nil
}

func newLinkedIdentityManager(cfg Config, sh *shared, tokens TokenAuthority) *LinkedIdentityManager {
	return &LinkedIdentityManager{cfg: cfg, shared: sh, tokens: tokens}
}

// List returns the user's linked identities.
func (m *LinkedIdentityManager) List(ctx context.Context, userID string) ([]LinkedIdentity, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	return m.shared.loadLinks(ctx, userID)
}

// Get returns the user's link for provider or ErrNotLinked.
func (m *LinkedIdentityManager) Get(ctx context.Context, userID, provider string) (*LinkedIdentity, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	links, err := m.shared.loadLinks(ctx, userID)
	if err != nil {
		return nil, err
	}
	i := findLink(links, provider)
	if i < 0 {
		return nil, ErrNotLinked
	}
	out := links[i]
	return &out, nil
}

/*
====================================
LINK
====================================
*/

// Link attaches the external account described by data to userID.
func (m *LinkedIdentityManager) Link(ctx context.Context, userID, provider string, data IdentityData) (*LinkedIdentity, error) {
	const op = "link"
	if err := m.validateLink(userID, provider, data); err != nil {
		return nil, m.shared.emitFailure(ctx, op, userID, "", provider, err)
	}

	identity, err := m.link(ctx, userID, provider, data)
	if err != nil {
		return nil, m.shared.emitFailure(ctx, op, userID, "", provider, err)
	}

	m.shared.metrics.Inc(MetricAccountLinked)
	summary := identity.Summary()
	m.shared.emit(ctx, Event{
		Kind:     EventAccountLinked,
		UserID:   userID,
		Provider: provider,
		Identity: &summary,
	})
	return identity, nil
}

func (m *LinkedIdentityManager) validateLink(userID, provider string, data IdentityData) error {
	if err := validUser(userID); err != nil {
		return err
	}
	return m.validateIdentity(provider, data)
}

func (m *LinkedIdentityManager) link(ctx context.Context, userID, provider string, data IdentityData) (*LinkedIdentity, error) {
	unlockUser, err := m.shared.locks.Lock(ctx, userLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer unlockUser()

	links, err := m.shared.loadLinks(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(links) >= m.cfg.Link.MaxLinkedIdentities {
		return nil, ErrLinkCapExceeded
	}
	if findLink(links, provider) >= 0 {
		return nil, ErrAlreadyLinked
	}

	unlockIndex, err := m.shared.locks.Lock(ctx, indexLockKey(provider, data.ProviderUserID))
	if err != nil {
		return nil, err
	}
	defer unlockIndex()

	indexKey := vault.LinkedIndexKey(provider, data.ProviderUserID)
	claimed, err := m.shared.swap(ctx, indexKey, nil, []byte(userID))
	if err != nil {
		return nil, err
	}
	if !claimed {
		owner, ok, err := m.shared.retrieve(ctx, indexKey)
		if err != nil {
			return nil, err
		}
		// An index entry left behind for this same user is reused.
		if !ok || string(owner) != userID {
			return nil, ErrIdentityLinkedElsewhere
		}
	}

	now := m.shared.now()
	identity := LinkedIdentity{
		LocalUserID:    userID,
		Provider:       provider,
		ProviderUserID: data.ProviderUserID,
		Email:          data.Email,
		AccessToken:    data.AccessToken,
		RefreshToken:   data.RefreshToken,
		TokenExpiry:    data.TokenExpiry,
		LinkedAt:       now,
		LastUsed:       now,
	}
	if err := m.shared.saveLinks(ctx, userID, append(links, identity)); err != nil {
		if claimed {
			m.shared.rollback(ctx, indexKey, nil)
		}
		return nil, err
	}
	return &identity, nil
}

/*
====================================
UNLINK
====================================
*/

// Unlink removes the user's link for provider. The provider tokens are
// revoked on a best-effort basis once the link is gone.
func (m *LinkedIdentityManager) Unlink(ctx context.Context, userID, provider string) error {
	const op = "unlink"
	if err := validUser(userID); err != nil {
		return m.shared.emitFailure(ctx, op, userID, "", provider, err)
	}

	removed, err := m.unlink(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, ErrLastAuthMethod) {
			m.shared.metrics.Inc(MetricPolicyRejected)
		}
		return m.shared.emitFailure(ctx, op, userID, "", provider, err)
	}

	m.revokeQuietly(ctx, removed)

	m.shared.metrics.Inc(MetricAccountUnlinked)
	summary := removed.Summary()
	m.shared.emit(ctx, Event{
		Kind:     EventAccountUnlinked,
		UserID:   userID,
		Provider: provider,
		Identity: &summary,
	})
	return nil
}

func (m *LinkedIdentityManager) unlink(ctx context.Context, userID, provider string) (LinkedIdentity, error) {
	unlockUser, err := m.shared.locks.Lock(ctx, userLockKey(userID))
	if err != nil {
		return LinkedIdentity{}, err
	}
	defer unlockUser()

	links, err := m.shared.loadLinks(ctx, userID)
	if err != nil {
		return LinkedIdentity{}, err
	}
	i := findLink(links, provider)
	if i < 0 {
		return LinkedIdentity{}, ErrNotLinked
	}
	removed := links[i]

	if m.cfg.Policy.RequireAuthMethod {
		enrollments, err := m.shared.loadEnrollments(ctx, userID)
		if err != nil {
			return removed, err
		}
		am, err := m.shared.countAuthMethods(ctx, userID, enrollments, links)
		if err != nil {
			return removed, err
		}
		if am.total() <= 1 {
			return removed, ErrLastAuthMethod
		}
	}
	if err := ctx.Err(); err != nil {
		return removed, err
	}

	unlockIndex, err := m.shared.locks.Lock(ctx, indexLockKey(provider, removed.ProviderUserID))
	if err != nil {
		return removed, err
	}
	defer unlockIndex()

	indexKey := vault.LinkedIndexKey(provider, removed.ProviderUserID)
	released, err := m.shared.swap(ctx, indexKey, []byte(userID), nil)
	if err != nil {
		return removed, err
	}

	rest := append(links[:i:i], links[i+1:]...)
	if err := m.shared.saveLinks(ctx, userID, rest); err != nil {
		if released {
			m.shared.rollback(ctx, indexKey, []byte(userID))
		}
		return removed, err
	}
	return removed, nil
}

func (m *LinkedIdentityManager) revokeQuietly(ctx context.Context, identity LinkedIdentity) {
	if m.tokens == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, token := range []string{identity.RefreshToken, identity.AccessToken} {
		if token == "" {
			continue
		}
		if err := m.tokens.Revoke(ctx, identity.Provider, token); err != nil {
			m.shared.logger.WarnContext(ctx, "token revocation failed",
				slog.String("provider", identity.Provider),
				slog.String("user_id", identity.LocalUserID),
				slog.Any("error", err))
			return
		}
	}
}

/*
====================================
SIGN IN AND REFRESH
====================================
*/

// SignInWithLinkedAccount resolves the external account in data to its
// local user, replaces the link's tokens with the fresh ones and stamps
// LastUsed. The success event is published only after the update is stored.
func (m *LinkedIdentityManager) SignInWithLinkedAccount(ctx context.Context, provider string, data IdentityData) (*LinkedIdentity, error) {
	const op = "sign_in"
	userID, identity, err := m.signIn(ctx, provider, data)
	if err != nil {
		return nil, m.shared.emitFailure(ctx, op, userID, "", provider, err)
	}

	m.shared.metrics.Inc(MetricLinkedSignIn)
	summary := identity.Summary()
	m.shared.emit(ctx, Event{
		Kind:     EventVerificationSucceeded,
		UserID:   identity.LocalUserID,
		Provider: provider,
		Payload:  map[string]string{"operation": op},
		Identity: &summary,
	})
	return identity, nil
}

func (m *LinkedIdentityManager) validateIdentity(provider string, data IdentityData) error {
	if strings.TrimSpace(provider) == "" || strings.TrimSpace(data.ProviderUserID) == "" || data.AccessToken == "" {
		return ErrIdentityInvalid
	}
	if !data.TokenExpiry.IsZero() && !data.TokenExpiry.After(m.shared.now()) {
		return ErrIdentityTokenExpired
	}
	return nil
}

func (m *LinkedIdentityManager) signIn(ctx context.Context, provider string, data IdentityData) (string, *LinkedIdentity, error) {
	if err := m.validateIdentity(provider, data); err != nil {
		return "", nil, err
	}
	owner, ok, err := m.shared.retrieve(ctx, vault.LinkedIndexKey(provider, data.ProviderUserID))
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ErrNotLinked
	}
	userID := string(owner)

	unlockUser, err := m.shared.locks.Lock(ctx, userLockKey(userID))
	if err != nil {
		return userID, nil, err
	}
	defer unlockUser()

	links, err := m.shared.loadLinks(ctx, userID)
	if err != nil {
		return userID, nil, err
	}
	i := findLink(links, provider)
	if i < 0 || links[i].ProviderUserID != data.ProviderUserID {
		return userID, nil, ErrNotLinked
	}
	links[i].AccessToken = data.AccessToken
	if data.RefreshToken != "" {
		links[i].RefreshToken = data.RefreshToken
	}
	links[i].TokenExpiry = data.TokenExpiry
	if data.Email != "" {
		links[i].Email = data.Email
	}
	links[i].LastUsed = m.shared.now()
	if err := m.shared.saveLinks(ctx, userID, links); err != nil {
		return userID, nil, err
	}
	out := links[i]
	return userID, &out, nil
}

// RefreshIfNeeded refreshes the link's tokens when they expire within the
// configured buffer. It reports whether a refresh happened. Tokens without
// an expiry never need one. A link without a refresh token fails with
// ErrRefreshNotSupported once it is due.
func (m *LinkedIdentityManager) RefreshIfNeeded(ctx context.Context, userID, provider string) (*LinkedIdentity, bool, error) {
	const op = "refresh"
	if err := validUser(userID); err != nil {
		return nil, false, m.shared.emitFailure(ctx, op, userID, "", provider, err)
	}

	unlock, err := m.shared.locks.Lock(ctx, refreshLockKey(userID, provider))
	if err != nil {
		return nil, false, m.shared.emitFailure(ctx, op, userID, "", provider, err)
	}
	defer unlock()

	identity, refreshed, err := m.refresh(ctx, userID, provider)
	if err != nil {
		return nil, false, m.shared.emitFailure(ctx, op, userID, "", provider, err)
	}
	if !refreshed {
		return identity, false, nil
	}

	m.shared.metrics.Inc(MetricTokensRefreshed)
	summary := identity.Summary()
	m.shared.emit(ctx, Event{
		Kind:     EventTokensRefreshed,
		UserID:   userID,
		Provider: provider,
		Identity: &summary,
	})
	return identity, true, nil
}

func (m *LinkedIdentityManager) refresh(ctx context.Context, userID, provider string) (*LinkedIdentity, bool, error) {
	links, err := m.shared.loadLinks(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	i := findLink(links, provider)
	if i < 0 {
		return nil, false, ErrNotLinked
	}
	current := links[i]
	if current.TokenExpiry.IsZero() || m.shared.now().Add(m.cfg.Link.RefreshBuffer).Before(current.TokenExpiry) {
		return &current, false, nil
	}
	if current.RefreshToken == "" {
		return nil, false, ErrRefreshNotSupported
	}
	if m.tokens == nil {
		return nil, false, ErrEngineNotReady
	}

	tokens, err := m.tokens.Refresh(ctx, provider, current.RefreshToken)
	if err != nil {
		m.shared.metrics.Inc(MetricRefreshFailure)
		return nil, false, err
	}

	// The provider may already have rotated the refresh token, so the new
	// pair is persisted even if ctx ends now.
	ctx = context.WithoutCancel(ctx)
	unlockUser, err := m.shared.locks.Lock(ctx, userLockKey(userID))
	if err != nil {
		return nil, false, err
	}
	defer unlockUser()

	links, err = m.shared.loadLinks(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	i = findLink(links, provider)
	if i < 0 || links[i].ProviderUserID != current.ProviderUserID {
		return nil, false, ErrNotLinked
	}
	links[i].AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		links[i].RefreshToken = tokens.RefreshToken
	}
	links[i].TokenExpiry = tokens.Expiry
	if err := m.shared.saveLinks(ctx, userID, links); err != nil {
		return nil, false, err
	}
	out := links[i]
	return &out, true, nil
}
