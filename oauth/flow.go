package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/MrEthical07/goVerify/autherr"
)

const (
	defaultChallengeTTL = 10 * time.Minute
	stateBytes          = 32
)

// FlowConfig tunes a FlowManager.
type FlowConfig struct {
	// ChallengeTTL bounds the time between Begin and the callback.
	ChallengeTTL time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// AuthorizationRequest is what Begin hands back to the caller.
type AuthorizationRequest struct {
	URL       string
	State     string
	ExpiresAt time.Time
}

// Result is a completed authorization.
type Result struct {
	Provider string
	Tokens   *Tokens
	// IDClaims is set when the provider returned an id_token.
	IDClaims *IDTokenClaims
}

// FlowManager drives Authorization Code with PKCE against registered clients.
// It is safe for concurrent use.
type FlowManager struct {
	clients map[string]Client
	store   ChallengeStore
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
	tracker *flowTracker
}

// NewFlowManager registers clients by Name. A nil store uses a
// MemoryChallengeStore.
func NewFlowManager(store ChallengeStore, cfg FlowConfig, clients ...Client) (*FlowManager, error) {
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = defaultChallengeTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if store == nil {
		store = NewMemoryChallengeStore().WithClock(cfg.Now)
	}
	m := &FlowManager{
		clients: make(map[string]Client, len(clients)),
		store:   store,
		ttl:     cfg.ChallengeTTL,
		logger:  cfg.Logger,
		now:     cfg.Now,
		tracker: newFlowTracker(cfg.ChallengeTTL, cfg.Now),
	}
	for _, c := range clients {
		if c == nil {
			continue
		}
		if _, dup := m.clients[c.Name()]; dup {
			return nil, autherr.WithKind(autherr.KindConfiguration, "oauth.NewFlowManager", fmt.Errorf("provider %s registered twice", c.Name()))
		}
		m.clients[c.Name()] = c
	}
	return m, nil
}

// Providers lists registered provider names in sorted order.
func (m *FlowManager) Providers() []string {
	out := make([]string, 0, len(m.clients))
	for name := range m.clients {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Client returns the registered client for provider.
func (m *FlowManager) Client(provider string) (Client, error) {
	c, ok := m.clients[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return c, nil
}

// State returns the last observed state of the flow identified by its state token.
func (m *FlowManager) State(state string) FlowState {
	return m.tracker.get(state)
}

// BuildAuthorizationRequest renders the provider's authorization URL with
// response_type=code, the CSRF state and the S256 challenge.
func (m *FlowManager) BuildAuthorizationRequest(provider, redirectURI string, scopes []string, state string, pkce PKCE, nonce string) (string, error) {
	c, err := m.Client(provider)
	if err != nil {
		return "", err
	}
	if state == "" {
		return "", autherr.WithKind(autherr.KindConfiguration, "oauth.BuildAuthorizationRequest", errors.New("state is required"))
	}
	if !ValidVerifier(pkce.CodeVerifier) || S256Challenge(pkce.CodeVerifier) != pkce.CodeChallenge {
		return "", ErrInvalidVerifier
	}
	return c.AuthorizationURL(AuthorizationParams{
		RedirectURI: redirectURI,
		Scopes:      scopes,
		State:       state,
		Nonce:       nonce,
		PKCE:        pkce,
	})
}

// Begin issues a new flow: it generates PKCE parameters, a state token and,
// for OpenID Connect providers, a nonce; stores them until the callback; and
// returns the authorization URL.
func (m *FlowManager) Begin(ctx context.Context, provider, redirectURI string, scopes []string) (*AuthorizationRequest, error) {
	c, err := m.Client(provider)
	if err != nil {
		return nil, err
	}

	pkce, err := GeneratePKCE()
	if err != nil {
		return nil, fmt.Errorf("oauth: generate pkce: %w", err)
	}
	state, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("oauth: generate state: %w", err)
	}
	m.tracker.set(state, FlowInitiating{Provider: provider})

	var nonce string
	if isOIDC(c) {
		if nonce, err = randomToken(); err != nil {
			return nil, fmt.Errorf("oauth: generate nonce: %w", err)
		}
	}

	u, err := m.BuildAuthorizationRequest(provider, redirectURI, scopes, state, pkce, nonce)
	if err != nil {
		m.tracker.set(state, FlowError{Provider: provider, Err: err})
		return nil, err
	}

	flow := &PendingFlow{
		Provider:    provider,
		RedirectURI: redirectURI,
		Scopes:      scopes,
		State:       state,
		Nonce:       nonce,
		PKCE:        pkce,
		ExpiresAt:   m.now().Add(m.ttl),
	}
	if err := m.store.Save(ctx, flow); err != nil {
		m.tracker.set(state, FlowError{Provider: provider, Err: err})
		return nil, err
	}

	m.tracker.set(state, FlowAwaitingRedirect{Provider: provider, ExpiresAt: flow.ExpiresAt})
	return &AuthorizationRequest{URL: u, State: state, ExpiresAt: flow.ExpiresAt}, nil
}

// Complete redeems the pending flow issued under returnedState and exchanges
// code. An unknown or already redeemed state is rejected before any network
// call.
func (m *FlowManager) Complete(ctx context.Context, provider, code, returnedState string) (*Result, error) {
	flow, err := m.store.Take(ctx, returnedState)
	if err != nil {
		if errors.Is(err, ErrChallengeNotFound) {
			return nil, ErrStateMismatch
		}
		return nil, err
	}
	if flow.Provider != provider {
		m.tracker.set(flow.State, FlowError{Provider: provider, Err: ErrProviderMismatch})
		return nil, ErrProviderMismatch
	}
	return m.CompleteFlow(ctx, code, flow, returnedState)
}

// CompleteFlow exchanges code for tokens. The returned state must equal the
// issued one; a mismatch is rejected unconditionally, whatever the code.
func (m *FlowManager) CompleteFlow(ctx context.Context, code string, flow *PendingFlow, returnedState string) (*Result, error) {
	if flow == nil || flow.State == "" || subtle.ConstantTimeCompare([]byte(flow.State), []byte(returnedState)) != 1 {
		return nil, ErrStateMismatch
	}
	provider := flow.Provider

	if !m.now().Before(flow.ExpiresAt) {
		m.tracker.set(flow.State, FlowError{Provider: provider, Err: ErrChallengeExpired})
		return nil, ErrChallengeExpired
	}
	if code == "" {
		err := autherr.WithKind(autherr.KindValidation, "oauth.CompleteFlow", errors.New("authorization code is empty"))
		m.tracker.set(flow.State, FlowError{Provider: provider, Err: err})
		return nil, err
	}
	c, err := m.Client(provider)
	if err != nil {
		return nil, err
	}

	m.tracker.set(flow.State, FlowExchangingCode{Provider: provider})
	tokens, err := c.ExchangeCode(ctx, code, flow.PKCE.CodeVerifier, flow.RedirectURI)
	if err != nil {
		m.tracker.set(flow.State, FlowError{Provider: provider, Err: err})
		return nil, err
	}

	res := &Result{Provider: provider, Tokens: tokens}
	if tokens.IDToken != "" {
		claims, err := m.idClaims(c, tokens.IDToken)
		if err != nil {
			m.tracker.set(flow.State, FlowError{Provider: provider, Err: err})
			return nil, err
		}
		if flow.Nonce != "" && subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(flow.Nonce)) != 1 {
			m.tracker.set(flow.State, FlowError{Provider: provider, Err: ErrNonceMismatch})
			return nil, ErrNonceMismatch
		}
		res.IDClaims = claims
	}

	m.tracker.set(flow.State, FlowComplete{Provider: provider})
	return res, nil
}

// Refresh makes exactly one refresh attempt. Retry policy belongs to the caller.
func (m *FlowManager) Refresh(ctx context.Context, provider, refreshToken string) (*Tokens, error) {
	c, err := m.Client(provider)
	if err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, ErrRefreshNotSupported
	}
	return c.Refresh(ctx, refreshToken)
}

// Revoke asks the provider to revoke token. Providers without a revocation
// endpoint report success and a warning is logged.
func (m *FlowManager) Revoke(ctx context.Context, provider, token string) error {
	c, err := m.Client(provider)
	if err != nil {
		return err
	}
	supported, err := c.Revoke(ctx, token)
	if err != nil {
		return err
	}
	if !supported {
		m.logger.WarnContext(ctx, "provider has no revocation endpoint; token left to expire", slog.String("provider", provider))
	}
	return nil
}

// Validate reports whether accessToken is still accepted by the provider.
func (m *FlowManager) Validate(ctx context.Context, provider, accessToken string) (bool, error) {
	c, err := m.Client(provider)
	if err != nil {
		return false, err
	}
	return c.Validate(ctx, accessToken)
}

// UserInfo fetches the provider profile for accessToken.
func (m *FlowManager) UserInfo(ctx context.Context, provider, accessToken string) (*Profile, error) {
	c, err := m.Client(provider)
	if err != nil {
		return nil, err
	}
	return c.UserInfo(ctx, accessToken)
}

func (m *FlowManager) idClaims(c Client, raw string) (*IDTokenClaims, error) {
	if v, ok := c.(IDTokenVerifier); ok {
		return v.VerifyIDToken(raw)
	}
	return ParseIDTokenUnverified(raw)
}

func isOIDC(c Client) bool {
	oc, ok := c.(*OAuth2Client)
	return ok && oc.cfg.OIDC
}

func randomToken() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
