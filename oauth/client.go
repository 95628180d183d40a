package oauth

import (
	"context"
	"time"
)

// Tokens is the result of a code exchange or refresh.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry"`
	IDToken      string    `json:"id_token,omitempty"`
}

// Profile is the subset of a userinfo response the managers rely on.
type Profile struct {
	ProviderUserID string         `json:"provider_user_id"`
	Email          string         `json:"email,omitempty"`
	Name           string         `json:"name,omitempty"`
	Raw            map[string]any `json:"raw,omitempty"`
}

// AuthorizationParams are the inputs of an authorization request.
type AuthorizationParams struct {
	RedirectURI string
	Scopes      []string
	State       string
	Nonce       string
	PKCE        PKCE
}

// Client talks to one authorization server.
type Client interface {
	// Name is the provider key used in vault keys and events.
	Name() string
	AuthorizationURL(p AuthorizationParams) (string, error)
	ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*Tokens, error)
	// Refresh returns ErrRefreshNotSupported for providers without refresh tokens.
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
	UserInfo(ctx context.Context, accessToken string) (*Profile, error)
	// Revoke reports false with a nil error when the provider has no
	// revocation endpoint.
	Revoke(ctx context.Context, token string) (bool, error)
	Validate(ctx context.Context, accessToken string) (bool, error)
}

// IDTokenVerifier is implemented by clients that can check id_token
// signatures. Clients without it have their id_tokens parsed unverified,
// which OpenID Connect permits for tokens received directly from the token
// endpoint over TLS.
type IDTokenVerifier interface {
	VerifyIDToken(raw string) (*IDTokenClaims, error)
}
