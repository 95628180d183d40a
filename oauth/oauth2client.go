package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goVerify/autherr"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const maxResponseBody = 1 << 20

// ProviderConfig describes one OAuth 2.0 authorization server.
type ProviderConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
	Scopes       []string

	UserInfoURL      string
	RevocationURL    string
	IntrospectionURL string

	// SupportsRefresh is false for providers that never issue refresh tokens.
	SupportsRefresh bool
	// OIDC marks providers that return an id_token and honour nonce.
	OIDC bool
	// UserIDField names the userinfo member holding the stable account id.
	// Defaults to "sub".
	UserIDField string
	// IDTokenKeyFunc enables id_token signature verification.
	IDTokenKeyFunc jwt.Keyfunc

	HTTPClient *http.Client
}

// OAuth2Client is a Client backed by golang.org/x/oauth2.
type OAuth2Client struct {
	cfg  ProviderConfig
	http *http.Client
}

// NewOAuth2Client validates cfg and returns a client.
func NewOAuth2Client(cfg ProviderConfig) (*OAuth2Client, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, autherr.WithKind(autherr.KindConfiguration, "oauth.NewOAuth2Client", errors.New("provider name is required"))
	}
	if cfg.ClientID == "" {
		return nil, autherr.WithKind(autherr.KindConfiguration, "oauth.NewOAuth2Client", fmt.Errorf("provider %s: client id is required", cfg.Name))
	}
	if cfg.Endpoint.AuthURL == "" || cfg.Endpoint.TokenURL == "" {
		return nil, autherr.WithKind(autherr.KindConfiguration, "oauth.NewOAuth2Client", fmt.Errorf("provider %s: auth and token urls are required", cfg.Name))
	}
	if cfg.UserIDField == "" {
		cfg.UserIDField = "sub"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &OAuth2Client{cfg: cfg, http: hc}, nil
}

func (c *OAuth2Client) Name() string { return c.cfg.Name }

// Config returns the provider configuration.
func (c *OAuth2Client) Config() ProviderConfig { return c.cfg }

func (c *OAuth2Client) oauthConfig(redirectURI string, scopes []string) *oauth2.Config {
	if len(scopes) == 0 {
		scopes = c.cfg.Scopes
	}
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     c.cfg.Endpoint,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
	}
}

func (c *OAuth2Client) withHTTP(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

func (c *OAuth2Client) AuthorizationURL(p AuthorizationParams) (string, error) {
	if p.PKCE.CodeChallenge == "" || p.PKCE.Method != MethodS256 {
		return "", autherr.WithKind(autherr.KindConfiguration, "oauth.AuthorizationURL", errors.New("an S256 pkce challenge is required"))
	}
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", p.PKCE.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", p.PKCE.Method),
	}
	if p.Nonce != "" {
		opts = append(opts, oauth2.SetAuthURLParam("nonce", p.Nonce))
	}
	return c.oauthConfig(p.RedirectURI, p.Scopes).AuthCodeURL(p.State, opts...), nil
}

func (c *OAuth2Client) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*Tokens, error) {
	tok, err := c.oauthConfig(redirectURI, nil).Exchange(c.withHTTP(ctx), code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, c.classify(ctx, "exchange", err)
	}
	return tokensFrom(tok), nil
}

func (c *OAuth2Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	if !c.cfg.SupportsRefresh {
		return nil, ErrRefreshNotSupported
	}
	if refreshToken == "" {
		return nil, ErrRefreshNotSupported
	}
	src := c.oauthConfig("", nil).TokenSource(c.withHTTP(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, c.classify(ctx, "refresh", err)
	}
	return tokensFrom(tok), nil
}

func (c *OAuth2Client) UserInfo(ctx context.Context, accessToken string) (*Profile, error) {
	if c.cfg.UserInfoURL == "" {
		return nil, autherr.WithKind(autherr.KindConfiguration, "oauth.UserInfo", fmt.Errorf("provider %s has no userinfo endpoint", c.cfg.Name))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, autherr.WithKind(autherr.KindConfiguration, "oauth.UserInfo", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return nil, c.classify(ctx, "userinfo", err)
	}
	if status != http.StatusOK {
		return nil, c.statusError("userinfo", status, body)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &autherr.ProviderError{Provider: c.cfg.Name, Op: "userinfo", Code: autherr.CodeServerError, StatusCode: status, Err: err}
	}
	p := &Profile{Raw: raw, ProviderUserID: stringClaim(raw[c.cfg.UserIDField])}
	p.Email = stringClaim(raw["email"])
	p.Name = stringClaim(raw["name"])
	if p.Name == "" {
		p.Name = stringClaim(raw["login"])
	}
	return p, nil
}

func (c *OAuth2Client) Revoke(ctx context.Context, token string) (bool, error) {
	if c.cfg.RevocationURL == "" {
		return false, nil
	}
	body, status, err := c.postForm(ctx, c.cfg.RevocationURL, url.Values{"token": {token}})
	if err != nil {
		return false, c.classify(ctx, "revoke", err)
	}
	// RFC 7009 §2.2: an unknown or already revoked token still answers 200.
	if status != http.StatusOK {
		return false, c.statusError("revoke", status, body)
	}
	return true, nil
}

func (c *OAuth2Client) Validate(ctx context.Context, accessToken string) (bool, error) {
	switch {
	case c.cfg.IntrospectionURL != "":
		body, status, err := c.postForm(ctx, c.cfg.IntrospectionURL, url.Values{"token": {accessToken}, "token_type_hint": {"access_token"}})
		if err != nil {
			return false, c.classify(ctx, "introspect", err)
		}
		if status != http.StatusOK {
			return false, c.statusError("introspect", status, body)
		}
		var resp struct {
			Active bool `json:"active"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return false, &autherr.ProviderError{Provider: c.cfg.Name, Op: "introspect", Code: autherr.CodeServerError, StatusCode: status, Err: err}
		}
		return resp.Active, nil
	case c.cfg.UserInfoURL != "":
		_, err := c.UserInfo(ctx, accessToken)
		var pe *autherr.ProviderError
		if errors.As(err, &pe) && (pe.StatusCode == http.StatusUnauthorized || pe.Code == autherr.CodeInvalidToken) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, ErrValidationUnsupported
	}
}

// VerifyIDToken checks the signature when a key function is configured and
// otherwise only decodes the claims.
func (c *OAuth2Client) VerifyIDToken(raw string) (*IDTokenClaims, error) {
	if c.cfg.IDTokenKeyFunc == nil {
		return ParseIDTokenUnverified(raw)
	}
	return ParseIDToken(raw, c.cfg.IDTokenKeyFunc, c.cfg.ClientID)
}

func (c *OAuth2Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(url.QueryEscape(c.cfg.ClientID), url.QueryEscape(c.cfg.ClientSecret))
	return c.do(req)
}

func (c *OAuth2Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// classify maps transport and token endpoint failures onto ProviderError.
// Context cancellation is returned unchanged.
func (c *OAuth2Client) classify(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		pe := &autherr.ProviderError{Provider: c.cfg.Name, Op: op, Description: re.ErrorDescription, Err: err}
		if re.Response != nil {
			pe.StatusCode = re.Response.StatusCode
		}
		if re.ErrorCode != "" {
			pe.Code = autherr.ClassifyCode(re.ErrorCode)
		} else {
			pe.Code = autherr.ClassifyStatus(pe.StatusCode)
		}
		return pe
	}
	return &autherr.ProviderError{Provider: c.cfg.Name, Op: op, Code: autherr.CodeNetwork, Err: err}
}

func (c *OAuth2Client) statusError(op string, status int, body []byte) error {
	pe := &autherr.ProviderError{Provider: c.cfg.Name, Op: op, StatusCode: status, Code: autherr.ClassifyStatus(status)}
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		pe.Code = autherr.ClassifyCode(payload.Error)
		pe.Description = payload.ErrorDescription
	}
	if status == http.StatusUnauthorized && pe.Code == autherr.CodeInvalidClient && op == "userinfo" {
		pe.Code = autherr.CodeInvalidToken
	}
	return pe
}

func tokensFrom(tok *oauth2.Token) *Tokens {
	out := &Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = id
	}
	return out
}

func stringClaim(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

var (
	_ Client          = (*OAuth2Client)(nil)
	_ IDTokenVerifier = (*OAuth2Client)(nil)
)
