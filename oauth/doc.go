// Package oauth implements the OAuth 2.0 Authorization Code flow with PKCE
// (RFC 7636) on top of golang.org/x/oauth2.
//
// A FlowManager issues authorization requests with a fresh S256 proof key, a
// CSRF state and, for OpenID Connect providers, a nonce. Pending flows live in
// a ChallengeStore until the callback redeems them exactly once. Provider
// error responses are classified into autherr.ProviderError using the
// standard OAuth 2.0 error vocabulary.
package oauth
