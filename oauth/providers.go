package oauth

import (
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

// GitHub returns a configuration for GitHub OAuth apps. GitHub issues no
// refresh tokens for OAuth apps and has no RFC 7009 revocation endpoint.
func GitHub(clientID, clientSecret string) ProviderConfig {
	return ProviderConfig{
		Name:         "github",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     github.Endpoint,
		Scopes:       []string{"read:user", "user:email"},
		UserInfoURL:  "https://api.github.com/user",
		UserIDField:  "id",
	}
}

// Google returns an OpenID Connect configuration for Google accounts.
func Google(clientID, clientSecret string) ProviderConfig {
	return ProviderConfig{
		Name:            "google",
		ClientID:        clientID,
		ClientSecret:    clientSecret,
		Endpoint:        google.Endpoint,
		Scopes:          []string{"openid", "email", "profile"},
		UserInfoURL:     "https://openidconnect.googleapis.com/v1/userinfo",
		RevocationURL:   "https://oauth2.googleapis.com/revoke",
		SupportsRefresh: true,
		OIDC:            true,
	}
}
