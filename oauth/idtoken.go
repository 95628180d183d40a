package oauth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// IDTokenClaims are the OpenID Connect claims checked during a flow.
type IDTokenClaims struct {
	Nonce string `json:"nonce,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// ParseIDTokenUnverified decodes the claims of raw without checking its signature.
func ParseIDTokenUnverified(raw string) (*IDTokenClaims, error) {
	claims := &IDTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	return claims, nil
}

// ParseIDToken verifies raw with keyFunc and checks its audience.
func ParseIDToken(raw string, keyFunc jwt.Keyfunc, audience string, opts ...jwt.ParserOption) (*IDTokenClaims, error) {
	claims := &IDTokenClaims{}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	opts = append(opts, jwt.WithExpirationRequired())
	if _, err := jwt.ParseWithClaims(raw, claims, keyFunc, opts...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	return claims, nil
}
