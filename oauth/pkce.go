package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"math/big"
)

const (
	// MethodS256 is the only challenge method this package issues.
	MethodS256 = "S256"

	MinVerifierLength     = 43
	MaxVerifierLength     = 128
	DefaultVerifierLength = 128

	// unreservedChars is the RFC 3986 unreserved set allowed in a code verifier.
	unreservedChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
)

// PKCE holds one proof key: the secret verifier and its S256 challenge.
type PKCE struct {
	CodeVerifier  string `json:"code_verifier"`
	CodeChallenge string `json:"code_challenge"`
	Method        string `json:"method"`
}

// GeneratePKCE returns a fresh 128-character verifier and its challenge.
func GeneratePKCE() (PKCE, error) {
	return generatePKCE(rand.Reader, DefaultVerifierLength)
}

func generatePKCE(r io.Reader, length int) (PKCE, error) {
	if length < MinVerifierLength || length > MaxVerifierLength {
		return PKCE{}, ErrInvalidVerifier
	}
	buf := make([]byte, length)
	max := big.NewInt(int64(len(unreservedChars)))
	for i := range buf {
		n, err := rand.Int(r, max)
		if err != nil {
			return PKCE{}, err
		}
		buf[i] = unreservedChars[n.Int64()]
	}
	verifier := string(buf)
	return PKCE{CodeVerifier: verifier, CodeChallenge: S256Challenge(verifier), Method: MethodS256}, nil
}

// S256Challenge returns BASE64URL(SHA256(verifier)) without padding.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ValidVerifier reports whether v satisfies the RFC 7636 length and
// character set rules.
func ValidVerifier(v string) bool {
	if len(v) < MinVerifierLength || len(v) > MaxVerifierLength {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return false
		}
	}
	return true
}
