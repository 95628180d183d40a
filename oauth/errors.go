package oauth

import "github.com/MrEthical07/goVerify/autherr"

var (
	// ErrStateMismatch rejects a callback whose state differs from the issued one.
	ErrStateMismatch = autherr.New(autherr.KindValidation, "oauth state mismatch")
	// ErrNonceMismatch rejects an id_token whose nonce differs from the issued one.
	ErrNonceMismatch = autherr.New(autherr.KindValidation, "oauth nonce mismatch")
	// ErrChallengeNotFound is returned for a state that was never issued or was already redeemed.
	ErrChallengeNotFound = autherr.New(autherr.KindValidation, "oauth challenge not found")
	// ErrChallengeExpired is returned when the callback arrives after the challenge deadline.
	ErrChallengeExpired = autherr.New(autherr.KindExpired, "oauth challenge expired")
	// ErrProviderMismatch is returned when a state is redeemed against another provider.
	ErrProviderMismatch = autherr.New(autherr.KindValidation, "oauth provider mismatch")
	// ErrInvalidVerifier is returned for a code verifier outside RFC 7636 bounds.
	ErrInvalidVerifier = autherr.New(autherr.KindValidation, "invalid pkce code verifier")
	// ErrInvalidIDToken is returned for an id_token that cannot be parsed or verified.
	ErrInvalidIDToken = autherr.New(autherr.KindValidation, "invalid id_token")
	// ErrUnknownProvider is returned when no client is registered under a name.
	ErrUnknownProvider = autherr.New(autherr.KindConfiguration, "unknown oauth provider")
	// ErrRefreshNotSupported is returned by providers that issue no refresh tokens.
	ErrRefreshNotSupported = autherr.New(autherr.KindRefreshNotSupported, "provider does not support token refresh")
	// ErrValidationUnsupported is returned when a provider exposes neither introspection nor userinfo.
	ErrValidationUnsupported = autherr.New(autherr.KindConfiguration, "provider cannot validate tokens")
	// ErrChallengeBackend wraps challenge store failures.
	ErrChallengeBackend = autherr.New(autherr.KindConfiguration, "oauth challenge store unavailable")
)
