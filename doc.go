// Package goVerify is the credential-verification core of an account system:
// TOTP, SMS and backup-code second factors, OAuth 2.0 Authorization Code
// with PKCE, and external identities linked to local users.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goVerify is the public surface. It exposes [Engine], [Builder], [Config],
// the two managers ([FactorManager], [LinkedIdentityManager]) and value
// types. Secrets and per-user state live behind the vault.Vault interface;
// attempt counting, keyed locking and the verification flows live under
// internal/ and are never exported.
//
// # Consistency
//
// Operations on the same (user, method) pair are serialized, and every
// update of a user's enrollment set or link set happens under a per-user
// lock taken after the pair lock. Single-use material (backup codes, SMS
// sessions, TOTP counters) is consumed with compare-and-swap when the vault
// supports it, so concurrent verifications succeed at most once.
//
// # Events
//
// Every state change publishes exactly one [Event] and every failure
// publishes a verification_failed event naming the operation. Sinks run on
// the dispatcher's goroutine and never block callers.
package goVerify
