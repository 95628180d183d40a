// Package totp implements RFC 6238 time-based one-time passwords on top of
// the RFC 4226 HOTP truncation, together with the RFC 4648 base-32 codec
// used to exchange shared secrets with authenticator apps.
//
// Engines are immutable once built and hold no per-user state. Replay
// protection is the caller's job: ValidateCounter reports which counter
// matched so it can be recorded.
package totp
