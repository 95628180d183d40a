// Package autherr defines the error taxonomy shared by every goVerify package.
//
// Each failure is an [*Error] carrying a [Kind]. Callers match broad classes
// with the kind sentinels:
//
//	if errors.Is(err, autherr.ErrAttemptsExceeded) { ... }
//
// and specific failures with the sentinels re-exported by the root package
// (for example goVerify.ErrBackupCodeInvalid). Authorization-server failures
// are [*ProviderError] values carrying the OAuth 2.0 error code.
package autherr
