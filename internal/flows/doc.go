// Package flows contains pure-function orchestrators for factor verification.
//
// Each flow function (RunVerifyTOTP, RunVerifySMS, RunVerifyBackupCode,
// RunGenerateBackupCodes) accepts a typed dependency struct and returns
// results without side-effects beyond those dependencies. The records
// persisted by these flows are encoded with the versioned binary codecs in
// records.go.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the vault, the attempt limiters and
// metrics. They do NOT own any of these resources; ownership stays with the
// factor manager, which also emits the lifecycle events.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goVerify (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
