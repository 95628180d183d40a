package autherr

import (
	"fmt"
	"strings"
)

// OAuth 2.0 error codes (RFC 6749 §5.2 and §4.1.2.1), plus two local codes
// for failures that never reached a well-formed provider response.
const (
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidClient           = "invalid_client"
	CodeInvalidGrant            = "invalid_grant"
	CodeUnauthorizedClient      = "unauthorized_client"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeInvalidScope            = "invalid_scope"
	CodeAccessDenied            = "access_denied"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeServerError             = "server_error"
	CodeTemporarilyUnavailable  = "temporarily_unavailable"
	CodeInvalidToken            = "invalid_token"

	CodeNetwork = "network_error"
	CodeUnknown = "unknown_error"
)

var knownCodes = map[string]struct{}{
	CodeInvalidRequest:          {},
	CodeInvalidClient:           {},
	CodeInvalidGrant:            {},
	CodeUnauthorizedClient:      {},
	CodeUnsupportedGrantType:    {},
	CodeInvalidScope:            {},
	CodeAccessDenied:            {},
	CodeUnsupportedResponseType: {},
	CodeServerError:             {},
	CodeTemporarilyUnavailable:  {},
	CodeInvalidToken:            {},
}

// ProviderError is a failure reported by, or while talking to, an
// authorization server. It matches [ErrProvider] through errors.Is.
type ProviderError struct {
	Provider    string
	Op          string
	Code        string
	Description string
	StatusCode  int
	Err         error
}

// ClassifyCode maps a raw provider error string onto the OAuth 2.0
// vocabulary. Unknown codes become [CodeUnknown].
func ClassifyCode(raw string) string {
	code := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := knownCodes[code]; ok {
		return code
	}
	return CodeUnknown
}

// ClassifyStatus derives an error code from an HTTP status when the
// provider did not send a JSON error body.
func ClassifyStatus(status int) string {
	switch {
	case status == 400:
		return CodeInvalidRequest
	case status == 401:
		return CodeInvalidClient
	case status == 403:
		return CodeAccessDenied
	case status == 429 || status == 503:
		return CodeTemporarilyUnavailable
	case status >= 500:
		return CodeServerError
	default:
		return CodeUnknown
	}
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "provider %q: %s", e.Provider, e.Code)
	if e.Description != "" {
		b.WriteString(" (")
		b.WriteString(e.Description)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// Retryable reports whether the provider signalled a transient condition.
// Retrying is left to callers.
func (e *ProviderError) Retryable() bool {
	switch e.Code {
	case CodeServerError, CodeTemporarilyUnavailable, CodeNetwork:
		return true
	}
	return false
}
