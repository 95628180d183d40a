package autherr

import (
	"errors"
	"strings"
)

// Kind classifies a verification failure.
type Kind uint8

const (
	// KindUnknown is the zero kind; it never matches a kind sentinel.
	KindUnknown Kind = iota
	// KindValidation covers malformed or incorrect codes and mismatched state.
	KindValidation
	// KindExpired covers sessions and challenges past their deadline.
	KindExpired
	// KindAttemptsExceeded is terminal for the session it was raised on.
	KindAttemptsExceeded
	// KindCapExceeded is raised when a linked-identity limit is reached.
	KindCapExceeded
	// KindProvider covers network and authorization-server failures.
	KindProvider
	// KindConfiguration covers missing secrets, unsupported algorithms and policy violations.
	KindConfiguration
	// KindRefreshNotSupported is raised when a provider cannot refresh tokens.
	KindRefreshNotSupported
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindExpired:
		return "expired"
	case KindAttemptsExceeded:
		return "attempts_exceeded"
	case KindCapExceeded:
		return "cap_exceeded"
	case KindProvider:
		return "provider"
	case KindConfiguration:
		return "configuration"
	case KindRefreshNotSupported:
		return "refresh_not_supported"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every verification operation.
//
// Errors created with [New] are specific sentinels; they match themselves by
// identity and the kind sentinel of their Kind through [errors.Is].
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error

	generic bool
}

// Kind sentinels. errors.Is(err, ErrValidation) holds for any *Error of that kind.
var (
	ErrValidation          = &Error{Kind: KindValidation, Msg: "validation failed", generic: true}
	ErrExpired             = &Error{Kind: KindExpired, Msg: "expired", generic: true}
	ErrAttemptsExceeded    = &Error{Kind: KindAttemptsExceeded, Msg: "attempts exceeded", generic: true}
	ErrCapExceeded         = &Error{Kind: KindCapExceeded, Msg: "cap exceeded", generic: true}
	ErrProvider            = &Error{Kind: KindProvider, Msg: "provider error", generic: true}
	ErrConfiguration       = &Error{Kind: KindConfiguration, Msg: "configuration error", generic: true}
	ErrRefreshNotSupported = &Error{Kind: KindRefreshNotSupported, Msg: "refresh not supported", generic: true}
)

// New returns a specific sentinel of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches an operation name to err, keeping its kind when err is an *Error.
// A nil err yields nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindOf(err)
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithKind wraps an arbitrary error under the given kind.
func WithKind(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(e.Kind.String())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality against kind sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || !t.generic {
		return false
	}
	return e.Kind != KindUnknown && e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error or *ProviderError in err's chain.
func KindOf(err error) Kind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return KindProvider
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Kind != KindUnknown {
			return e.Kind
		}
		if e.Err != nil {
			return KindOf(e.Err)
		}
	}
	return KindUnknown
}

// Code returns a stable audit code for err: the provider error code for
// provider failures, the kind name otherwise, or "" for nil.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Code != "" {
		return pe.Code
	}
	return KindOf(err).String()
}
