package sms

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/goVerify/autherr"
)

var (
	// ErrThrottled is returned when a phone number exceeded its send budget.
	ErrThrottled = autherr.New(autherr.KindAttemptsExceeded, "sms send throttled")
	// ErrUnknownSession is returned when a session id was never issued or already consumed.
	ErrUnknownSession = autherr.New(autherr.KindValidation, "unknown sms session")
	// ErrInvalidPhone is returned for an empty phone number.
	ErrInvalidPhone = autherr.New(autherr.KindValidation, "invalid phone number")
)

// Channel delivers one-time codes and checks them. The channel owns the
// code; callers only keep the session id it returns.
type Channel interface {
	SendCode(ctx context.Context, phoneNumber string) (sessionID string, err error)
	VerifyCode(ctx context.Context, phoneNumber, code, sessionID string) (bool, error)
}

// Sender hands a rendered message to a carrier.
type Sender interface {
	Send(ctx context.Context, phoneNumber, message string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, phoneNumber, message string) error

func (f SenderFunc) Send(ctx context.Context, phoneNumber, message string) error {
	return f(ctx, phoneNumber, message)
}

// LogSender writes messages to a structured logger instead of a carrier.
// Useful for development; never use it where codes must stay secret.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, phoneNumber, message string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "sms message", slog.String("to", maskPhone(phoneNumber)), slog.String("body", message))
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
