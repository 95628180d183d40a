package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goVerify/internal/rate"
)

const (
	defaultMaxAttempts = 5
	defaultCooldown    = time.Minute
)

var (
	// ErrAttemptsExceeded is returned once a subject has used its failure budget.
	ErrAttemptsExceeded = errors.New("verification attempts exceeded")
	// ErrUnavailable wraps counter backend failures.
	ErrUnavailable = errors.New("attempt limiter unavailable")
)

// Config holds configurable thresholds for an attempt limiter.
type Config struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// AttemptLimiter counts verification failures per subject inside a fixed
// window. Each limiter owns one scope ("totp", "backup", ...) in the counter
// key space.
type AttemptLimiter struct {
	counter     rate.Counter
	scope       string
	maxAttempts int64
	cooldown    time.Duration
}

// NewAttemptLimiter creates a limiter. Zero-value fields in cfg fall back to
// defaults (5 attempts / 60s).
func NewAttemptLimiter(counter rate.Counter, scope string, cfg Config) *AttemptLimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultMaxAttempts
	}
	cd := cfg.Cooldown
	if cd <= 0 {
		cd = defaultCooldown
	}
	return &AttemptLimiter{counter: counter, scope: scope, maxAttempts: int64(max), cooldown: cd}
}

func (l *AttemptLimiter) key(subject string) string {
	return "att:" + l.scope + ":" + subject
}

// Check fails when the subject has no attempts left in the current window.
func (l *AttemptLimiter) Check(ctx context.Context, subject string) error {
	if l == nil || l.counter == nil {
		return nil
	}
	count, err := l.counter.Count(ctx, l.key(subject))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrAttemptsExceeded
	}
	return nil
}

// RecordFailure counts one failure. It returns ErrAttemptsExceeded when this
// failure exhausts the budget.
func (l *AttemptLimiter) RecordFailure(ctx context.Context, subject string) error {
	if l == nil || l.counter == nil {
		return nil
	}
	count, err := l.counter.Hit(ctx, l.key(subject), l.cooldown)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrAttemptsExceeded
	}
	return nil
}

// Reset clears the subject's failures, typically after a success.
func (l *AttemptLimiter) Reset(ctx context.Context, subject string) error {
	if l == nil || l.counter == nil {
		return nil
	}
	if err := l.counter.Reset(ctx, l.key(subject)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
