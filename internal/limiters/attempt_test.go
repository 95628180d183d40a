package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goVerify/internal/rate"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestAttemptLimiterExhaustsAfterMax(t *testing.T) {
	ctx := context.Background()
	l := NewAttemptLimiter(rate.NewMemoryCounter(), "totp", Config{MaxAttempts: 3})

	for i := 0; i < 2; i++ {
		if err := l.RecordFailure(ctx, "u1"); err != nil {
			t.Fatalf("failure %d: unexpected %v", i, err)
		}
	}
	if err := l.Check(ctx, "u1"); err != nil {
		t.Fatalf("expected attempts left, got %v", err)
	}
	if err := l.RecordFailure(ctx, "u1"); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected ErrAttemptsExceeded, got %v", err)
	}
	if err := l.Check(ctx, "u1"); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected check to fail, got %v", err)
	}
	if err := l.Check(ctx, "u2"); err != nil {
		t.Fatalf("other subjects must be unaffected, got %v", err)
	}

	_ = l.Reset(ctx, "u1")
	if err := l.Check(ctx, "u1"); err != nil {
		t.Fatalf("expected reset, got %v", err)
	}
}

func TestAttemptLimiterScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	counter := rate.NewMemoryCounter()
	totp := NewAttemptLimiter(counter, "totp", Config{MaxAttempts: 1})
	backup := NewAttemptLimiter(counter, "backup", Config{MaxAttempts: 1})

	_ = totp.RecordFailure(ctx, "u1")
	if err := backup.Check(ctx, "u1"); err != nil {
		t.Fatalf("backup scope must not see totp failures, got %v", err)
	}
}

func TestAttemptLimiterRedisWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	l := NewAttemptLimiter(rate.NewRedisCounter(rdb, ""), "backup", Config{MaxAttempts: 2, Cooldown: 30 * time.Second})
	_ = l.RecordFailure(ctx, "u1")
	if err := l.RecordFailure(ctx, "u1"); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected exceeded, got %v", err)
	}

	mr.FastForward(31 * time.Second)
	if err := l.Check(ctx, "u1"); err != nil {
		t.Fatalf("expected window to elapse, got %v", err)
	}
}

func TestNilAttemptLimiterIsPermissive(t *testing.T) {
	var l *AttemptLimiter
	if err := l.Check(context.Background(), "u1"); err != nil {
		t.Fatalf("nil limiter should allow, got %v", err)
	}
	if err := l.RecordFailure(context.Background(), "u1"); err != nil {
		t.Fatalf("nil limiter should allow, got %v", err)
	}
}
