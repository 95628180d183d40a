package goVerify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func BenchmarkVerifyTOTPMemory(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b, false)
	defer cleanup()
	benchmarkVerifyTOTP(b, engine)
}

func BenchmarkVerifyTOTPRedis(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b, true)
	defer cleanup()
	benchmarkVerifyTOTP(b, engine)
}

func benchmarkVerifyTOTP(b *testing.B, engine *Engine) {
	ctx := context.Background()
	res, err := engine.Factors().Enable(ctx, "u1", MethodTOTP)
	if err != nil {
		b.Fatalf("enable failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		code, err := engine.Factors().Engine().Code(res.Secret, time.Now())
		if err != nil {
			b.Fatalf("code failed: %v", err)
		}
		if err := engine.Factors().Verify(ctx, "u1", MethodTOTP, code); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func BenchmarkVerifyBackupCodeMiss(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b, true)
	defer cleanup()

	ctx := context.Background()
	if _, err := engine.Factors().Enable(ctx, "u1", MethodBackupCodes); err != nil {
		b.Fatalf("enable failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = engine.Factors().Verify(ctx, "u1", MethodBackupCodes, "AAAAAAAAAA")
	}
}

func BenchmarkGenerateBackupCodes(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b, false)
	defer cleanup()

	ctx := context.Background()
	if _, err := engine.Factors().Enable(ctx, "u1", MethodBackupCodes); err != nil {
		b.Fatalf("enable failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Factors().GenerateBackupCodes(ctx, "u1"); err != nil {
			b.Fatalf("generate failed: %v", err)
		}
	}
}

// newBenchmarkEngine disables replay protection and attempt budgets so a
// single user can be verified b.N times.
func newBenchmarkEngine(tb testing.TB, withRedis bool) (*Engine, func()) {
	tb.Helper()

	cfg := DefaultConfig()
	cfg.TOTP.EnforceReplayProtection = false
	cfg.TOTP.MaxAttempts = 1 << 30
	cfg.BackupCodes.MaxAttempts = 1 << 30
	cfg.Metrics.Enabled = false
	cfg.Dispatcher.Enabled = false

	builder := New().WithConfig(cfg)
	cleanup := func() {}
	if withRedis {
		mr, err := miniredis.Run()
		if err != nil {
			tb.Fatalf("miniredis.Run failed: %v", err)
		}
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		builder = builder.WithRedis(rdb)
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
	}

	engine, err := builder.Build()
	if err != nil {
		cleanup()
		tb.Fatalf("Build failed: %v", err)
	}
	return engine, func() {
		engine.Close()
		cleanup()
	}
}
