package goVerify

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricTOTPSuccess)

	if got := m.Value(MetricTOTPSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap.Counters)
	}
}

func TestMetricsNilIsNoop(t *testing.T) {
	var m *Metrics
	m.Inc(MetricSMSSent)
	m.Observe(MetricVerifyLatency, time.Millisecond)
	if m.Value(MetricSMSSent) != 0 || m.Enabled() {
		t.Fatal("nil metrics must record nothing")
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricSMSSent)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricSMSSent); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	for _, d := range []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	} {
		m.Observe(MetricVerifyLatency, d)
	}
	// Only the verification latency is a histogram.
	m.Observe(MetricTOTPSuccess, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricVerifyLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsLatencyDisabledOmitsHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricVerifyLatency, time.Millisecond)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricVerifyLatency]; ok {
		t.Fatal("histogram must be absent when latency is disabled")
	}
	if _, ok := snap.Counters[MetricVerifyLatency]; ok {
		t.Fatal("latency must not appear as a counter")
	}
}

func TestEngineCountsVerifications(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.EnableLatencyHistograms = true
	env := newTestEnv(t, cfg)
	ctx := context.Background()
	fm := env.engine.Factors()

	res, err := fm.Enable(ctx, "u1", MethodTOTP)
	if err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	code := env.totpCode(t, res.Secret)
	if err := fm.Verify(ctx, "u1", MethodTOTP, code); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	_ = fm.Verify(ctx, "u1", MethodTOTP, wrongCode(code))

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricFactorEnabled] != 1 {
		t.Fatalf("expected one factor enabled, got %d", snap.Counters[MetricFactorEnabled])
	}
	if snap.Counters[MetricTOTPSuccess] != 1 || snap.Counters[MetricTOTPFailure] != 1 {
		t.Fatalf("unexpected totp counters %v", snap.Counters)
	}
	var observed uint64
	for _, v := range snap.Histograms[MetricVerifyLatency] {
		observed += v
	}
	if observed != 2 {
		t.Fatalf("expected two latency samples, got %d", observed)
	}
}
