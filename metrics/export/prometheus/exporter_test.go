package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goVerify "github.com/MrEthical07/goVerify"
)

type fakeSource struct {
	snapshot goVerify.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goVerify.MetricsSnapshot { return f.snapshot }
func (f fakeSource) EventsDropped() uint64                     { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goVerify.MetricsSnapshot{
			Counters:   map[goVerify.MetricID]uint64{},
			Histograms: map[goVerify.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goVerify.MetricsSnapshot{
			Counters: map[goVerify.MetricID]uint64{
				goVerify.MetricTOTPSuccess: 7,
			},
			Histograms: map[goVerify.MetricID][]uint64{
				goVerify.MetricVerifyLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"goverify_totp_success_total 7",
		"goverify_sms_sent_total 0",
		"goverify_verify_latency_seconds_bucket{le=\"0.005\"} 1",
		"goverify_verify_latency_seconds_bucket{le=\"+Inf\"} 36",
		"goverify_verify_latency_seconds_count 36",
		"goverify_events_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderOmitsHistogramWhenLatencyDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goVerify.MetricsSnapshot{
			Counters:   map[goVerify.MetricID]uint64{goVerify.MetricSMSSent: 1},
			Histograms: map[goVerify.MetricID][]uint64{},
		},
	})

	out := exp.Render()
	if strings.Contains(out, "goverify_verify_latency_seconds") {
		t.Fatalf("unexpected histogram in output:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goVerify.MetricsSnapshot{
			Counters:   map[goVerify.MetricID]uint64{goVerify.MetricFactorEnabled: 1},
			Histograms: map[goVerify.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRenderFromEngine(t *testing.T) {
	engine, err := goVerify.New().WithMetricsEnabled(true).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Factors().Enable(context.Background(), "u1", goVerify.MethodBackupCodes); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}

	out := NewPrometheusExporter(engine).Render()
	if !strings.Contains(out, "goverify_factor_enabled_total 1") {
		t.Fatalf("expected factor enabled counter, got:\n%s", out)
	}
	if !strings.Contains(out, "goverify_backup_code_regenerated_total 1") {
		t.Fatalf("expected backup code counter, got:\n%s", out)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goVerify.MetricsSnapshot{
			Counters: map[goVerify.MetricID]uint64{
				goVerify.MetricTOTPSuccess:    1000,
				goVerify.MetricTOTPFailure:    40,
				goVerify.MetricSMSSent:        800,
				goVerify.MetricSMSFailure:     10,
				goVerify.MetricAccountLinked:  20,
				goVerify.MetricRefreshFailure: 3,
			},
			Histograms: map[goVerify.MetricID][]uint64{
				goVerify.MetricVerifyLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
