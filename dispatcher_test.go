package goVerify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Enabled: false}, nil, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{Kind: EventFactorEnabled})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestEngineWithDispatcherDisabledEmitsNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Dispatcher.Enabled = false
	env := newTestEnv(t, cfg)

	if _, err := env.engine.Factors().Enable(context.Background(), "u1", MethodBackupCodes); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if got := len(env.drain()); got != 0 {
		t.Fatalf("expected no events, got %d", got)
	}
}

func TestDispatcherDropIfFullDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(DispatcherConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, nil, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{Kind: "e1"})
	d.Emit(context.Background(), Event{Kind: "e2"})

	start := time.Now()
	d.Emit(context.Background(), Event{Kind: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestDispatcherBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(DispatcherConfig{Enabled: true, BufferSize: 1, DropIfFull: false}, nil, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{Kind: "e1"})
	d.Emit(context.Background(), Event{Kind: "e2"})

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{Kind: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestDispatcherBlockedEmitHonoursContext(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(DispatcherConfig{Enabled: true, BufferSize: 1}, nil, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{Kind: "e1"})
	d.Emit(context.Background(), Event{Kind: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{Kind: "e3"})
	if d.Dropped() != 1 {
		t.Fatalf("expected one drop after deadline, got %d", d.Dropped())
	}
}

func TestDispatcherCloseDeliversQueued(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(DispatcherConfig{Enabled: true, BufferSize: 64}, nil, sink)
	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{Kind: EventFactorEnabled})
	}
	d.Close()
	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected 50 deliveries, got %d", got)
	}
}

func TestDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Enabled: true, BufferSize: 4, DropIfFull: true}, nil, &countingSink{})

	d.Emit(context.Background(), Event{Kind: "e1"})
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{Kind: "e2"})
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	good := &countingSink{}
	d := NewDispatcher(DispatcherConfig{Enabled: true, BufferSize: 4}, logger,
		SinkFunc(func(context.Context, Event) { panic("boom") }),
		good,
	)

	d.Emit(context.Background(), Event{Kind: EventFactorEnabled})
	d.Emit(context.Background(), Event{Kind: EventFactorDisabled})
	d.Close()

	if got := good.count.Load(); got != 2 {
		t.Fatalf("expected healthy sink to receive both events, got %d", got)
	}
	if !strings.Contains(logs.String(), "event sink panicked") {
		t.Fatalf("expected panic to be logged, got %q", logs.String())
	}
}

func TestJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{
		ID:        "ev-1",
		Kind:      EventFactorEnabled,
		UserID:    "u1",
		Method:    MethodTOTP,
		Timestamp: time.Now().UTC(),
	})
	sink.Emit(context.Background(), Event{ID: "ev-2", Kind: EventFactorDisabled, UserID: "u1"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if ev.Kind != EventFactorEnabled || ev.UserID != "u1" || ev.Method != MethodTOTP {
		t.Fatalf("unexpected decoded event %+v", ev)
	}
}

func TestSlogSinkLogsFailuresAtWarn(t *testing.T) {
	var buf syncBuffer
	sink := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	sink.Emit(context.Background(), Event{
		Kind:    EventVerificationFailed,
		UserID:  "u1",
		Method:  MethodSMS,
		Error:   "validation",
		Payload: map[string]string{"operation": "verify"},
	})

	out := buf.String()
	for _, want := range []string{`"level":"WARN"`, `"user_id":"u1"`, `"operation":"verify"`, `"error":"validation"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestEventsCarryRequestContext(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.33"), "test-agent/1.0")

	if _, err := env.engine.Factors().Enable(ctx, "u1", MethodBackupCodes); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}

	events := eventsOfKind(env.drain(), EventFactorEnabled)
	if len(events) != 1 {
		t.Fatalf("expected one factor_enabled event, got %d", len(events))
	}
	ev := events[0]
	if ev.ID == "" || ev.Timestamp.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", ev)
	}
	if ev.Payload["client_ip"] != "198.51.100.33" || ev.Payload["user_agent"] != "test-agent/1.0" {
		t.Fatalf("expected request context in payload, got %v", ev.Payload)
	}
}

func TestEventsCarryNoSecrets(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	fm := env.engine.Factors()

	totpRes, err := fm.Enable(ctx, "u1", MethodTOTP)
	if err != nil {
		t.Fatalf("Enable TOTP failed: %v", err)
	}
	backupRes, err := fm.Enable(ctx, "u1", MethodBackupCodes)
	if err != nil {
		t.Fatalf("Enable backup codes failed: %v", err)
	}
	if err := fm.Verify(ctx, "u1", MethodBackupCodes, backupRes.BackupCodes[0]); err != nil {
		t.Fatalf("Verify backup code failed: %v", err)
	}
	if _, err := env.engine.Links().Link(ctx, "u1", "github", IdentityData{
		ProviderUserID: "gh-1",
		AccessToken:    "access-secret-value",
		RefreshToken:   "refresh-secret-value",
		TokenExpiry:    env.clock.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	needles := append([]string{totpRes.Secret, "access-secret-value", "refresh-secret-value"}, backupRes.BackupCodes...)
	events := env.drain()
	if len(events) == 0 {
		t.Fatal("expected events")
	}
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("marshal event: %v", err)
		}
		for _, needle := range needles {
			if strings.Contains(string(data), needle) {
				t.Fatalf("secret %q leaked in %s event", needle, ev.Kind)
			}
		}
	}
}
