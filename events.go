package goVerify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// EventKind enumerates the lifecycle events the managers publish.
type EventKind string

const (
	EventFactorEnabled         EventKind = "factor_enabled"
	EventFactorDisabled        EventKind = "factor_disabled"
	EventVerificationSucceeded EventKind = "verification_succeeded"
	EventVerificationFailed    EventKind = "verification_failed"
	EventBackupCodesGenerated  EventKind = "backup_codes_generated"
	EventAccountLinked         EventKind = "account_linked"
	EventAccountUnlinked       EventKind = "account_unlinked"
	EventTokensRefreshed       EventKind = "tokens_refreshed"
)

// Event is immutable once emitted. Exactly one of Method and Provider is
// usually set, depending on whether the event concerns a local factor or a
// linked identity.
type Event struct {
	ID        string            `json:"id"`
	Kind      EventKind         `json:"kind"`
	UserID    string            `json:"user_id,omitempty"`
	Method    Method            `json:"method,omitempty"`
	Provider  string            `json:"provider,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`

	Enrollment *FactorEnrollment `json:"enrollment,omitempty"`
	Identity   *IdentitySummary  `json:"identity,omitempty"`
}

// Sink receives dispatched events. Emit is called from the dispatcher's
// worker goroutine, one event at a time.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink forwards events to a buffered channel.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink returns a sink whose channel holds buffer events. Emit
// blocks while the channel is full until ctx is done.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON document per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink returns a sink writing to w. Writes are serialized.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// SlogSink logs events as structured records; failures at warn level.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink returns a sink logging to logger, or slog.Default when nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Emit(ctx context.Context, event Event) {
	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("kind", string(event.Kind)),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Method != "" {
		attrs = append(attrs, slog.String("method", string(event.Method)))
	}
	if event.Provider != "" {
		attrs = append(attrs, slog.String("provider", event.Provider))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	for k, v := range event.Payload {
		attrs = append(attrs, slog.String(k, v))
	}

	level := slog.LevelInfo
	if event.Kind == EventVerificationFailed {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "verification event", attrs...)
}
