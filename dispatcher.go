package goVerify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Dispatcher fans events out to subscribed sinks from a single worker
// goroutine. Emit never blocks on a sink.
type Dispatcher struct {
	cfg    DispatcherConfig
	logger *slog.Logger

	mu     sync.RWMutex
	sinks  map[uint64]Sink
	nextID uint64

	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher. It returns nil when cfg.Enabled is
// false; a nil *Dispatcher accepts and discards events.
func NewDispatcher(cfg DispatcherConfig, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		cfg:    cfg,
		logger: logger,
		sinks:  make(map[uint64]Sink),
		ch:     make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	for _, s := range sinks {
		d.Subscribe(s)
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Subscribe registers sink and returns a function that removes it.
func (d *Dispatcher) Subscribe(sink Sink) (unsubscribe func()) {
	if d == nil || sink == nil {
		return func() {}
	}
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.sinks[id] = sink
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.sinks, id)
		d.mu.Unlock()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	d.mu.RLock()
	sinks := make([]Sink, 0, len(d.sinks))
	for _, s := range d.sinks {
		sinks = append(sinks, s)
	}
	d.mu.RUnlock()

	for _, s := range sinks {
		d.safeEmit(s, event)
	}
}

func (d *Dispatcher) safeEmit(s Sink, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event sink panicked", slog.String("kind", string(event.Kind)), slog.Any("panic", r))
		}
	}()
	s.Emit(context.Background(), event)
}

// Emit queues event. With DropIfFull a full buffer drops the event and
// counts it; otherwise Emit waits for room or for ctx to end.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			if d.dropped.Add(1) == 1 {
				d.logger.Warn("event buffer full; dropping events", slog.Int("buffer", d.cfg.BufferSize))
			}
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.done:
	}
}

// Close stops accepting events and waits until queued ones are delivered.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns the number of events discarded under backpressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
