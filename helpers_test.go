package goVerify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goVerify/oauth"
	"github.com/MrEthical07/goVerify/sms"
	"github.com/MrEthical07/goVerify/vault"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0).UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeAccounts struct {
	mu        sync.Mutex
	phones    map[string]string
	passwords map[string]bool
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{phones: map[string]string{}, passwords: map[string]bool{}}
}

func (a *fakeAccounts) VerifiedPhone(_ context.Context, userID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phones[userID], nil
}

func (a *fakeAccounts) HasPassword(_ context.Context, userID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.passwords[userID], nil
}

func (a *fakeAccounts) setPassword(userID string, ok bool) {
	a.mu.Lock()
	a.passwords[userID] = ok
	a.mu.Unlock()
}

// inbox captures the messages a LocalChannel sends.
type inbox struct {
	mu   sync.Mutex
	last map[string]string
}

func newInbox() *inbox { return &inbox{last: map[string]string{}} }

func (b *inbox) Send(_ context.Context, phone, message string) error {
	b.mu.Lock()
	b.last[phone] = message
	b.mu.Unlock()
	return nil
}

func (b *inbox) code(t *testing.T, phone string) string {
	t.Helper()
	b.mu.Lock()
	msg := b.last[phone]
	b.mu.Unlock()
	fields := strings.Fields(msg)
	if len(fields) == 0 {
		t.Fatalf("no message delivered to %s", phone)
	}
	return fields[len(fields)-1]
}

// wrongCode returns a code of the same shape that differs in every digit.
func wrongCode(code string) string {
	out := []byte(code)
	for i, c := range out {
		out[i] = '0' + (c-'0'+1)%10
	}
	return string(out)
}

type testEnv struct {
	engine   *Engine
	clock    *testClock
	accounts *fakeAccounts
	inbox    *inbox
	vault    *vault.Memory
	events   *ChannelSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Dispatcher.DropIfFull = false
	return cfg
}

func newTestEnv(t *testing.T, cfg Config, clients ...oauth.Client) *testEnv {
	t.Helper()
	return newTestEnvWithClock(t, cfg, newTestClock(), clients...)
}

func newTestEnvWithClock(t *testing.T, cfg Config, clock *testClock, clients ...oauth.Client) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:    clock,
		accounts: newFakeAccounts(),
		inbox:    newInbox(),
		vault:    vault.NewMemory(),
		events:   NewChannelSink(256),
	}
	channel := sms.NewLocalChannel(env.inbox, sms.LocalConfig{SendsPerWindow: 1000, Burst: 100}).WithClock(env.clock.Now)

	engine, err := New().
		WithConfig(cfg).
		WithVault(env.vault).
		WithSMSChannel(channel).
		WithAccountDirectory(env.accounts).
		WithOAuthClients(clients...).
		WithSink(env.events).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// drain closes the dispatcher and returns every event delivered so far.
func (env *testEnv) drain() []Event {
	env.engine.Close()
	var out []Event
	for {
		select {
		case ev := <-env.events.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventsOfKind(events []Event, kind EventKind) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (env *testEnv) totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := env.engine.Factors().Engine().Code(secret, env.clock.Now())
	if err != nil {
		t.Fatalf("Code failed: %v", err)
	}
	return code
}
