package oauth

import (
	"sync"
	"time"
)

// FlowState is the position of one authorization flow in its lifecycle:
// Idle → Initiating → AwaitingRedirect → ExchangingCode → {Complete, Error}.
// The concrete types below are the only implementations.
type FlowState interface {
	flowState()
}

type (
	// FlowIdle is reported for states the manager does not know.
	FlowIdle struct{}
	// FlowInitiating is set while the authorization URL is built.
	FlowInitiating struct {
		Provider string
	}
	// FlowAwaitingRedirect waits for the callback until ExpiresAt.
	FlowAwaitingRedirect struct {
		Provider  string
		ExpiresAt time.Time
	}
	// FlowExchangingCode is set while the code is traded for tokens.
	FlowExchangingCode struct {
		Provider string
	}
	// FlowComplete is terminal; the callback yielded an identity.
	FlowComplete struct {
		Provider string
	}
	// FlowError is terminal and holds the failure that ended the flow.
	FlowError struct {
		Provider string
		Err      error
	}
)

func (FlowIdle) flowState()             {}
func (FlowInitiating) flowState()       {}
func (FlowAwaitingRedirect) flowState() {}
func (FlowExchangingCode) flowState()   {}
func (FlowComplete) flowState()         {}
func (FlowError) flowState()            {}

type trackedFlow struct {
	state FlowState
	at    time.Time
}

// flowTracker remembers the last state of each flow for a retention period.
type flowTracker struct {
	mu        sync.Mutex
	flows     map[string]trackedFlow
	retention time.Duration
	now       func() time.Time
}

func newFlowTracker(retention time.Duration, now func() time.Time) *flowTracker {
	return &flowTracker{flows: make(map[string]trackedFlow), retention: retention, now: now}
}

func (t *flowTracker) set(id string, s FlowState) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for k, f := range t.flows {
		if now.Sub(f.at) > t.retention {
			delete(t.flows, k)
		}
	}
	t.flows[id] = trackedFlow{state: s, at: now}
}

func (t *flowTracker) get(id string) FlowState {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.flows[id]
	if !ok || t.now().Sub(f.at) > t.retention {
		return FlowIdle{}
	}
	return f.state
}
