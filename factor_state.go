package goVerify

import "sync"

// FactorState is the in-flight state of one (user, method) pair. It is not
// persisted; a pair nobody is working on is StateIdle.
type FactorState interface {
	factorState()
}

// StateIdle means no operation is running on the pair.
type StateIdle struct{}

// StateEnabling is held while Enable runs.
type StateEnabling struct{}

// StateDisabling is held while Disable runs.
type StateDisabling struct{}

// StateVerifying is held while a code is checked.
type StateVerifying struct{}

// StateGeneratingBackupCodes is held while a new backup code set is written.
type StateGeneratingBackupCodes struct{}

// StateError holds the failure of the last operation on the pair until the
// next one starts.
type StateError struct {
	Op  string
	Err error
}

func (StateIdle) factorState()                  {}
func (StateEnabling) factorState()              {}
func (StateDisabling) factorState()             {}
func (StateVerifying) factorState()             {}
func (StateGeneratingBackupCodes) factorState() {}
func (StateError) factorState()                 {}

type factorStates struct {
	mu     sync.Mutex
	states map[string]FactorState
}

func newFactorStates() *factorStates {
	return &factorStates{states: make(map[string]FactorState)}
}

func (f *factorStates) get(userID string, method Method) FactorState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.states[pairLockKey(userID, method)]; ok {
		return s
	}
	return StateIdle{}
}

func (f *factorStates) set(userID string, method Method, s FactorState) {
	key := pairLockKey(userID, method)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, idle := s.(StateIdle); idle {
		delete(f.states, key)
		return
	}
	f.states[key] = s
}

// finish moves the pair to Idle or to Error depending on err.
func (f *factorStates) finish(userID string, method Method, op string, err error) {
	if err != nil {
		f.set(userID, method, StateError{Op: op, Err: err})
		return
	}
	f.set(userID, method, StateIdle{})
}
