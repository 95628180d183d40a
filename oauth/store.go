package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingFlow is an issued authorization request awaiting its callback.
type PendingFlow struct {
	Provider    string    `json:"provider"`
	RedirectURI string    `json:"redirect_uri"`
	Scopes      []string  `json:"scopes,omitempty"`
	State       string    `json:"state"`
	Nonce       string    `json:"nonce,omitempty"`
	PKCE        PKCE      `json:"pkce"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ChallengeStore keeps pending flows until their callback. Take is single
// use: a state can be redeemed at most once.
type ChallengeStore interface {
	Save(ctx context.Context, flow *PendingFlow) error
	Take(ctx context.Context, state string) (*PendingFlow, error)
}

// MemoryChallengeStore is an in-process ChallengeStore.
type MemoryChallengeStore struct {
	mu    sync.Mutex
	flows map[string]PendingFlow
	now   func() time.Time
}

func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{flows: make(map[string]PendingFlow), now: time.Now}
}

// WithClock replaces time.Now for expiry sweeps.
func (s *MemoryChallengeStore) WithClock(now func() time.Time) *MemoryChallengeStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *MemoryChallengeStore) Save(ctx context.Context, flow *PendingFlow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, f := range s.flows {
		if !now.Before(f.ExpiresAt) {
			delete(s.flows, k)
		}
	}
	s.flows[flow.State] = *flow
	return nil
}

func (s *MemoryChallengeStore) Take(ctx context.Context, state string) (*PendingFlow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[state]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	delete(s.flows, state)
	return &f, nil
}

// RedisChallengeStore shares pending flows across processes. Entries expire
// with the challenge and are redeemed with GETDEL.
type RedisChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisChallengeStore creates a store. An empty prefix defaults to "gvpk".
func NewRedisChallengeStore(redisClient redis.UniversalClient, prefix string) *RedisChallengeStore {
	if prefix == "" {
		prefix = "gvpk"
	}
	return &RedisChallengeStore{redis: redisClient, prefix: prefix, now: time.Now}
}

// WithClock replaces time.Now when computing entry TTLs.
func (s *RedisChallengeStore) WithClock(now func() time.Time) *RedisChallengeStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *RedisChallengeStore) key(state string) string {
	return s.prefix + ":" + state
}

func (s *RedisChallengeStore) Save(ctx context.Context, flow *PendingFlow) error {
	ttl := flow.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrChallengeExpired
	}
	data, err := json.Marshal(flow)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(flow.State), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

func (s *RedisChallengeStore) Take(ctx context.Context, state string) (*PendingFlow, error) {
	data, err := s.redis.GetDel(ctx, s.key(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	var flow PendingFlow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return &flow, nil
}

var (
	_ ChallengeStore = (*MemoryChallengeStore)(nil)
	_ ChallengeStore = (*RedisChallengeStore)(nil)
)
