package goVerify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goVerify/autherr"
	"github.com/MrEthical07/goVerify/internal/keylock"
	"github.com/MrEthical07/goVerify/vault"
	"github.com/google/uuid"
)

// shared is the state both managers must agree on: the vault, the key
// locks and the event sink. Lock order is pair (or refresh) key, then user
// key, then index key.
type shared struct {
	vault      vault.Vault
	swapper    vault.Swapper
	locks      *keylock.Map
	dispatcher *Dispatcher
	metrics    *Metrics
	accounts   AccountDirectory
	logger     *slog.Logger
	now        func() time.Time
}

func newShared(v vault.Vault, d *Dispatcher, metrics *Metrics, accounts AccountDirectory, logger *slog.Logger, now func() time.Time) *shared {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	s := &shared{
		vault:      v,
		locks:      keylock.New(),
		dispatcher: d,
		metrics:    metrics,
		accounts:   accounts,
		logger:     logger,
		now:        now,
	}
	if sw, ok := v.(vault.Swapper); ok {
		s.swapper = sw
	}
	return s
}

func pairLockKey(userID string, method Method) string { return "factor:" + userID + ":" + string(method) }

func userLockKey(userID string) string { return "user:" + userID }

func indexLockKey(provider, providerUserID string) string {
	return "index:" + provider + ":" + providerUserID
}

func refreshLockKey(userID, provider string) string { return "refresh:" + userID + ":" + provider }

// retrieve maps vault.ErrNotFound to ok=false.
func (s *shared) retrieve(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.vault.Retrieve(ctx, key)
	if errors.Is(err, vault.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// swap replaces old with next under key. Vaults without CompareAndSwap are
// compared and written in two steps, which is only safe while the caller
// holds the key's lock.
func (s *shared) swap(ctx context.Context, key string, old, next []byte) (bool, error) {
	if s.swapper != nil {
		return s.swapper.CompareAndSwap(ctx, key, old, next)
	}

	cur, ok, err := s.retrieve(ctx, key)
	if err != nil {
		return false, err
	}
	if old == nil {
		if ok {
			return false, nil
		}
	} else if !ok || string(cur) != string(old) {
		return false, nil
	}
	if next == nil {
		_, err = s.vault.Remove(ctx, key)
		return err == nil, err
	}
	if err := s.vault.Store(ctx, key, next); err != nil {
		return false, err
	}
	return true, nil
}

// rollback restores key to prev (or removes it when prev is nil) after a
// later write failed. It ignores cancellation of ctx.
func (s *shared) rollback(ctx context.Context, key string, prev []byte) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if prev == nil {
		_, err = s.vault.Remove(ctx, key)
	} else {
		err = s.vault.Store(ctx, key, prev)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "vault rollback failed", slog.String("key", key), slog.Any("error", err))
	}
}

/*
====================================
ENROLLMENT SET
====================================
*/

func (s *shared) loadEnrollments(ctx context.Context, userID string) ([]FactorEnrollment, error) {
	data, ok, err := s.retrieve(ctx, vault.EnrollmentsKey(userID))
	if err != nil || !ok {
		return nil, err
	}
	var out []FactorEnrollment
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, autherr.WithKind(autherr.KindConfiguration, "enrollments.decode", err)
	}
	return out, nil
}

func (s *shared) saveEnrollments(ctx context.Context, userID string, list []FactorEnrollment) error {
	key := vault.EnrollmentsKey(userID)
	if len(list) == 0 {
		_, err := s.vault.Remove(ctx, key)
		return err
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.vault.Store(ctx, key, data)
}

// putEnrollment replaces the user's enrollment for e.Method under the user lock.
func (s *shared) putEnrollment(ctx context.Context, e FactorEnrollment) error {
	unlock, err := s.locks.Lock(ctx, userLockKey(e.UserID))
	if err != nil {
		return err
	}
	defer unlock()

	list, err := s.loadEnrollments(ctx, e.UserID)
	if err != nil {
		return err
	}
	replaced := false
	for i := range list {
		if list[i].Method == e.Method {
			list[i] = e
			replaced = true
		}
	}
	if !replaced {
		list = append(list, e)
	}
	return s.saveEnrollments(ctx, e.UserID, list)
}

func findEnrollment(list []FactorEnrollment, method Method) *FactorEnrollment {
	for i := range list {
		if list[i].Method == method {
			return &list[i]
		}
	}
	return nil
}

func withoutEnrollment(list []FactorEnrollment, method Method) []FactorEnrollment {
	out := make([]FactorEnrollment, 0, len(list))
	for _, e := range list {
		if e.Method != method {
			out = append(out, e)
		}
	}
	return out
}

/*
====================================
LINKED IDENTITY SET
====================================
*/

func (s *shared) loadLinks(ctx context.Context, userID string) ([]LinkedIdentity, error) {
	data, ok, err := s.retrieve(ctx, vault.LinkedIdentitiesKey(userID))
	if err != nil || !ok {
		return nil, err
	}
	var out []LinkedIdentity
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, autherr.WithKind(autherr.KindConfiguration, "links.decode", err)
	}
	return out, nil
}

func (s *shared) saveLinks(ctx context.Context, userID string, list []LinkedIdentity) error {
	key := vault.LinkedIdentitiesKey(userID)
	if len(list) == 0 {
		_, err := s.vault.Remove(ctx, key)
		return err
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.vault.Store(ctx, key, data)
}

func findLink(list []LinkedIdentity, provider string) int {
	for i := range list {
		if list[i].Provider == provider {
			return i
		}
	}
	return -1
}

/*
====================================
POLICY
====================================
*/

type authMethods struct {
	enabledFactors int
	links          int
	password       bool
}

func (a authMethods) total() int {
	n := a.enabledFactors + a.links
	if a.password {
		n++
	}
	return n
}

// countAuthMethods must run under the user lock so the answer stays true
// until the caller's write lands.
func (s *shared) countAuthMethods(ctx context.Context, userID string, enrollments []FactorEnrollment, links []LinkedIdentity) (authMethods, error) {
	var am authMethods
	for _, e := range enrollments {
		if e.Status == StatusEnabled {
			am.enabledFactors++
		}
	}
	am.links = len(links)
	if s.accounts != nil {
		ok, err := s.accounts.HasPassword(ctx, userID)
		if err != nil {
			return am, err
		}
		am.password = ok
	}
	return am, nil
}

/*
====================================
EVENTS
====================================
*/

func (s *shared) emit(ctx context.Context, event Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = s.now().UTC()
	if ip := clientIPFromContext(ctx); ip != "" {
		event.Payload = withPayload(event.Payload, "client_ip", ip)
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		event.Payload = withPayload(event.Payload, "user_agent", ua)
	}
	s.dispatcher.Emit(context.WithoutCancel(ctx), event)
}

// emitFailure publishes a verification_failed event for op and returns err.
func (s *shared) emitFailure(ctx context.Context, op, userID string, method Method, provider string, err error) error {
	if autherr.KindOf(err) == autherr.KindAttemptsExceeded {
		s.metrics.Inc(MetricRateLimitHit)
	}
	s.emit(ctx, Event{
		Kind:     EventVerificationFailed,
		UserID:   userID,
		Method:   method,
		Provider: provider,
		Payload:  map[string]string{"operation": op},
		Error:    failureCode(err),
	})
	return err
}

func failureCode(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	}
	return autherr.Code(err)
}

func withPayload(p map[string]string, k, v string) map[string]string {
	if p == nil {
		p = make(map[string]string, 2)
	}
	p[k] = v
	return p
}
