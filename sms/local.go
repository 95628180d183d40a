package sms

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goVerify/autherr"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"
)

// LocalConfig tunes a LocalChannel.
type LocalConfig struct {
	CodeLength int
	CodeTTL    time.Duration
	// SendsPerWindow and Window set the sustained per-number send rate;
	// Burst is how many sends may happen back to back.
	SendsPerWindow int
	Window         time.Duration
	Burst          int
	// Message is a fmt template with one %s verb for the code.
	Message string
}

// DefaultLocalConfig returns 6-digit codes valid for 5 minutes and at most
// 5 sends per number per hour with a burst of 3.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		CodeLength:     6,
		CodeTTL:        5 * time.Minute,
		SendsPerWindow: 5,
		Window:         time.Hour,
		Burst:          3,
		Message:        "Your verification code is %s",
	}
}

type localSession struct {
	phone   string
	hash    [32]byte
	expires time.Time
}

// LocalChannel generates codes in process, keeps only their hashes and hands
// the plaintext to a Sender. It is safe for concurrent use.
type LocalChannel struct {
	cfg    LocalConfig
	sender Sender
	now    func() time.Time
	rand   io.Reader

	mu       sync.Mutex
	sessions map[string]localSession
	entropy  *ulid.MonotonicEntropy

	limiters sync.Map // map[string]*rate.Limiter
	limit    rate.Limit
}

// NewLocalChannel returns a channel that delivers through sender. Zero config
// fields take their defaults.
func NewLocalChannel(sender Sender, cfg LocalConfig) *LocalChannel {
	def := DefaultLocalConfig()
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = def.CodeLength
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = def.CodeTTL
	}
	if cfg.SendsPerWindow <= 0 {
		cfg.SendsPerWindow = def.SendsPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Message == "" {
		cfg.Message = def.Message
	}
	if sender == nil {
		sender = LogSender{}
	}
	return &LocalChannel{
		cfg:      cfg,
		sender:   sender,
		now:      time.Now,
		rand:     rand.Reader,
		sessions: make(map[string]localSession),
		entropy:  ulid.Monotonic(rand.Reader, 0),
		limit:    rate.Limit(float64(cfg.SendsPerWindow) / cfg.Window.Seconds()),
	}
}

// WithClock replaces the time source. Intended for tests.
func (c *LocalChannel) WithClock(now func() time.Time) *LocalChannel {
	c.now = now
	return c
}

// SendCode sends a fresh code to phoneNumber and returns the session ID that
// VerifyCode expects. Sends past the per-number rate limit fail with
// ErrThrottled; a Sender failure drops the session.
func (c *LocalChannel) SendCode(ctx context.Context, phoneNumber string) (string, error) {
	phone := strings.TrimSpace(phoneNumber)
	if phone == "" {
		return "", ErrInvalidPhone
	}
	if !c.limiter(phone).AllowN(c.now(), 1) {
		return "", ErrThrottled
	}

	code, err := c.newCode()
	if err != nil {
		return "", fmt.Errorf("sms: generate code: %w", err)
	}

	c.mu.Lock()
	now := c.now()
	c.sweepLocked(now)
	id := ulid.MustNew(ulid.Timestamp(now), c.entropy).String()
	c.sessions[id] = localSession{phone: phone, hash: codeHash(id, code), expires: now.Add(c.cfg.CodeTTL)}
	c.mu.Unlock()

	if err := c.sender.Send(ctx, phone, fmt.Sprintf(c.cfg.Message, code)); err != nil {
		c.mu.Lock()
		delete(c.sessions, id)
		c.mu.Unlock()
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &autherr.ProviderError{Provider: "sms", Op: "send", Code: autherr.CodeNetwork, Err: err}
	}
	return id, nil
}

// VerifyCode consumes the session on a match. A wrong code or a phone number
// that does not match the session reports false and leaves it in place.
func (c *LocalChannel) VerifyCode(ctx context.Context, phoneNumber, code, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[sessionID]
	if !ok {
		return false, ErrUnknownSession
	}
	if !c.now().Before(s.expires) {
		delete(c.sessions, sessionID)
		return false, nil
	}
	if strings.TrimSpace(phoneNumber) != s.phone {
		return false, nil
	}

	candidate := codeHash(sessionID, strings.TrimSpace(code))
	if subtle.ConstantTimeCompare(candidate[:], s.hash[:]) != 1 {
		return false, nil
	}
	delete(c.sessions, sessionID)
	return true, nil
}

// Pending reports how many unexpired sessions are held.
func (c *LocalChannel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(c.now())
	return len(c.sessions)
}

func (c *LocalChannel) limiter(phone string) *rate.Limiter {
	if l, ok := c.limiters.Load(phone); ok {
		return l.(*rate.Limiter)
	}
	actual, _ := c.limiters.LoadOrStore(phone, rate.NewLimiter(c.limit, c.cfg.Burst))
	return actual.(*rate.Limiter)
}

func (c *LocalChannel) sweepLocked(now time.Time) {
	for id, s := range c.sessions {
		if !now.Before(s.expires) {
			delete(c.sessions, id)
		}
	}
}

func (c *LocalChannel) newCode() (string, error) {
	var b strings.Builder
	b.Grow(c.cfg.CodeLength)
	ten := big.NewInt(10)
	for i := 0; i < c.cfg.CodeLength; i++ {
		n, err := rand.Int(c.rand, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

func codeHash(sessionID, code string) [32]byte {
	data := make([]byte, 0, len(sessionID)+1+len(code))
	data = append(data, sessionID...)
	data = append(data, 0)
	data = append(data, code...)
	return sha256.Sum256(data)
}
