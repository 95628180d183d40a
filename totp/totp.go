package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"strings"
	"time"

	"github.com/MrEthical07/goVerify/autherr"
	"github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
)

// SecretSize is the number of random bytes in a generated shared secret.
const SecretSize = 20

// Algorithm selects the HMAC hash.
type Algorithm string

const (
	SHA1   Algorithm = "SHA1"
	SHA256 Algorithm = "SHA256"
	SHA512 Algorithm = "SHA512"
)

var (
	// ErrUnsupportedAlgorithm is returned for an unknown HMAC algorithm.
	ErrUnsupportedAlgorithm = autherr.New(autherr.KindConfiguration, "unsupported totp algorithm")
	// ErrInvalidSecret is returned when a secret cannot be decoded or is empty.
	ErrInvalidSecret = autherr.New(autherr.KindConfiguration, "invalid totp secret")
	// ErrInvalidConfig is returned for out-of-range period or digits.
	ErrInvalidConfig = autherr.New(autherr.KindConfiguration, "invalid totp configuration")
)

// Config holds the code parameters shared by every enrollment.
type Config struct {
	Period    time.Duration
	Digits    int
	Algorithm Algorithm
	// Skew is the number of periods accepted on either side of the current one.
	Skew int
}

// DefaultConfig returns 30s / 6 digits / SHA1 / one period of skew.
func DefaultConfig() Config {
	return Config{
		Period:    30 * time.Second,
		Digits:    6,
		Algorithm: SHA1,
		Skew:      1,
	}
}

// Secret is a freshly generated shared secret in raw and display form.
type Secret struct {
	Raw  []byte
	Text string
}

// Engine computes and validates time-stepped codes.
// It is stateless and safe for concurrent use.
type Engine struct {
	cfg  Config
	rand io.Reader
}

// New validates cfg and returns an Engine. Zero fields take their defaults.
func New(cfg Config) (*Engine, error) {
	def := DefaultConfig()
	if cfg.Period == 0 {
		cfg.Period = def.Period
	}
	if cfg.Digits == 0 {
		cfg.Digits = def.Digits
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = def.Algorithm
	}
	cfg.Algorithm = Algorithm(strings.ToUpper(string(cfg.Algorithm)))

	if cfg.Period < time.Second || cfg.Period%time.Second != 0 {
		return nil, autherr.Wrap("totp.New", fmt.Errorf("%w: period must be a whole number of seconds >= 1s", ErrInvalidConfig))
	}
	if cfg.Digits < 6 || cfg.Digits > 8 {
		return nil, autherr.Wrap("totp.New", fmt.Errorf("%w: digits must be between 6 and 8", ErrInvalidConfig))
	}
	if cfg.Skew < 0 {
		return nil, autherr.Wrap("totp.New", fmt.Errorf("%w: skew must be >= 0", ErrInvalidConfig))
	}
	if _, err := hmacFunc(cfg.Algorithm); err != nil {
		return nil, autherr.Wrap("totp.New", err)
	}
	return &Engine{cfg: cfg, rand: rand.Reader}, nil
}

// Config returns the engine parameters.
func (e *Engine) Config() Config { return e.cfg }

// GenerateSecret returns SecretSize random bytes and their base-32 text.
func (e *Engine) GenerateSecret() (Secret, error) {
	raw := make([]byte, SecretSize)
	if _, err := io.ReadFull(e.rand, raw); err != nil {
		return Secret{}, fmt.Errorf("totp: read random: %w", err)
	}
	return Secret{Raw: raw, Text: EncodeBase32(raw)}, nil
}

// Counter returns the time step containing t.
func (e *Engine) Counter(t time.Time) int64 {
	return floorDiv(t.Unix(), int64(e.cfg.Period/time.Second))
}

// Code returns the code for secretText at time t.
func (e *Engine) Code(secretText string, t time.Time) (string, error) {
	key, err := decodeSecret(secretText)
	if err != nil {
		return "", err
	}
	return GenerateCode(key, e.Counter(t), e.cfg.Digits, e.cfg.Algorithm)
}

// Validate reports whether candidate matches any counter within the
// configured skew around t. A malformed candidate is simply false; an
// undecodable secret is a configuration error.
func (e *Engine) Validate(secretText, candidate string, t time.Time) (bool, error) {
	_, ok, err := e.ValidateCounter(secretText, candidate, t, e.cfg.Skew)
	return ok, err
}

// ValidateCounter checks counters in [current-window, current+window] and
// returns the counter that matched.
func (e *Engine) ValidateCounter(secretText, candidate string, t time.Time, window int) (int64, bool, error) {
	key, err := decodeSecret(secretText)
	if err != nil {
		return 0, false, err
	}
	return e.validateRaw(key, candidate, t, window)
}

func (e *Engine) validateRaw(key []byte, candidate string, t time.Time, window int) (int64, bool, error) {
	trimmed := strings.TrimSpace(candidate)
	if len(trimmed) != e.cfg.Digits || !isNumeric(trimmed) {
		return 0, false, nil
	}
	if window < 0 {
		window = 0
	}

	base := e.Counter(t)
	for step := -window; step <= window; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := GenerateCode(key, counter, e.cfg.Digits, e.cfg.Algorithm)
		if err != nil {
			return 0, false, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return counter, true, nil
		}
	}
	return 0, false, nil
}

// TimeRemaining returns the time until the next counter boundary.
func (e *Engine) TimeRemaining(t time.Time) time.Duration {
	return TimeRemaining(t, e.cfg.Period)
}

// ProvisionURI builds an otpauth:// URI for authenticator apps.
func (e *Engine) ProvisionURI(secret Secret, issuer, account string) (string, error) {
	key, err := pqtotp.Generate(pqtotp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      uint(e.cfg.Period / time.Second),
		Digits:      otp.Digits(e.cfg.Digits),
		Algorithm:   otpAlgorithm(e.cfg.Algorithm),
		Secret:      secret.Raw,
	})
	if err != nil {
		return "", autherr.WithKind(autherr.KindConfiguration, "totp.ProvisionURI", err)
	}
	return key.URL(), nil
}

// TimeRemaining returns the time from t until the next multiple of period.
func TimeRemaining(t time.Time, period time.Duration) time.Duration {
	if period <= 0 {
		return 0
	}
	elapsed := time.Duration(t.UnixNano()) % period
	if elapsed < 0 {
		elapsed += period
	}
	return period - elapsed
}

// GenerateCode computes the RFC 4226 HOTP value for counter.
func GenerateCode(secret []byte, counter int64, digits int, algorithm Algorithm) (string, error) {
	if len(secret) == 0 {
		return "", ErrInvalidSecret
	}
	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (uint32(sum[offset])&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func decodeSecret(text string) ([]byte, error) {
	key, err := DecodeBase32(text)
	if err != nil {
		return nil, autherr.Wrap("totp.decodeSecret", fmt.Errorf("%w: %w", ErrInvalidSecret, err))
	}
	if len(key) == 0 {
		return nil, autherr.Wrap("totp.decodeSecret", ErrInvalidSecret)
	}
	return key, nil
}

func hmacFunc(algorithm Algorithm) (func() hash.Hash, error) {
	switch Algorithm(strings.ToUpper(string(algorithm))) {
	case "", SHA1:
		return sha1.New, nil
	case SHA256:
		return sha256.New, nil
	case SHA512:
		return sha512.New, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

func otpAlgorithm(a Algorithm) otp.Algorithm {
	switch a {
	case SHA256:
		return otp.AlgorithmSHA256
	case SHA512:
		return otp.AlgorithmSHA512
	default:
		return otp.AlgorithmSHA1
	}
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
