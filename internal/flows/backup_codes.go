package flows

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"math/big"
	"strings"
	"time"
)

// BackupCodeAlphabet is uppercase letters and digits without the glyphs that
// are easily confused when read aloud or copied (I, O, 0, 1).
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type BackupCodeMetrics struct {
	BackupCodeUsed        int
	BackupCodeFailed      int
	BackupCodeRegenerated int
}

type BackupCodeErrors struct {
	EngineNotReady        error
	BackupCodeUnavailable error
	BackupCodeInvalid     error
	BackupCodeRateLimited error
}

type BackupCodeDeps struct {
	BackupCodeCount  int
	BackupCodeLength int

	Now func() time.Time

	ReplaceBackupCodes func(context.Context, string, *BackupCodeSet) error
	ConsumeBackupCode  func(context.Context, string, [32]byte) (bool, error)

	CheckLimiter         func(context.Context, string) error
	RecordLimiterFailure func(context.Context, string) error
	ResetLimiter         func(context.Context, string) error
	IsRateLimited        func(error) bool

	RandomIndex func(int) (int, error)

	MetricInc func(int)

	Metrics BackupCodeMetrics
	Errors  BackupCodeErrors
}

// RunGenerateBackupCodes creates a fresh set, replacing any previous one, and
// returns the plaintext codes. Only hashes are persisted.
func RunGenerateBackupCodes(ctx context.Context, userID string, deps BackupCodeDeps) ([]string, error) {
	normalizeBackupCodeDeps(&deps)

	if deps.ReplaceBackupCodes == nil {
		return nil, deps.Errors.EngineNotReady
	}
	count := deps.BackupCodeCount
	length := deps.BackupCodeLength
	if count <= 0 || length <= 0 {
		return nil, deps.Errors.BackupCodeUnavailable
	}

	set := &BackupCodeSet{UserID: userID, CreatedAt: deps.Now(), Hashes: make([][32]byte, 0, count)}
	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		raw, err := NewBackupCode(length, deps.RandomIndex)
		if err != nil {
			return nil, deps.Errors.BackupCodeUnavailable
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		set.Hashes = append(set.Hashes, BackupCodeHash(userID, raw))
		codes = append(codes, raw)
	}

	if err := deps.ReplaceBackupCodes(ctx, userID, set); err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.BackupCodeRegenerated)
	return codes, nil
}

// RunVerifyBackupCode consumes code if it is in the user's set. A miss leaves
// the set untouched.
func RunVerifyBackupCode(ctx context.Context, userID, code string, deps BackupCodeDeps) error {
	normalizeBackupCodeDeps(&deps)

	if deps.ConsumeBackupCode == nil || deps.CheckLimiter == nil || deps.RecordLimiterFailure == nil || deps.ResetLimiter == nil {
		return deps.Errors.EngineNotReady
	}

	if err := deps.CheckLimiter(ctx, userID); err != nil {
		if deps.IsRateLimited(err) {
			return deps.Errors.BackupCodeRateLimited
		}
		return deps.Errors.BackupCodeUnavailable
	}

	canonical := CanonicalizeBackupCode(code)
	if canonical == "" {
		return recordBackupFailure(ctx, userID, deps)
	}

	ok, err := deps.ConsumeBackupCode(ctx, userID, BackupCodeHash(userID, canonical))
	if err != nil {
		return err
	}
	if !ok {
		return recordBackupFailure(ctx, userID, deps)
	}

	_ = deps.ResetLimiter(ctx, userID)
	deps.MetricInc(deps.Metrics.BackupCodeUsed)
	return nil
}

func recordBackupFailure(ctx context.Context, userID string, deps BackupCodeDeps) error {
	deps.MetricInc(deps.Metrics.BackupCodeFailed)
	if err := deps.RecordLimiterFailure(ctx, userID); err != nil && !deps.IsRateLimited(err) {
		return deps.Errors.BackupCodeUnavailable
	}
	return deps.Errors.BackupCodeInvalid
}

func NewBackupCode(length int, randomIndex func(int) (int, error)) (string, error) {
	if randomIndex == nil {
		randomIndex = cryptoRandomIndex
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := randomIndex(len(BackupCodeAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n])
	}
	return b.String(), nil
}

// CanonicalizeBackupCode uppercases and strips separators users commonly type.
func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

func BackupCodeHash(userID, canonicalCode string) [32]byte {
	data := make([]byte, 0, len(userID)+1+len(canonicalCode))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	return sha256.Sum256(data)
}

func cryptoRandomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}

func normalizeBackupCodeDeps(deps *BackupCodeDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}
	if deps.RandomIndex == nil {
		deps.RandomIndex = cryptoRandomIndex
	}
}
