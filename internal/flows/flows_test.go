package flows

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

var (
	errNotReady    = errors.New("not ready")
	errUnavailable = errors.New("unavailable")
	errInvalid     = errors.New("invalid")
	errLimited     = errors.New("limited")
	errNotFound    = errors.New("not found")
	errExpired     = errors.New("expired")
	errExceeded    = errors.New("exceeded")
)

func TestRecordCodecsRoundTrip(t *testing.T) {
	created := time.UnixMilli(1700000000123)

	totp := &TOTPRecord{Secret: "JBSWY3DPEHPK3PXP", LastUsedCounter: -1, CreatedAt: created}
	data, err := EncodeTOTPRecord(totp)
	if err != nil {
		t.Fatalf("encode totp: %v", err)
	}
	gotTOTP, err := DecodeTOTPRecord(data)
	if err != nil || *gotTOTP != *totp {
		t.Fatalf("totp round trip: %+v %v", gotTOTP, err)
	}

	set := &BackupCodeSet{UserID: "u1", CreatedAt: created, Hashes: [][32]byte{BackupCodeHash("u1", "A"), BackupCodeHash("u1", "B")}}
	data, _ = EncodeBackupCodeSet(set)
	gotSet, err := DecodeBackupCodeSet(data)
	if err != nil || gotSet.UserID != "u1" || len(gotSet.Hashes) != 2 || gotSet.Hashes[1] != set.Hashes[1] || !gotSet.CreatedAt.Equal(created) {
		t.Fatalf("backup set round trip: %+v %v", gotSet, err)
	}

	sess := &SMSSession{UserID: "u1", Target: "+15550100", ProviderSessionID: "sid", ExpiresAt: created.Add(time.Minute), AttemptsUsed: 2, AttemptsMax: 5, LastSentAt: created}
	data, _ = EncodeSMSSession(sess)
	gotSess, err := DecodeSMSSession(data)
	if err != nil || gotSess.Target != sess.Target || gotSess.AttemptsUsed != 2 || gotSess.AttemptsMax != 5 || !gotSess.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Fatalf("sms session round trip: %+v %v", gotSess, err)
	}

	if _, err := DecodeSMSSession([]byte{9}); !errors.Is(err, ErrRecordCorrupt) {
		t.Fatalf("expected corrupt record for unknown version, got %v", err)
	}
	if _, err := DecodeBackupCodeSet(data[:3]); !errors.Is(err, ErrRecordCorrupt) {
		t.Fatalf("expected corrupt record for truncated data, got %v", err)
	}
}

func TestBackupCodeSetWithoutDoesNotAlias(t *testing.T) {
	set := &BackupCodeSet{Hashes: [][32]byte{{1}, {2}, {3}}}
	out := set.Without(1)
	if len(out.Hashes) != 2 || out.Hashes[0] != [32]byte{1} || out.Hashes[1] != [32]byte{3} {
		t.Fatalf("unexpected result %v", out.Hashes)
	}
	if set.Hashes[1] != [32]byte{2} {
		t.Fatal("original set was mutated")
	}
}

type memoryBackupStore struct {
	sets     map[string]*BackupCodeSet
	failures int
}

func (s *memoryBackupStore) deps() BackupCodeDeps {
	return BackupCodeDeps{
		BackupCodeCount:  10,
		BackupCodeLength: 8,
		ReplaceBackupCodes: func(_ context.Context, userID string, set *BackupCodeSet) error {
			s.sets[userID] = set
			return nil
		},
		ConsumeBackupCode: func(_ context.Context, userID string, hash [32]byte) (bool, error) {
			set, ok := s.sets[userID]
			if !ok {
				return false, nil
			}
			i := set.Contains(hash)
			if i < 0 {
				return false, nil
			}
			s.sets[userID] = set.Without(i)
			return true, nil
		},
		CheckLimiter: func(context.Context, string) error {
			if s.failures >= 3 {
				return errLimited
			}
			return nil
		},
		RecordLimiterFailure: func(context.Context, string) error { s.failures++; return nil },
		ResetLimiter:         func(context.Context, string) error { s.failures = 0; return nil },
		IsRateLimited:        func(err error) bool { return errors.Is(err, errLimited) },
		Errors: BackupCodeErrors{
			EngineNotReady:        errNotReady,
			BackupCodeUnavailable: errUnavailable,
			BackupCodeInvalid:     errInvalid,
			BackupCodeRateLimited: errLimited,
		},
	}
}

func TestBackupCodesGenerateAndConsumeOnce(t *testing.T) {
	ctx := context.Background()
	store := &memoryBackupStore{sets: map[string]*BackupCodeSet{}}
	deps := store.deps()

	codes, err := RunGenerateBackupCodes(ctx, "u1", deps)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(codes))
	}
	for _, c := range codes {
		if len(c) != 8 || strings.Trim(c, BackupCodeAlphabet) != "" {
			t.Fatalf("code %q has wrong shape", c)
		}
	}

	if err := RunVerifyBackupCode(ctx, "u1", strings.ToLower(codes[0]), deps); err != nil {
		t.Fatalf("first use should succeed: %v", err)
	}
	if err := RunVerifyBackupCode(ctx, "u1", codes[0], deps); !errors.Is(err, errInvalid) {
		t.Fatalf("second use must fail with invalid, got %v", err)
	}
	if n := len(store.sets["u1"].Hashes); n != 9 {
		t.Fatalf("expected 9 remaining hashes, got %d", n)
	}

	if err := RunVerifyBackupCode(ctx, "u1", "ZZZZZZZZ", deps); !errors.Is(err, errInvalid) {
		t.Fatalf("unknown code must fail, got %v", err)
	}
	if n := len(store.sets["u1"].Hashes); n != 9 {
		t.Fatalf("a miss must not mutate the set, got %d", n)
	}

	// Third failure exhausts the budget.
	_ = RunVerifyBackupCode(ctx, "u1", "", deps)
	if err := RunVerifyBackupCode(ctx, "u1", codes[1], deps); !errors.Is(err, errLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
}

func TestBackupCodesRegenerateInvalidatesPrevious(t *testing.T) {
	ctx := context.Background()
	store := &memoryBackupStore{sets: map[string]*BackupCodeSet{}}
	deps := store.deps()

	first, _ := RunGenerateBackupCodes(ctx, "u1", deps)
	if _, err := RunGenerateBackupCodes(ctx, "u1", deps); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if err := RunVerifyBackupCode(ctx, "u1", first[0], deps); !errors.Is(err, errInvalid) {
		t.Fatalf("old code must be invalid after regeneration, got %v", err)
	}
}

func totpDeps(record *TOTPRecord, validCounter int64) TOTPDeps {
	return TOTPDeps{
		EnforceReplayProtection: true,
		GetTOTPRecord:           func(context.Context, string) (*TOTPRecord, error) { return record, nil },
		AdvanceCounter: func(_ context.Context, _ string, prev *TOTPRecord, counter int64) (bool, error) {
			if prev.LastUsedCounter != record.LastUsedCounter {
				return false, nil
			}
			record.LastUsedCounter = counter
			return true, nil
		},
		VerifyCode: func(_ string, code string, _ time.Time) (int64, bool, error) {
			return validCounter, code == "123456", nil
		},
		CheckLimiter:         func(context.Context, string) error { return nil },
		RecordLimiterFailure: func(context.Context, string) error { return nil },
		ResetLimiter:         func(context.Context, string) error { return nil },
		Errors: TOTPErrors{
			EngineNotReady:  errNotReady,
			TOTPUnavailable: errUnavailable,
			TOTPInvalid:     errInvalid,
			TOTPRateLimited: errLimited,
		},
	}
}

func TestVerifyTOTPRejectsReplay(t *testing.T) {
	ctx := context.Background()
	record := &TOTPRecord{Secret: "S", LastUsedCounter: -1}
	deps := totpDeps(record, 100)

	if err := RunVerifyTOTP(ctx, "u1", "123456", deps); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if record.LastUsedCounter != 100 {
		t.Fatalf("expected counter advanced to 100, got %d", record.LastUsedCounter)
	}
	if err := RunVerifyTOTP(ctx, "u1", "123456", deps); !errors.Is(err, errInvalid) {
		t.Fatalf("replay must be rejected, got %v", err)
	}

	deps.EnforceReplayProtection = false
	if err := RunVerifyTOTP(ctx, "u1", "123456", deps); err != nil {
		t.Fatalf("replay allowed when protection is off, got %v", err)
	}
	if err := RunVerifyTOTP(ctx, "u1", "000000", deps); !errors.Is(err, errInvalid) {
		t.Fatalf("wrong code must fail, got %v", err)
	}
}

type memorySMSStore struct {
	session *SMSSession
	code    string
}

func (s *memorySMSStore) deps(now time.Time) SMSDeps {
	return SMSDeps{
		Now: func() time.Time { return now },
		GetSession: func(context.Context, string) (*SMSSession, error) {
			if s.session == nil {
				return nil, errNotFound
			}
			cp := *s.session
			return &cp, nil
		},
		SwapSession: func(_ context.Context, _ string, prev, next *SMSSession) (bool, error) {
			if s.session == nil || *s.session != *prev {
				return false, nil
			}
			if next == nil {
				s.session = nil
			} else {
				cp := *next
				s.session = &cp
			}
			return true, nil
		},
		VerifyWithProvider: func(_ context.Context, _, code, _ string) (bool, error) {
			return code == s.code, nil
		},
		Errors: SMSErrors{
			EngineNotReady:   errNotReady,
			SessionNotFound:  errNotFound,
			SessionExpired:   errExpired,
			AttemptsExceeded: errExceeded,
			CodeInvalid:      errInvalid,
			Unavailable:      errUnavailable,
		},
	}
}

func TestVerifySMSFailsPermanentlyAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	store := &memorySMSStore{
		session: &SMSSession{UserID: "u1", Target: "+1555", ExpiresAt: now.Add(5 * time.Minute), AttemptsMax: 3},
		code:    "424242",
	}
	deps := store.deps(now)

	for i := 0; i < 2; i++ {
		if _, err := RunVerifySMS(ctx, "u1", "000000", deps); !errors.Is(err, errInvalid) {
			t.Fatalf("attempt %d: expected invalid, got %v", i, err)
		}
	}
	if _, err := RunVerifySMS(ctx, "u1", "000000", deps); !errors.Is(err, errExceeded) {
		t.Fatalf("last attempt: expected exceeded, got %v", err)
	}
	if _, err := RunVerifySMS(ctx, "u1", "424242", deps); err == nil {
		t.Fatal("correct code after exhaustion must still fail")
	}
}

func TestVerifySMSSuccessDestroysSession(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	store := &memorySMSStore{
		session: &SMSSession{UserID: "u1", Target: "+1555", ExpiresAt: now.Add(5 * time.Minute), AttemptsMax: 3},
		code:    "424242",
	}
	deps := store.deps(now)

	if _, err := RunVerifySMS(ctx, "u1", "000000", deps); !errors.Is(err, errInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if store.session.AttemptsUsed != 1 {
		t.Fatalf("mismatch must leave the incremented counter, got %d", store.session.AttemptsUsed)
	}
	got, err := RunVerifySMS(ctx, "u1", "424242", deps)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got.Target != "+1555" || store.session != nil {
		t.Fatalf("session should be destroyed after success")
	}
	if _, err := RunVerifySMS(ctx, "u1", "424242", deps); !errors.Is(err, errNotFound) {
		t.Fatalf("session is single use, got %v", err)
	}
}

func TestVerifySMSExpiredSession(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	store := &memorySMSStore{
		session: &SMSSession{UserID: "u1", ExpiresAt: now, AttemptsMax: 3},
		code:    "424242",
	}
	if _, err := RunVerifySMS(ctx, "u1", "424242", store.deps(now)); !errors.Is(err, errExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if store.session != nil {
		t.Fatal("expired session should be destroyed")
	}
}
