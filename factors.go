package goVerify

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goVerify/autherr"
	"github.com/MrEthical07/goVerify/internal/flows"
	"github.com/MrEthical07/goVerify/internal/limiters"
	"github.com/MrEthical07/goVerify/internal/rate"
	"github.com/MrEthical07/goVerify/sms"
	"github.com/MrEthical07/goVerify/totp"
	"github.com/MrEthical07/goVerify/vault"
	"github.com/redis/go-redis/v9"
)

const maxBackupSwapRetries = 4

// FactorDeps are the collaborators of a FactorManager.
type FactorDeps struct {
	Vault vault.Vault
	// SMS is required for the SMS method only.
	SMS sms.Channel
	// Accounts supplies verified phone numbers and password presence.
	Accounts   AccountDirectory
	Dispatcher *Dispatcher
	Metrics    *Metrics
	// Redis, when set, holds the attempt counters so that budgets are shared
	// by every process. Otherwise they are kept in memory.
	Redis redis.UniversalClient
	Now   func() time.Time
}

// FactorManager enables, verifies and disables second factors. Operations
// on the same (user, method) pair are serialized; different pairs proceed
// in parallel.
type FactorManager struct {
	cfg    Config
	shared *shared
	engine *totp.Engine
	sms    sms.Channel

	states        *factorStates
	totpLimiter   *limiters.AttemptLimiter
	backupLimiter *limiters.AttemptLimiter

	randomIndex func(int) (int, error)
}

// NewFactorManager validates cfg and wires a manager over deps.
func NewFactorManager(cfg Config, deps FactorDeps) (*FactorManager, error) {
	cfg = cloneConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Vault == nil {
		return nil, ErrEngineNotReady
	}
	sh := newShared(deps.Vault, deps.Dispatcher, deps.Metrics, deps.Accounts, cfg.Logger, deps.Now)
	var counter rate.Counter = rate.NewMemoryCounter().WithClock(sh.now)
	if deps.Redis != nil {
		counter = rate.NewRedisCounter(deps.Redis, cfg.Vault.RedisPrefix)
	}
	return newFactorManager(cfg, sh, deps.SMS, counter)
}

func newFactorManager(cfg Config, sh *shared, ch sms.Channel, counter rate.Counter) (*FactorManager, error) {
	engine, err := totp.New(cfg.totpEngineConfig())
	if err != nil {
		return nil, autherr.WithKind(autherr.KindConfiguration, "factors.New", err)
	}
	return &FactorManager{
		cfg:    cfg,
		shared: sh,
		engine: engine,
		sms:    ch,
		states: newFactorStates(),
		totpLimiter: limiters.NewAttemptLimiter(counter, "totp", limiters.Config{
			MaxAttempts: cfg.TOTP.MaxAttempts,
			Cooldown:    cfg.TOTP.Cooldown,
		}),
		backupLimiter: limiters.NewAttemptLimiter(counter, "backup", limiters.Config{
			MaxAttempts: cfg.BackupCodes.MaxAttempts,
			Cooldown:    cfg.BackupCodes.Cooldown,
		}),
	}, nil
}

// State returns the in-flight state of the pair.
func (m *FactorManager) State(userID string, method Method) FactorState {
	return m.states.get(userID, method)
}

// Enrollments returns every enrollment the user has, in creation order.
func (m *FactorManager) Enrollments(ctx context.Context, userID string) ([]FactorEnrollment, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	return m.shared.loadEnrollments(ctx, userID)
}

// Engine exposes the TOTP engine, mostly so callers can render codes in tests
// and tooling.
func (m *FactorManager) Engine() *totp.Engine { return m.engine }

/*
====================================
ENABLE
====================================
*/

// Enable sets up method for the user. TOTP and BACKUP_CODES become ENABLED
// immediately and return their secrets once. SMS sends a code and stays
// PENDING until Verify confirms it.
func (m *FactorManager) Enable(ctx context.Context, userID string, method Method) (*EnableResult, error) {
	const op = "enable"
	if err := validRequest(userID, method); err != nil {
		return nil, m.shared.emitFailure(ctx, op, userID, method, "", err)
	}

	unlock, err := m.shared.locks.Lock(ctx, pairLockKey(userID, method))
	if err != nil {
		return nil, m.shared.emitFailure(ctx, op, userID, method, "", err)
	}
	defer unlock()

	m.states.set(userID, method, StateEnabling{})

	var res *EnableResult
	switch method {
	case MethodTOTP:
		res, err = m.enableTOTP(ctx, userID)
	case MethodSMS:
		res, err = m.enableSMS(ctx, userID)
	case MethodBackupCodes:
		res, err = m.enableBackupCodes(ctx, userID)
	}
	m.states.finish(userID, method, op, err)
	if err != nil {
		return nil, m.shared.emitFailure(ctx, op, userID, method, "", err)
	}

	if res.Enrollment.Status == StatusEnabled {
		m.shared.metrics.Inc(MetricFactorEnabled)
	}
	enrollment := res.Enrollment
	m.shared.emit(ctx, Event{
		Kind:       EventFactorEnabled,
		UserID:     userID,
		Method:     method,
		Enrollment: &enrollment,
		Payload:    map[string]string{"status": string(enrollment.Status)},
	})
	return res, nil
}

func (m *FactorManager) enableTOTP(ctx context.Context, userID string) (*EnableResult, error) {
	if err := m.ensureNotEnabled(ctx, userID, MethodTOTP); err != nil {
		return nil, err
	}

	secret, err := m.engine.GenerateSecret()
	if err != nil {
		return nil, err
	}
	uri, err := m.engine.ProvisionURI(secret, m.cfg.TOTP.Issuer, userID)
	if err != nil {
		return nil, err
	}

	now := m.shared.now()
	data, err := flows.EncodeTOTPRecord(&flows.TOTPRecord{
		Secret:          secret.Text,
		LastUsedCounter: -1,
		CreatedAt:       now,
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := vault.TOTPSettingsKey(userID)
	if err := m.shared.vault.Store(ctx, key, data); err != nil {
		return nil, err
	}
	enrollment := FactorEnrollment{UserID: userID, Method: MethodTOTP, Status: StatusEnabled, EnrolledAt: now}
	if err := m.shared.putEnrollment(ctx, enrollment); err != nil {
		m.shared.rollback(ctx, key, nil)
		return nil, err
	}

	return &EnableResult{Enrollment: enrollment, Secret: secret.Text, ProvisioningURI: uri}, nil
}

func (m *FactorManager) enableSMS(ctx context.Context, userID string) (*EnableResult, error) {
	if m.sms == nil || m.shared.accounts == nil {
		return nil, ErrEngineNotReady
	}
	if err := m.ensureNotEnabled(ctx, userID, MethodSMS); err != nil {
		return nil, err
	}
	phone, err := m.verifiedPhone(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := m.checkResendCooldown(ctx, userID); err != nil {
		return nil, err
	}
	key := vault.SMSSessionKey(userID)
	prev, _, err := m.shared.retrieve(ctx, key)
	if err != nil {
		return nil, err
	}

	session, err := m.sendSession(ctx, userID, phone, 0)
	if err != nil {
		return nil, err
	}
	enrollment := FactorEnrollment{UserID: userID, Method: MethodSMS, Status: StatusPending, EnrolledAt: m.shared.now()}
	if err := m.shared.putEnrollment(ctx, enrollment); err != nil {
		m.shared.rollback(ctx, key, prev)
		return nil, err
	}

	return &EnableResult{Enrollment: enrollment, SessionExpiresAt: session.ExpiresAt}, nil
}

func (m *FactorManager) enableBackupCodes(ctx context.Context, userID string) (*EnableResult, error) {
	if err := m.ensureNotEnabled(ctx, userID, MethodBackupCodes); err != nil {
		return nil, err
	}

	key := vault.BackupCodesKey(userID)
	prev, _, err := m.shared.retrieve(ctx, key)
	if err != nil {
		return nil, err
	}
	codes, err := flows.RunGenerateBackupCodes(ctx, userID, m.backupDeps())
	if err != nil {
		return nil, err
	}
	enrollment := FactorEnrollment{UserID: userID, Method: MethodBackupCodes, Status: StatusEnabled, EnrolledAt: m.shared.now()}
	if err := m.shared.putEnrollment(ctx, enrollment); err != nil {
		m.shared.rollback(ctx, key, prev)
		return nil, err
	}
	m.resetLimiter(ctx, m.backupLimiter, userID, MethodBackupCodes)

	return &EnableResult{Enrollment: enrollment, BackupCodes: codes}, nil
}

func (m *FactorManager) ensureNotEnabled(ctx context.Context, userID string, method Method) error {
	list, err := m.shared.loadEnrollments(ctx, userID)
	if err != nil {
		return err
	}
	if e := findEnrollment(list, method); e != nil && e.Status == StatusEnabled {
		return ErrFactorAlreadyEnabled
	}
	return nil
}

/*
====================================
DISABLE
====================================
*/

// Disable removes the user's enrollment for method and its vault record.
// The configured Policy is checked against the user's remaining methods
// while the user is locked.
func (m *FactorManager) Disable(ctx context.Context, userID string, method Method) error {
	const op = "disable"
	if err := validRequest(userID, method); err != nil {
		return m.shared.emitFailure(ctx, op, userID, method, "", err)
	}

	unlockPair, err := m.shared.locks.Lock(ctx, pairLockKey(userID, method))
	if err != nil {
		return m.shared.emitFailure(ctx, op, userID, method, "", err)
	}
	defer unlockPair()

	m.states.set(userID, method, StateDisabling{})
	removed, err := m.disable(ctx, userID, method)
	m.states.finish(userID, method, op, err)
	if err != nil {
		if errors.Is(err, ErrLastFactor) || errors.Is(err, ErrLastAuthMethod) {
			m.shared.metrics.Inc(MetricPolicyRejected)
		}
		return m.shared.emitFailure(ctx, op, userID, method, "", err)
	}

	m.shared.metrics.Inc(MetricFactorDisabled)
	removed.Status = StatusDisabled
	m.shared.emit(ctx, Event{
		Kind:       EventFactorDisabled,
		UserID:     userID,
		Method:     method,
		Enrollment: &removed,
	})
	return nil
}

func (m *FactorManager) disable(ctx context.Context, userID string, method Method) (FactorEnrollment, error) {
	unlockUser, err := m.shared.locks.Lock(ctx, userLockKey(userID))
	if err != nil {
		return FactorEnrollment{}, err
	}
	defer unlockUser()

	list, err := m.shared.loadEnrollments(ctx, userID)
	if err != nil {
		return FactorEnrollment{}, err
	}
	current := findEnrollment(list, method)
	if current == nil {
		return FactorEnrollment{}, ErrFactorNotEnrolled
	}
	removed := *current

	if removed.Status == StatusEnabled {
		links, err := m.shared.loadLinks(ctx, userID)
		if err != nil {
			return removed, err
		}
		am, err := m.shared.countAuthMethods(ctx, userID, list, links)
		if err != nil {
			return removed, err
		}
		if m.cfg.Policy.MFARequired && am.enabledFactors <= 1 {
			return removed, ErrLastFactor
		}
		if m.cfg.Policy.RequireAuthMethod && am.total() <= 1 {
			return removed, ErrLastAuthMethod
		}
	}
	if err := ctx.Err(); err != nil {
		return removed, err
	}

	key := secretKey(userID, method)
	prev, _, err := m.shared.retrieve(ctx, key)
	if err != nil {
		return removed, err
	}
	if _, err := m.shared.vault.Remove(ctx, key); err != nil {
		return removed, err
	}
	if err := m.shared.saveEnrollments(ctx, userID, withoutEnrollment(list, method)); err != nil {
		if prev != nil {
			m.shared.rollback(ctx, key, prev)
		}
		return removed, err
	}

	switch method {
	case MethodTOTP:
		m.resetLimiter(ctx, m.totpLimiter, userID, method)
	case MethodBackupCodes:
		m.resetLimiter(ctx, m.backupLimiter, userID, method)
	}
	return removed, nil
}

func secretKey(userID string, method Method) string {
	switch method {
	case MethodTOTP:
		return vault.TOTPSettingsKey(userID)
	case MethodSMS:
		return vault.SMSSessionKey(userID)
	default:
		return vault.BackupCodesKey(userID)
	}
}

/*
====================================
VERIFY
====================================
*/

// Verify checks code for method. A successful SMS verification of a PENDING
// enrollment activates it.
func (m *FactorManager) Verify(ctx context.Context, userID string, method Method, code string) error {
	const op = "verify"
	start := m.shared.now()
	defer func() {
		m.shared.metrics.Observe(MetricVerifyLatency, m.shared.now().Sub(start))
	}()

	if err := validRequest(userID, method); err != nil {
		return m.shared.emitFailure(ctx, op, userID, method, "", err)
	}

	unlock, err := m.shared.locks.Lock(ctx, pairLockKey(userID, method))
	if err != nil {
		return m.shared.emitFailure(ctx, op, userID, method, "", err)
	}
	defer unlock()

	m.states.set(userID, method, StateVerifying{})
	activated, err := m.verify(ctx, userID, method, code)
	m.states.finish(userID, method, op, err)
	if err != nil {
		return m.shared.emitFailure(ctx, op, userID, method, "", err)
	}

	if activated != nil {
		m.shared.metrics.Inc(MetricFactorEnabled)
		m.shared.emit(ctx, Event{
			Kind:       EventFactorEnabled,
			UserID:     userID,
			Method:     method,
			Enrollment: activated,
			Payload:    map[string]string{"status": string(activated.Status)},
		})
		return nil
	}
	m.shared.emit(ctx, Event{
		Kind:    EventVerificationSucceeded,
		UserID:  userID,
		Method:  method,
		Payload: map[string]string{"operation": op},
	})
	return nil
}

// verify returns the activated enrollment when an SMS code confirmed a
// pending one.
func (m *FactorManager) verify(ctx context.Context, userID string, method Method, code string) (*FactorEnrollment, error) {
	list, err := m.shared.loadEnrollments(ctx, userID)
	if err != nil {
		return nil, err
	}
	enrollment := findEnrollment(list, method)
	if enrollment == nil {
		return nil, ErrFactorNotEnrolled
	}

	switch method {
	case MethodTOTP:
		if enrollment.Status != StatusEnabled {
			return nil, ErrFactorNotEnrolled
		}
		return nil, flows.RunVerifyTOTP(ctx, userID, code, m.totpDeps())

	case MethodBackupCodes:
		if enrollment.Status != StatusEnabled {
			return nil, ErrFactorNotEnrolled
		}
		return nil, flows.RunVerifyBackupCode(ctx, userID, code, m.backupDeps())

	default:
		if m.sms == nil {
			return nil, ErrEngineNotReady
		}
		if _, err := flows.RunVerifySMS(ctx, userID, code, m.smsDeps()); err != nil {
			return nil, err
		}
		if enrollment.Status == StatusEnabled {
			return nil, nil
		}
		activated := *enrollment
		activated.Status = StatusEnabled
		activated.EnrolledAt = m.shared.now()
		if err := m.shared.putEnrollment(context.WithoutCancel(ctx), activated); err != nil {
			return nil, err
		}
		return &activated, nil
	}
}

/*
====================================
BACKUP CODES AND SMS RESEND
====================================
*/

// GenerateBackupCodes replaces the user's backup codes with a fresh set and
// returns the plaintext codes. Every previous code stops working.
func (m *FactorManager) GenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	const op = "generate_backup_codes"
	method := MethodBackupCodes
	if err := validUser(userID); err != nil {
		return nil, m.shared.emitFailure(ctx, op, userID, method, "", err)
	}

	unlock, err := m.shared.locks.Lock(ctx, pairLockKey(userID, method))
	if err != nil {
		return nil, m.shared.emitFailure(ctx, op, userID, method, "", err)
	}
	defer unlock()

	m.states.set(userID, method, StateGeneratingBackupCodes{})
	codes, err := m.generateBackupCodes(ctx, userID)
	m.states.finish(userID, method, op, err)
	if err != nil {
		return nil, m.shared.emitFailure(ctx, op, userID, method, "", err)
	}

	m.shared.emit(ctx, Event{
		Kind:    EventBackupCodesGenerated,
		UserID:  userID,
		Method:  method,
		Payload: map[string]string{"count": strconv.Itoa(len(codes))},
	})
	return codes, nil
}

func (m *FactorManager) generateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	list, err := m.shared.loadEnrollments(ctx, userID)
	if err != nil {
		return nil, err
	}
	if e := findEnrollment(list, MethodBackupCodes); e == nil || e.Status != StatusEnabled {
		return nil, ErrFactorNotEnrolled
	}
	codes, err := flows.RunGenerateBackupCodes(ctx, userID, m.backupDeps())
	if err != nil {
		return nil, err
	}
	m.resetLimiter(ctx, m.backupLimiter, userID, MethodBackupCodes)
	return codes, nil
}

// ResendSMS sends a new code to the user's verified phone and returns the
// new session deadline. Attempts already spent on a live session carry over.
func (m *FactorManager) ResendSMS(ctx context.Context, userID string) (time.Time, error) {
	const op = "resend_sms"
	method := MethodSMS
	if err := validUser(userID); err != nil {
		return time.Time{}, m.shared.emitFailure(ctx, op, userID, method, "", err)
	}

	unlock, err := m.shared.locks.Lock(ctx, pairLockKey(userID, method))
	if err != nil {
		return time.Time{}, m.shared.emitFailure(ctx, op, userID, method, "", err)
	}
	defer unlock()

	m.states.set(userID, method, StateVerifying{})
	expiresAt, err := m.resendSMS(ctx, userID)
	m.states.finish(userID, method, op, err)
	if err != nil {
		return time.Time{}, m.shared.emitFailure(ctx, op, userID, method, "", err)
	}
	return expiresAt, nil
}

func (m *FactorManager) resendSMS(ctx context.Context, userID string) (time.Time, error) {
	if m.sms == nil || m.shared.accounts == nil {
		return time.Time{}, ErrEngineNotReady
	}
	list, err := m.shared.loadEnrollments(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if findEnrollment(list, MethodSMS) == nil {
		return time.Time{}, ErrFactorNotEnrolled
	}

	if err := m.checkResendCooldown(ctx, userID); err != nil {
		return time.Time{}, err
	}
	prev, _, err := m.shared.retrieve(ctx, vault.SMSSessionKey(userID))
	if err != nil {
		return time.Time{}, err
	}

	var carried uint16
	if prev != nil {
		if s, err := flows.DecodeSMSSession(prev); err == nil && m.shared.now().Before(s.ExpiresAt) {
			carried = s.AttemptsUsed
		}
	}

	phone, err := m.verifiedPhone(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	session, err := m.sendSession(ctx, userID, phone, carried)
	if err != nil {
		return time.Time{}, err
	}
	return session.ExpiresAt, nil
}

func (m *FactorManager) verifiedPhone(ctx context.Context, userID string) (string, error) {
	phone, err := m.shared.accounts.VerifiedPhone(ctx, userID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(phone) == "" {
		return "", ErrPhoneNotVerified
	}
	return phone, nil
}

// checkResendCooldown reads the last send time from its own record, which
// survives exhausted, expired and disabled sessions.
func (m *FactorManager) checkResendCooldown(ctx context.Context, userID string) error {
	if m.cfg.SMS.ResendCooldown <= 0 {
		return nil
	}
	data, ok, err := m.shared.retrieve(ctx, vault.SMSLastSentKey(userID))
	if err != nil {
		return err
	}
	if !ok || len(data) != 8 {
		return nil
	}
	last := time.UnixMilli(int64(binary.BigEndian.Uint64(data)))
	if m.shared.now().Sub(last) < m.cfg.SMS.ResendCooldown {
		return ErrSMSResendCooldown
	}
	return nil
}

// sendSession asks the channel for a code and stores the new session,
// replacing any previous one.
func (m *FactorManager) sendSession(ctx context.Context, userID, phone string, attemptsUsed uint16) (*flows.SMSSession, error) {
	sid, err := m.sms.SendCode(ctx, phone)
	if err != nil {
		return nil, err
	}
	m.shared.metrics.Inc(MetricSMSSent)

	now := m.shared.now()
	stamp := binary.BigEndian.AppendUint64(nil, uint64(now.UnixMilli()))
	if err := m.shared.vault.Store(ctx, vault.SMSLastSentKey(userID), stamp); err != nil {
		return nil, err
	}
	session := &flows.SMSSession{
		UserID:            userID,
		Target:            phone,
		ProviderSessionID: sid,
		ExpiresAt:         now.Add(m.cfg.SMS.SessionTTL),
		AttemptsUsed:      attemptsUsed,
		AttemptsMax:       uint16(m.cfg.SMS.MaxAttempts),
		LastSentAt:        now,
	}
	data, err := flows.EncodeSMSSession(session)
	if err != nil {
		return nil, err
	}
	if err := m.shared.vault.Store(ctx, vault.SMSSessionKey(userID), data); err != nil {
		return nil, err
	}
	return session, nil
}

/*
====================================
FLOW WIRING
====================================
*/

func (m *FactorManager) metricInc(id int) { m.shared.metrics.Inc(MetricID(id)) }

// resetLimiter clears the failure budget for userID. A failed reset leaves
// the old budget in place until it expires, so it is logged.
func (m *FactorManager) resetLimiter(ctx context.Context, l *limiters.AttemptLimiter, userID string, method Method) {
	if err := l.Reset(ctx, userID); err != nil {
		m.shared.logger.WarnContext(ctx, "attempt limiter reset failed",
			slog.String("user_id", userID),
			slog.String("method", string(method)),
			slog.Any("error", err))
	}
}

func isAttemptsExceeded(err error) bool { return errors.Is(err, limiters.ErrAttemptsExceeded) }

func (m *FactorManager) totpDeps() flows.TOTPDeps {
	return flows.TOTPDeps{
		EnforceReplayProtection: m.cfg.TOTP.EnforceReplayProtection,
		Now:                     m.shared.now,
		GetTOTPRecord: func(ctx context.Context, userID string) (*flows.TOTPRecord, error) {
			data, ok, err := m.shared.retrieve(ctx, vault.TOTPSettingsKey(userID))
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrFactorSecretMissing
			}
			record, err := flows.DecodeTOTPRecord(data)
			if err != nil {
				return nil, autherr.WithKind(autherr.KindConfiguration, "totp.record", err)
			}
			return record, nil
		},
		AdvanceCounter: func(ctx context.Context, userID string, prev *flows.TOTPRecord, counter int64) (bool, error) {
			old, err := flows.EncodeTOTPRecord(prev)
			if err != nil {
				return false, err
			}
			next := *prev
			next.LastUsedCounter = counter
			data, err := flows.EncodeTOTPRecord(&next)
			if err != nil {
				return false, err
			}
			return m.shared.swap(ctx, vault.TOTPSettingsKey(userID), old, data)
		},
		VerifyCode: func(secret, code string, now time.Time) (int64, bool, error) {
			return m.engine.ValidateCounter(secret, code, now, m.cfg.TOTP.Skew)
		},
		CheckLimiter:         m.totpLimiter.Check,
		RecordLimiterFailure: m.totpLimiter.RecordFailure,
		ResetLimiter:         m.totpLimiter.Reset,
		IsRateLimited:        isAttemptsExceeded,
		MetricInc:            m.metricInc,
		Metrics: flows.TOTPMetrics{
			TOTPFailure:    int(MetricTOTPFailure),
			TOTPSuccess:    int(MetricTOTPSuccess),
			ReplayDetected: int(MetricReplayDetected),
		},
		Errors: flows.TOTPErrors{
			EngineNotReady:  ErrEngineNotReady,
			TOTPUnavailable: ErrTOTPUnavailable,
			TOTPInvalid:     ErrTOTPInvalid,
			TOTPRateLimited: ErrTOTPRateLimited,
		},
	}
}

func (m *FactorManager) backupDeps() flows.BackupCodeDeps {
	return flows.BackupCodeDeps{
		BackupCodeCount:  m.cfg.BackupCodes.Count,
		BackupCodeLength: m.cfg.BackupCodes.Length,
		Now:              m.shared.now,
		ReplaceBackupCodes: func(ctx context.Context, userID string, set *flows.BackupCodeSet) error {
			data, err := flows.EncodeBackupCodeSet(set)
			if err != nil {
				return err
			}
			return m.shared.vault.Store(ctx, vault.BackupCodesKey(userID), data)
		},
		ConsumeBackupCode: func(ctx context.Context, userID string, hash [32]byte) (bool, error) {
			key := vault.BackupCodesKey(userID)
			for i := 0; i < maxBackupSwapRetries; i++ {
				data, ok, err := m.shared.retrieve(ctx, key)
				if err != nil || !ok {
					return false, err
				}
				set, err := flows.DecodeBackupCodeSet(data)
				if err != nil {
					return false, autherr.WithKind(autherr.KindConfiguration, "backup.record", err)
				}
				idx := set.Contains(hash)
				if idx < 0 {
					return false, nil
				}
				next, err := flows.EncodeBackupCodeSet(set.Without(idx))
				if err != nil {
					return false, err
				}
				swapped, err := m.shared.swap(ctx, key, data, next)
				if err != nil {
					return false, err
				}
				if swapped {
					return true, nil
				}
			}
			return false, ErrBackupCodeUnavailable
		},
		CheckLimiter:         m.backupLimiter.Check,
		RecordLimiterFailure: m.backupLimiter.RecordFailure,
		ResetLimiter:         m.backupLimiter.Reset,
		IsRateLimited:        isAttemptsExceeded,
		RandomIndex:          m.randomIndex,
		MetricInc:            m.metricInc,
		Metrics: flows.BackupCodeMetrics{
			BackupCodeUsed:        int(MetricBackupCodeUsed),
			BackupCodeFailed:      int(MetricBackupCodeFailed),
			BackupCodeRegenerated: int(MetricBackupCodeRegenerated),
		},
		Errors: flows.BackupCodeErrors{
			EngineNotReady:        ErrEngineNotReady,
			BackupCodeUnavailable: ErrBackupCodeUnavailable,
			BackupCodeInvalid:     ErrBackupCodeInvalid,
			BackupCodeRateLimited: ErrBackupCodeRateLimited,
		},
	}
}

func (m *FactorManager) smsDeps() flows.SMSDeps {
	return flows.SMSDeps{
		Now: m.shared.now,
		GetSession: func(ctx context.Context, userID string) (*flows.SMSSession, error) {
			data, ok, err := m.shared.retrieve(ctx, vault.SMSSessionKey(userID))
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrSMSSessionNotFound
			}
			session, err := flows.DecodeSMSSession(data)
			if err != nil {
				return nil, autherr.WithKind(autherr.KindConfiguration, "sms.session", err)
			}
			return session, nil
		},
		SwapSession: func(ctx context.Context, userID string, prev, next *flows.SMSSession) (bool, error) {
			old, err := flows.EncodeSMSSession(prev)
			if err != nil {
				return false, err
			}
			var data []byte
			if next != nil {
				if data, err = flows.EncodeSMSSession(next); err != nil {
					return false, err
				}
			}
			return m.shared.swap(ctx, vault.SMSSessionKey(userID), old, data)
		},
		VerifyWithProvider: m.sms.VerifyCode,
		MetricInc:          m.metricInc,
		Metrics: flows.SMSMetrics{
			SMSSuccess:          int(MetricSMSSuccess),
			SMSFailure:          int(MetricSMSFailure),
			SMSAttemptsExceeded: int(MetricSMSAttemptsExceeded),
		},
		Errors: flows.SMSErrors{
			EngineNotReady:   ErrEngineNotReady,
			SessionNotFound:  ErrSMSSessionNotFound,
			SessionExpired:   ErrSMSSessionExpired,
			AttemptsExceeded: ErrSMSAttemptsExceeded,
			CodeInvalid:      ErrSMSCodeInvalid,
			Unavailable:      ErrSMSUnavailable,
		},
	}
}

func validUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUserID
	}
	return nil
}

func validRequest(userID string, method Method) error {
	if err := validUser(userID); err != nil {
		return err
	}
	if !method.valid() {
		return ErrUnsupportedMethod
	}
	return nil
}
