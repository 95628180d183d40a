package flows

import (
	"context"
	"time"
)

type TOTPMetrics struct {
	TOTPFailure    int
	TOTPSuccess    int
	ReplayDetected int
}

type TOTPErrors struct {
	EngineNotReady  error
	TOTPUnavailable error
	TOTPInvalid     error
	TOTPRateLimited error
}

type TOTPDeps struct {
	EnforceReplayProtection bool

	Now func() time.Time

	GetTOTPRecord func(context.Context, string) (*TOTPRecord, error)
	// AdvanceCounter persists counter as the last accepted step, provided the
	// stored record still equals prev. It reports false when it lost a race.
	AdvanceCounter func(context.Context, string, *TOTPRecord, int64) (bool, error)
	VerifyCode     func(string, string, time.Time) (int64, bool, error)

	CheckLimiter         func(context.Context, string) error
	RecordLimiterFailure func(context.Context, string) error
	ResetLimiter         func(context.Context, string) error
	IsRateLimited        func(error) bool

	MetricInc func(int)

	Metrics TOTPMetrics
	Errors  TOTPErrors
}

// RunVerifyTOTP checks code against the user's stored secret. With replay
// protection on, a step at or before the last accepted one is rejected.
func RunVerifyTOTP(ctx context.Context, userID, code string, deps TOTPDeps) error {
	normalizeTOTPDeps(&deps)

	if deps.GetTOTPRecord == nil || deps.VerifyCode == nil || deps.CheckLimiter == nil || deps.RecordLimiterFailure == nil || deps.ResetLimiter == nil {
		return deps.Errors.EngineNotReady
	}
	if deps.EnforceReplayProtection && deps.AdvanceCounter == nil {
		return deps.Errors.EngineNotReady
	}

	if err := deps.CheckLimiter(ctx, userID); err != nil {
		if deps.IsRateLimited(err) {
			return deps.Errors.TOTPRateLimited
		}
		return deps.Errors.TOTPUnavailable
	}

	record, err := deps.GetTOTPRecord(ctx, userID)
	if err != nil {
		return err
	}

	counter, ok, err := deps.VerifyCode(record.Secret, code, deps.Now())
	if err != nil {
		return err
	}
	if !ok {
		return recordTOTPFailure(ctx, userID, deps)
	}

	if deps.EnforceReplayProtection {
		if counter <= record.LastUsedCounter {
			deps.MetricInc(deps.Metrics.ReplayDetected)
			return recordTOTPFailure(ctx, userID, deps)
		}
		advanced, err := deps.AdvanceCounter(ctx, userID, record, counter)
		if err != nil {
			return err
		}
		if !advanced {
			deps.MetricInc(deps.Metrics.ReplayDetected)
			return recordTOTPFailure(ctx, userID, deps)
		}
	}

	_ = deps.ResetLimiter(ctx, userID)
	deps.MetricInc(deps.Metrics.TOTPSuccess)
	return nil
}

func recordTOTPFailure(ctx context.Context, userID string, deps TOTPDeps) error {
	deps.MetricInc(deps.Metrics.TOTPFailure)
	if err := deps.RecordLimiterFailure(ctx, userID); err != nil && !deps.IsRateLimited(err) {
		return deps.Errors.TOTPUnavailable
	}
	return deps.Errors.TOTPInvalid
}

func normalizeTOTPDeps(deps *TOTPDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}
}
