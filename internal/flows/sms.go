package flows

import (
	"context"
	"time"
)

const maxSessionSwapRetries = 4

type SMSMetrics struct {
	SMSSuccess          int
	SMSFailure          int
	SMSAttemptsExceeded int
}

type SMSErrors struct {
	EngineNotReady   error
	SessionNotFound  error
	SessionExpired   error
	AttemptsExceeded error
	CodeInvalid      error
	Unavailable      error
}

type SMSDeps struct {
	Now func() time.Time

	GetSession func(context.Context, string) (*SMSSession, error)
	// SwapSession replaces prev with next atomically; a nil next destroys it.
	SwapSession        func(context.Context, string, *SMSSession, *SMSSession) (bool, error)
	VerifyWithProvider func(ctx context.Context, target, code, providerSessionID string) (bool, error)

	MetricInc func(int)

	Metrics SMSMetrics
	Errors  SMSErrors
}

// RunVerifySMS checks code against the user's pending session. The attempt is
// counted before the channel is consulted, so a cancelled or failed provider
// call still spends it. The session is destroyed on success, on expiry and
// when the last attempt fails. It returns the session that was verified.
func RunVerifySMS(ctx context.Context, userID, code string, deps SMSDeps) (*SMSSession, error) {
	normalizeSMSDeps(&deps)

	if deps.GetSession == nil || deps.SwapSession == nil || deps.VerifyWithProvider == nil {
		return nil, deps.Errors.EngineNotReady
	}

	var session *SMSSession
	for i := 0; ; i++ {
		current, err := deps.GetSession(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !deps.Now().Before(current.ExpiresAt) {
			_, _ = deps.SwapSession(ctx, userID, current, nil)
			return nil, deps.Errors.SessionExpired
		}
		if current.Exhausted() {
			_, _ = deps.SwapSession(ctx, userID, current, nil)
			deps.MetricInc(deps.Metrics.SMSAttemptsExceeded)
			return nil, deps.Errors.AttemptsExceeded
		}

		next := *current
		next.AttemptsUsed++
		swapped, err := deps.SwapSession(ctx, userID, current, &next)
		if err != nil {
			return nil, err
		}
		if swapped {
			session = &next
			break
		}
		if i+1 >= maxSessionSwapRetries {
			return nil, deps.Errors.Unavailable
		}
	}

	ok, err := deps.VerifyWithProvider(ctx, session.Target, code, session.ProviderSessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		deps.MetricInc(deps.Metrics.SMSFailure)
		if session.Exhausted() {
			_, _ = deps.SwapSession(ctx, userID, session, nil)
			deps.MetricInc(deps.Metrics.SMSAttemptsExceeded)
			return nil, deps.Errors.AttemptsExceeded
		}
		return nil, deps.Errors.CodeInvalid
	}

	destroyed, err := deps.SwapSession(ctx, userID, session, nil)
	if err != nil {
		return nil, err
	}
	if !destroyed {
		// Another verifier consumed or replaced the session first.
		return nil, deps.Errors.SessionNotFound
	}

	deps.MetricInc(deps.Metrics.SMSSuccess)
	return session, nil
}

func normalizeSMSDeps(deps *SMSDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
}
