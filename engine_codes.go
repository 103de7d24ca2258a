package credcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/credcore/ratelimit"
)

type codeMetrics struct {
	issued, verified, expired, invalid, rateLimited, exceeded MetricID
}

var purposeMetrics = map[CodePurpose]codeMetrics{
	PurposeEmailVerification: {
		issued:      MetricEmailCodeIssued,
		verified:    MetricEmailCodeVerified,
		expired:     MetricEmailCodeExpired,
		invalid:     MetricEmailCodeInvalid,
		rateLimited: MetricEmailCodeRateLimited,
		exceeded:    MetricEmailCodeAttemptsExceeded,
	},
	PurposePasswordReset: {
		issued:      MetricResetCodeIssued,
		verified:    MetricResetCodeVerified,
		expired:     MetricResetCodeExpired,
		invalid:     MetricResetCodeInvalid,
		rateLimited: MetricResetCodeRateLimited,
		exceeded:    MetricResetCodeAttemptsExceeded,
	},
}

// allowIssue charges one request against the purpose's limiter. The key is
// the normalized address, so unknown addresses are limited exactly like
// known ones.
func (e *Engine) allowIssue(ctx context.Context, limiter ratelimit.Limiter, p CodePurpose, email string) error {
	d, err := limiter.Allow(ctx, p.String()+":"+email)
	if err != nil {
		return e.fault("rate limiter", err, zap.Stringer("purpose", p))
	}
	if d.Allowed {
		return nil
	}

	e.metricInc(purposeMetrics[p].rateLimited)
	rl := &RateLimitError{Retry: d.RetryAfter}
	e.emitAudit(ctx, auditEventRateLimited, false, "", rl, func() map[string]string {
		return map[string]string{"purpose": p.String()}
	})
	return rl
}

// issueCode stores a new code for p on the account and sends it. The
// stored code stands even when delivery fails.
func (e *Engine) issueCode(ctx context.Context, accountID string, p CodePurpose, kind NotificationKind) error {
	now := e.clock.Now()
	var (
		code    string
		expires = now
		dest    string
		acct    *Account
	)
	acct, err := e.store.Update(writeContext(ctx), accountID, func(a *Account) error {
		var err error
		code, expires, err = e.codes.issue(a, p, now)
		if err != nil {
			return err
		}
		dest = a.Email
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return e.passOrFault("issue code", err, zap.String("account_id", accountID), zap.Stringer("purpose", p))
	}

	e.metricInc(purposeMetrics[p].issued)
	return e.notify(ctx, accountID, dest, kind, codePayload(acct, code, expires))
}

// redeemCode checks a submitted code for the account behind email. With
// consume set a match clears the slot and apply runs in the same write.
// Attempt counts and expiry clean-up are persisted even when the check
// fails.
func (e *Engine) redeemCode(ctx context.Context, email string, p CodePurpose, code string, consume bool, apply func(*Account)) (*Account, error) {
	m := purposeMetrics[p]

	acct, err := e.store.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrAccountNotFound) {
		e.metricInc(m.invalid)
		return nil, ErrCodeInvalid
	}
	if err != nil {
		return nil, e.fault("code lookup", err, zap.Stringer("purpose", p))
	}

	now := e.clock.Now()
	var outcome error
	updated, err := e.store.Update(writeContext(ctx), acct.ID, func(a *Account) error {
		if consume {
			outcome = e.codes.consume(a, p, code, now)
		} else {
			outcome = e.codes.check(a, p, code, now)
		}
		if outcome == nil && apply != nil {
			apply(a)
		}
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, e.passOrFault("redeem code", err, zap.String("account_id", acct.ID), zap.Stringer("purpose", p))
	}

	switch {
	case outcome == nil:
		e.metricInc(m.verified)
		return updated, nil
	case errors.Is(outcome, ErrCodeExpired):
		e.metricInc(m.expired)
	case errors.Is(outcome, errCodeAttemptsExceeded):
		e.metricInc(m.exceeded)
	default:
		e.metricInc(m.invalid)
	}
	return nil, outcome
}
