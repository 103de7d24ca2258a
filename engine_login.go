package credcore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Login checks email and password. An unknown email and a wrong password
// both return ErrInvalidCredentials after the same hash work and delay. A
// locked account returns *LockedError before the password is compared.
// When a second factor is enabled and the request does not come from a
// trusted device, the result carries a pending token instead of a full one.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email = normalizeEmail(email)
	acct, err := e.store.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, e.fault("login lookup", err)
	}

	if acct == nil || !acct.HasPassword() {
		_, _ = e.hasher.Verify(password, e.dummyHash)
		e.failureDelay()
		e.metricInc(MetricLoginInvalid)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if err := lockedError(acct, e.clock.Now()); err != nil {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginFailure, false, acct.ID, err, nil)
		return nil, err
	}

	ok, err := e.hasher.Verify(password, acct.PasswordHash)
	if err != nil {
		return nil, e.fault("login verify", err, zap.String("account_id", acct.ID))
	}
	if !ok {
		return nil, e.rejectCredential(ctx, acct.ID, ErrInvalidCredentials)
	}

	var newHash string
	if e.config.Password.UpgradeOnLogin && e.hasher.NeedsRehash(acct.PasswordHash) {
		newHash, err = e.hasher.Hash(password)
		if err != nil {
			e.log.Warn("password rehash failed", zap.String("account_id", acct.ID), zap.Error(err))
			newHash = ""
		}
	}

	return e.completePrimaryAuth(ctx, acct.ID, acct.PasswordHash, newHash)
}

// rejectCredential records a failed check toward the lockout threshold,
// then sleeps the failure delay and returns failErr.
func (e *Engine) rejectCredential(ctx context.Context, accountID string, failErr error) error {
	now := e.clock.Now()
	var locked bool
	_, updErr := e.store.Update(writeContext(ctx), accountID, func(a *Account) error {
		locked = recordFailure(a, e.config.Lockout, now)
		a.UpdatedAt = now
		return nil
	})

	e.failureDelay()

	if updErr != nil && !errors.Is(updErr, ErrAccountNotFound) {
		return e.fault("record failure", updErr, zap.String("account_id", accountID))
	}

	if errors.Is(failErr, ErrInvalidCredentials) {
		e.metricInc(MetricLoginInvalid)
		e.emitAudit(ctx, auditEventLoginFailure, false, accountID, failErr, nil)
	}
	if locked {
		e.metricInc(MetricLockoutTriggered)
		e.log.Info("account locked", zap.String("account_id", accountID))
		e.emitAudit(ctx, auditEventAccountLocked, true, accountID, nil, func() map[string]string {
			return map[string]string{"until": now.Add(e.config.Lockout.Duration).UTC().Format(time.RFC3339)}
		})
	}
	return failErr
}

// completePrimaryAuth finishes a successful first factor. oldHash/newHash
// carry an optional rehash; the swap only happens if the stored hash is
// still the one that was verified.
func (e *Engine) completePrimaryAuth(ctx context.Context, accountID, oldHash, newHash string) (*LoginResult, error) {
	now := e.clock.Now()
	fingerprint := fingerprintFromContext(ctx)
	ip, ua := clientIPFromContext(ctx), userAgentFromContext(ctx)

	var challenge, bypassed, rehashed bool
	acct, err := e.store.Update(writeContext(ctx), accountID, func(a *Account) error {
		if err := lockedError(a, now); err != nil {
			return err
		}
		challenge, bypassed, rehashed = false, false, false

		purgeExpiredDevices(a, now)
		if newHash != "" && a.PasswordHash == oldHash {
			a.PasswordHash = newHash
			rehashed = true
		}

		if a.SecondFactor.Enabled() {
			if _, ok := trustedDevice(a, fingerprint, now); ok {
				bypassed = true
			} else {
				challenge = true
			}
		}
		if !challenge {
			clearFailures(a)
			a.LastLoginAt = now
			a.LastLoginIP = ip
			a.LastUserAgent = ua
		}
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountLocked) {
			e.metricInc(MetricLoginLocked)
			e.emitAudit(ctx, auditEventLoginFailure, false, accountID, err, nil)
		}
		return nil, e.passOrFault("complete login", err, zap.String("account_id", accountID))
	}

	if rehashed {
		e.metricInc(MetricPasswordRehashed)
	}

	if challenge {
		pending, err := e.tokens.IssuePending(acct.ID)
		if err != nil {
			return nil, e.fault("issue pending token", err, zap.String("account_id", acct.ID))
		}
		e.metricInc(MetricLoginChallenge)
		e.emitAudit(ctx, auditEventLoginChallenge, true, acct.ID, nil, nil)
		return &LoginResult{
			PendingToken:      pending,
			ChallengeRequired: true,
			Challenge:         ChallengeTOTP,
			Account:           summarize(acct),
		}, nil
	}

	token, err := e.issueFull(acct)
	if err != nil {
		return nil, err
	}
	if bypassed {
		e.metricInc(MetricDeviceBypass)
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, acct.ID, nil, func() map[string]string {
		if bypassed {
			return map[string]string{"trusted_device": "true"}
		}
		return nil
	})

	return &LoginResult{
		Token:   token,
		Account: summarize(acct),
	}, nil
}
