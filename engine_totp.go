package credcore

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"
)

// BeginEnrollment stores a fresh secret in the pending state and returns the
// provisioning payload. Calling it again while pending replaces the
// secret. An enabled factor must be disabled first.
func (e *Engine) BeginEnrollment(ctx context.Context, accountID string) (*Provisioning, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	acct, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		return nil, e.passOrFault("enrollment lookup", err, zap.String("account_id", accountID))
	}
	if acct.SecondFactor.Enabled() {
		return nil, ErrSecondFactorAlreadyEnabled
	}

	prov, err := e.totp.generate(acct.Email)
	if err != nil {
		return nil, e.fault("generate totp secret", err, zap.String("account_id", accountID))
	}
	sealed, err := e.totp.seal(prov.Secret)
	if err != nil {
		return nil, e.fault("seal totp secret", err, zap.String("account_id", accountID))
	}
	pending, err := NewPendingEnrollment(sealed)
	if err != nil {
		return nil, e.fault("seal totp secret", err, zap.String("account_id", accountID))
	}

	now := e.clock.Now()
	_, err = e.store.Update(writeContext(ctx), accountID, func(a *Account) error {
		if a.SecondFactor.Enabled() {
			return ErrSecondFactorAlreadyEnabled
		}
		a.SecondFactor = pending
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, e.passOrFault("begin enrollment", err, zap.String("account_id", accountID))
	}

	e.metricInc(MetricEnrollmentStarted)
	e.emitAudit(ctx, auditEventEnrollmentStarted, true, accountID, nil, nil)
	return &prov, nil
}

// ConfirmEnrollment enables the pending factor once code matches it. A
// wrong code leaves the enrollment pending. If a concurrent call already
// enabled the factor, a code that matches the enabled secret also succeeds.
func (e *Engine) ConfirmEnrollment(ctx context.Context, accountID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}

	now := e.clock.Now()
	var enabledNow bool
	_, err := e.store.Update(writeContext(ctx), accountID, func(a *Account) error {
		enabledNow = false

		if stored, ok := a.SecondFactor.EnabledSecret(); ok {
			secret, err := e.totp.open(stored)
			if err != nil {
				return err
			}
			step, err := e.totp.verify(secret, code, now, a.SecondFactor.LastStep())
			if err != nil {
				return err
			}
			a.SecondFactor = a.SecondFactor.withStep(step)
			return nil
		}

		stored, ok := a.SecondFactor.PendingSecret()
		if !ok {
			return ErrSecondFactorNotPending
		}
		secret, err := e.totp.open(stored)
		if err != nil {
			return err
		}
		step, err := e.totp.verify(secret, code, now, 0)
		if err != nil {
			return err
		}
		enabled, err := NewEnabledSecondFactor(stored, step)
		if err != nil {
			return err
		}
		a.SecondFactor = enabled
		a.UpdatedAt = now
		enabledNow = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSecondFactorInvalid) {
			e.metricInc(MetricSecondFactorInvalid)
			e.emitAudit(ctx, auditEventSecondFactorFailure, false, accountID, err, func() map[string]string {
				return map[string]string{"stage": "enrollment"}
			})
		}
		return e.passOrFault("confirm enrollment", err, zap.String("account_id", accountID))
	}

	if enabledNow {
		e.metricInc(MetricEnrollmentConfirmed)
		e.emitAudit(ctx, auditEventSecondFactorEnabled, true, accountID, nil, nil)
	}
	return nil
}

// DisableSecondFactor turns the factor off. An enabled factor requires a
// valid code; an unfinished enrollment is simply discarded. The secret and
// every trusted device are removed in the same write.
func (e *Engine) DisableSecondFactor(ctx context.Context, accountID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}

	now := e.clock.Now()
	var removed int
	_, err := e.store.Update(writeContext(ctx), accountID, func(a *Account) error {
		removed = 0
		if stored, ok := a.SecondFactor.EnabledSecret(); ok {
			secret, err := e.totp.open(stored)
			if err != nil {
				return err
			}
			if _, err := e.totp.verify(secret, code, now, a.SecondFactor.LastStep()); err != nil {
				return err
			}
		}
		removed = len(a.TrustedDevices)
		a.SecondFactor = SecondFactor{}
		a.TrustedDevices = nil
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSecondFactorInvalid) {
			e.metricInc(MetricSecondFactorInvalid)
			e.emitAudit(ctx, auditEventSecondFactorFailure, false, accountID, err, func() map[string]string {
				return map[string]string{"stage": "disable"}
			})
		}
		return e.passOrFault("disable second factor", err, zap.String("account_id", accountID))
	}

	e.metricInc(MetricSecondFactorDisabled)
	e.emitAudit(ctx, auditEventSecondFactorDisabled, true, accountID, nil, func() map[string]string {
		return map[string]string{"devices_removed": strconv.Itoa(removed)}
	})
	return nil
}
