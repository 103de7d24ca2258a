package credcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/credcore/jwt"
)

// VerifySecondFactor completes a login that returned a pending token. A
// correct code yields a full token. With device.Remember set, the calling
// device is trusted for Devices.TrustTTL and its new id is returned; an
// already-trusted device yields no id.
//
// Wrong codes count toward the lockout threshold unless
// Lockout.CountSecondFactorFailures is off.
func (e *Engine) VerifySecondFactor(ctx context.Context, pendingToken, code string, device DeviceRequest) (*SecondFactorResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.verifyToken(pendingToken, jwt.KindPendingSecondFactor)
	if err != nil {
		e.emitAudit(ctx, auditEventSecondFactorFailure, false, "", err, nil)
		return nil, err
	}

	now := e.clock.Now()
	fingerprint := fingerprintFromContext(ctx)
	ip, ua := clientIPFromContext(ctx), userAgentFromContext(ctx)
	label := clampLabel(device.Label, e.config.Devices.LabelMaxLength)

	var (
		outcome  error
		locked   bool
		deviceID string
	)
	acct, err := e.store.Update(writeContext(ctx), claims.Subject, func(a *Account) error {
		outcome, locked, deviceID = nil, false, ""

		if err := lockedError(a, now); err != nil {
			return err
		}
		stored, ok := a.SecondFactor.EnabledSecret()
		if !ok {
			return ErrSecondFactorNotConfigured
		}
		secret, err := e.totp.open(stored)
		if err != nil {
			return err
		}

		step, err := e.totp.verify(secret, code, now, a.SecondFactor.LastStep())
		if err != nil {
			if !errors.Is(err, ErrSecondFactorInvalid) {
				return err
			}
			if !e.config.Lockout.CountSecondFactorFailures {
				return err
			}
			outcome = err
			locked = recordFailure(a, e.config.Lockout, now)
			a.UpdatedAt = now
			return nil
		}

		a.SecondFactor = a.SecondFactor.withStep(step)
		clearFailures(a)
		purgeExpiredDevices(a, now)
		// Requests without a fingerprint are never remembered.
		if device.Remember && fingerprint != "" {
			if _, trusted := trustedDevice(a, fingerprint, now); !trusted {
				d := TrustedDevice{
					ID:          e.newDeviceID(),
					Fingerprint: fingerprint,
					Label:       label,
					CreatedAt:   now,
					ExpiresAt:   now.Add(e.config.Devices.TrustTTL),
				}
				a.TrustedDevices = append(a.TrustedDevices, d)
				deviceID = d.ID
			}
		}
		a.LastLoginAt = now
		a.LastLoginIP = ip
		a.LastUserAgent = ua
		a.UpdatedAt = now
		return nil
	})
	if err == nil && outcome != nil {
		err = outcome
	}
	if err != nil {
		return nil, e.secondFactorFailure(ctx, claims.Subject, err, locked)
	}

	token, err := e.issueFull(acct)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSecondFactorSuccess)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventSecondFactorSuccess, true, acct.ID, nil, nil)
	if deviceID != "" {
		e.metricInc(MetricDeviceTrusted)
		e.emitAudit(ctx, auditEventDeviceTrusted, true, acct.ID, nil, func() map[string]string {
			return map[string]string{"device_id": deviceID}
		})
	}

	return &SecondFactorResult{
		Token:    token,
		DeviceID: deviceID,
		Account:  summarize(acct),
	}, nil
}

func (e *Engine) secondFactorFailure(ctx context.Context, accountID string, err error, locked bool) error {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		// The token outlived its account.
		e.metricInc(MetricSecondFactorInvalid)
		return ErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		e.metricInc(MetricLoginLocked)
	case errors.Is(err, ErrSecondFactorNotConfigured):
		e.metricInc(MetricSecondFactorNotConfigured)
		e.log.Warn("pending token for account without second factor", zap.String("account_id", accountID))
	case errors.Is(err, errTOTPReplay):
		e.metricInc(MetricSecondFactorReplay)
		e.failureDelay()
	case errors.Is(err, ErrSecondFactorInvalid):
		e.metricInc(MetricSecondFactorInvalid)
		e.failureDelay()
	default:
		return e.fault("verify second factor", err, zap.String("account_id", accountID))
	}

	e.emitAudit(ctx, auditEventSecondFactorFailure, false, accountID, err, nil)
	if locked {
		e.metricInc(MetricLockoutTriggered)
		e.emitAudit(ctx, auditEventAccountLocked, true, accountID, nil, nil)
	}
	return err
}
