package credcore

import (
	"context"
	"errors"
)

// RequestEmailVerification issues a new verification code, replacing any
// outstanding one, and sends it. Unknown and already verified addresses
// are acknowledged without sending. Delivery failures are logged and
// counted, not returned, so every branch answers the same. Requests are
// rate limited per address.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return ErrInvalidInput
	}
	if err := e.allowIssue(ctx, e.verifyLimiter, PurposeEmailVerification, email); err != nil {
		return err
	}

	acct, err := e.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return e.fault("verification lookup", err)
	}
	if acct.EmailVerified {
		return nil
	}

	err = e.issueCode(ctx, acct.ID, PurposeEmailVerification, NotifyEmailVerification)
	if err != nil && !errors.Is(err, ErrDeliveryFailed) {
		return err
	}
	e.emitAudit(ctx, auditEventEmailCodeIssued, true, acct.ID, err, nil)
	return nil
}

// VerifyEmail consumes the verification code and marks the address
// verified.
func (e *Engine) VerifyEmail(ctx context.Context, email, code string) error {
	if err := e.ready(); err != nil {
		return err
	}

	acct, err := e.redeemCode(ctx, email, PurposeEmailVerification, code, true, func(a *Account) {
		a.EmailVerified = true
	})
	if err != nil {
		e.emitAudit(ctx, auditEventEmailVerified, false, "", err, nil)
		return err
	}

	e.emitAudit(ctx, auditEventEmailVerified, true, acct.ID, nil, nil)
	return nil
}
