package credcore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// RequestPasswordReset issues a reset code for a known address and sends
// it. An unknown address gets the same nil result; when
// Codes.NotifyUnknownAddress is set it is sent a "no account" notice
// instead. A failed send is logged and counted but never returned, so the
// result does not depend on whether the address has an account. Requests
// are rate limited per address whether or not an account exists.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return ErrInvalidInput
	}
	if err := e.allowIssue(ctx, e.resetLimiter, PurposePasswordReset, email); err != nil {
		return err
	}

	acct, err := e.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		e.emitAudit(ctx, auditEventResetRequested, true, "", nil, func() map[string]string {
			return map[string]string{"known": "false"}
		})
		if e.config.Codes.NotifyUnknownAddress {
			_ = e.notify(ctx, "", email, NotifyResetUnknownAccount, nil)
		}
		return nil
	}
	if err != nil {
		return e.fault("reset lookup", err)
	}

	err = e.issueCode(ctx, acct.ID, PurposePasswordReset, NotifyPasswordReset)
	if err != nil && !errors.Is(err, ErrDeliveryFailed) {
		return err
	}
	e.emitAudit(ctx, auditEventResetRequested, true, acct.ID, err, func() map[string]string {
		return map[string]string{"known": "true"}
	})
	return nil
}

// CheckPasswordResetCode validates a reset code without using it up, so a
// client can confirm the code before asking for a new password. Wrong
// guesses still count toward Codes.MaxAttempts.
func (e *Engine) CheckPasswordResetCode(ctx context.Context, email, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	_, err := e.redeemCode(ctx, email, PurposePasswordReset, code, false, nil)
	return err
}

// ResetPassword consumes the reset code and sets newPassword. The account
// is unlocked and, since the code proved control of the mailbox, its
// email is marked verified.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.config.Password.Policy.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %w", ErrWeakPassword, err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.fault("reset hash", err)
	}

	acct, err := e.redeemCode(ctx, email, PurposePasswordReset, code, true, func(a *Account) {
		a.PasswordHash = hash
		a.EmailVerified = true
		clearFailures(a)
	})
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordReset, false, "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordReset)
	e.emitAudit(ctx, auditEventPasswordReset, true, acct.ID, nil, nil)
	if err := e.notify(ctx, acct.ID, acct.Email, NotifyPasswordChanged, map[string]string{PayloadDisplayName: acct.DisplayName}); err != nil {
		e.log.Debug("password change notice not delivered", zap.String("account_id", acct.ID))
	}
	return nil
}
