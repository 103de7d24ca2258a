package credcore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ChangePassword replaces the password of an authenticated account after
// re-checking the current one. A wrong current password counts toward the
// lockout threshold like a failed login.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	acct, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		return e.passOrFault("change password lookup", err, zap.String("account_id", accountID))
	}
	if err := lockedError(acct, e.clock.Now()); err != nil {
		return err
	}
	if !acct.HasPassword() {
		return ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(oldPassword, acct.PasswordHash)
	if err != nil {
		return e.fault("change password verify", err, zap.String("account_id", accountID))
	}
	if !ok {
		return e.rejectCredential(ctx, accountID, ErrInvalidCredentials)
	}
	if err := e.config.Password.Policy.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %w", ErrWeakPassword, err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.fault("change password hash", err, zap.String("account_id", accountID))
	}

	now := e.clock.Now()
	verified := acct.PasswordHash
	_, err = e.store.Update(writeContext(ctx), accountID, func(a *Account) error {
		// Someone else changed it since we checked.
		if a.PasswordHash != verified {
			return ErrInvalidCredentials
		}
		a.PasswordHash = hash
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return e.passOrFault("change password", err, zap.String("account_id", accountID))
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, auditEventPasswordChanged, true, accountID, nil, nil)
	_ = e.notify(ctx, accountID, acct.Email, NotifyPasswordChanged, map[string]string{PayloadDisplayName: acct.DisplayName})
	return nil
}

// UnlockAccount clears the failure counter and any lock. It is an
// operator action and does not check who asks.
func (e *Engine) UnlockAccount(ctx context.Context, accountID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	now := e.clock.Now()
	var wasLocked bool
	_, err := e.store.Update(writeContext(ctx), accountID, func(a *Account) error {
		wasLocked = a.LockedUntil.After(now)
		clearFailures(a)
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return e.passOrFault("unlock account", err, zap.String("account_id", accountID))
	}

	if wasLocked {
		e.metricInc(MetricAccountUnlocked)
	}
	e.emitAudit(ctx, auditEventAccountUnlocked, true, accountID, nil, func() map[string]string {
		if wasLocked {
			return map[string]string{"was_locked": "true"}
		}
		return nil
	})
	return nil
}
