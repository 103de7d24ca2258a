package credcore

import (
	"context"
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// LoginExternal signs in with an identity asserted by an outside provider.
// The caller is responsible for having verified the assertion.
//
// The account is found by email. An account not yet linked to the
// provider subject is linked only when the provider vouches for the email;
// otherwise the attempt is refused. Unknown emails get a new account
// without a password. From there the lock and second-factor rules of Login
// apply unchanged.
func (e *Engine) LoginExternal(ctx context.Context, assertion ExternalAssertion) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	identity := ExternalIdentity{
		Provider: strings.TrimSpace(assertion.Provider),
		Subject:  strings.TrimSpace(assertion.Subject),
	}
	email := normalizeEmail(assertion.Email)
	if identity.Provider == "" || identity.Subject == "" || !validEmail(email) {
		return nil, ErrInvalidInput
	}

	acct, err := e.findOrCreateExternal(ctx, identity, email, assertion)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	if err := lockedError(acct, now); err != nil {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginFailure, false, acct.ID, err, nil)
		return nil, err
	}

	if !slices.Contains(acct.ExternalIdentities, identity) {
		if !assertion.EmailVerified {
			e.log.Info("refusing to link unverified external identity",
				zap.String("account_id", acct.ID),
				zap.String("provider", identity.Provider),
			)
			e.emitAudit(ctx, auditEventExternalLogin, false, acct.ID, ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		_, err := e.store.Update(writeContext(ctx), acct.ID, func(a *Account) error {
			if slices.ContainsFunc(a.ExternalIdentities, func(x ExternalIdentity) bool {
				return x.Provider == identity.Provider && x.Subject != identity.Subject
			}) {
				return ErrInvalidCredentials
			}
			if !slices.Contains(a.ExternalIdentities, identity) {
				a.ExternalIdentities = append(a.ExternalIdentities, identity)
			}
			a.EmailVerified = true
			a.UpdatedAt = now
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				e.emitAudit(ctx, auditEventExternalLogin, false, acct.ID, err, nil)
			}
			return nil, e.passOrFault("link external identity", err, zap.String("account_id", acct.ID))
		}
	}

	res, err := e.completePrimaryAuth(ctx, acct.ID, "", "")
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginExternal)
	e.emitAudit(ctx, auditEventExternalLogin, true, acct.ID, nil, func() map[string]string {
		return map[string]string{"provider": identity.Provider}
	})
	return res, nil
}

func (e *Engine) findOrCreateExternal(ctx context.Context, identity ExternalIdentity, email string, assertion ExternalAssertion) (*Account, error) {
	acct, err := e.store.FindByEmail(ctx, email)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, e.fault("external lookup", err)
	}

	name := strings.TrimSpace(assertion.DisplayName)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	now := e.clock.Now()
	acct = &Account{
		ID:                 e.newID(),
		Email:              email,
		DisplayName:        name,
		Role:               RoleStandard,
		EmailVerified:      assertion.EmailVerified,
		ExternalIdentities: []ExternalIdentity{identity},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = e.store.Save(writeContext(ctx), acct)
	if errors.Is(err, ErrStoreConflict) {
		// Lost a race with another first login for the same email.
		acct, err = e.store.FindByEmail(ctx, email)
	}
	if err != nil {
		return nil, e.fault("external create", err)
	}
	e.metricInc(MetricRegistered)
	e.emitAudit(ctx, auditEventRegistered, true, acct.ID, nil, func() map[string]string {
		return map[string]string{"provider": identity.Provider}
	})
	return acct, nil
}
