package credcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const maxDisplayNameRunes = 128

// Register creates an account, issues an email verification code, and
// returns a full token. A verified duplicate email fails with ErrEmailTaken;
// an unverified duplicate is discarded and replaced. The account exists even
// when the verification email cannot be sent; RegisterResult.DeliveryErr
// reports that case.
func (e *Engine) Register(ctx context.Context, displayName, email, password string) (*RegisterResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email = normalizeEmail(email)
	displayName = strings.TrimSpace(displayName)
	if !validEmail(email) || displayName == "" || utf8.RuneCountInString(displayName) > maxDisplayNameRunes {
		return nil, ErrInvalidInput
	}
	if err := e.config.Password.Policy.Validate(password); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWeakPassword, err)
	}

	wctx := writeContext(ctx)

	existing, err := e.store.FindByEmail(wctx, email)
	switch {
	case errors.Is(err, ErrAccountNotFound):
	case err != nil:
		return nil, e.fault("register lookup", err)
	case existing.EmailVerified:
		e.metricInc(MetricRegistrationRejected)
		return nil, ErrEmailTaken
	default:
		if err := e.store.Delete(wctx, existing.ID); err != nil && !errors.Is(err, ErrAccountNotFound) {
			return nil, e.fault("register supersede", err, zap.String("account_id", existing.ID))
		}
		e.log.Info("superseded unverified registration", zap.String("account_id", existing.ID))
		e.metricInc(MetricRegistrationSuperseded)
	}

	hash, err := e.hasher.Hash(password)
	if err != nil {
		return nil, e.fault("register hash", err)
	}

	now := e.clock.Now()
	acct := &Account{
		ID:           e.newID(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         RoleStandard,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	code, expires, err := e.codes.issue(acct, PurposeEmailVerification, now)
	if err != nil {
		return nil, e.fault("register code", err)
	}

	if err := e.store.Save(wctx, acct); err != nil {
		if errors.Is(err, ErrStoreConflict) {
			e.metricInc(MetricRegistrationRejected)
			return nil, ErrEmailTaken
		}
		return nil, e.fault("register save", err)
	}

	token, err := e.issueFull(acct)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRegistered)
	e.metricInc(MetricEmailCodeIssued)
	e.emitAudit(ctx, auditEventRegistered, true, acct.ID, nil, nil)

	res := &RegisterResult{
		Token:   token,
		Account: summarize(acct),
	}
	res.DeliveryErr = e.notify(ctx, acct.ID, acct.Email, NotifyEmailVerification, codePayload(acct, code, expires))
	return res, nil
}

func codePayload(a *Account, code string, expires time.Time) map[string]string {
	return map[string]string{
		PayloadCode:        code,
		PayloadExpiresAt:   expires.UTC().Format(time.RFC3339),
		PayloadDisplayName: a.DisplayName,
	}
}
