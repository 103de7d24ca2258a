package credcore

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/credcore/internal"
)

// errCodeAttemptsExceeded means the code was wiped after too many wrong
// guesses. Callers see it as ErrCodeInvalid.
var errCodeAttemptsExceeded = fmt.Errorf("%w: too many attempts", ErrCodeInvalid)

type codeManager struct {
	config CodeConfig
}

func newCodeManager(cfg CodeConfig) *codeManager {
	return &codeManager{config: cfg}
}

func (m *codeManager) ttl(p CodePurpose) time.Duration {
	if p == PurposePasswordReset {
		return m.config.PasswordResetTTL
	}
	return m.config.EmailVerificationTTL
}

// issue stores a fresh code for p, replacing any outstanding one, and
// returns the plaintext for delivery.
func (m *codeManager) issue(a *Account, p CodePurpose, now time.Time) (string, time.Time, error) {
	code, err := internal.NewNumericCode(m.config.Digits)
	if err != nil {
		return "", time.Time{}, err
	}
	expires := now.Add(m.ttl(p))
	a.setCode(p, &OutstandingCode{
		Hash:      internal.HashCode(code),
		ExpiresAt: expires,
	})
	return code, expires, nil
}

// check validates submitted without consuming it. Wrong guesses are
// counted on the account and an expired or exhausted code is cleared, so
// callers must persist a even when check fails.
func (m *codeManager) check(a *Account, p CodePurpose, submitted string, now time.Time) error {
	stored := a.code(p)
	if stored == nil {
		return ErrCodeInvalid
	}
	if !now.Before(stored.ExpiresAt) {
		a.setCode(p, nil)
		return ErrCodeExpired
	}

	submitted = strings.TrimSpace(submitted)
	if len(submitted) != m.config.Digits || !isDigits(submitted) || !internal.MatchHash(submitted, stored.Hash) {
		stored.Attempts++
		if stored.Attempts >= m.config.MaxAttempts {
			a.setCode(p, nil)
			return errCodeAttemptsExceeded
		}
		return ErrCodeInvalid
	}
	return nil
}

// consume is check followed by clearing the slot on success.
func (m *codeManager) consume(a *Account, p CodePurpose, submitted string, now time.Time) error {
	if err := m.check(a, p, submitted, now); err != nil {
		return err
	}
	a.setCode(p, nil)
	return nil
}
