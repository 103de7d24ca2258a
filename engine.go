package credcore

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/MrEthical07/credcore/jwt"
	"github.com/MrEthical07/credcore/password"
	"github.com/MrEthical07/credcore/ratelimit"
)

// Engine runs every account-security operation. Build one with New().
// It is safe for concurrent use; per-account consistency comes from
// AccountStore.Update.
type Engine struct {
	config   Config
	store    AccountStore
	notifier Notifier
	log      *zap.Logger
	clock    clockwork.Clock

	hasher *password.Hasher
	tokens *jwt.Manager
	totp   *totpManager
	codes  *codeManager

	resetLimiter  ratelimit.Limiter
	verifyLimiter ratelimit.Limiter
	ownedLimiters []*ratelimit.Memory

	audit   *auditDispatcher
	metrics *Metrics

	// dummyHash is verified against for unknown emails so both branches
	// cost one hash computation.
	dummyHash   string
	newID       func() string
	newDeviceID func() string
}

// Close stops background workers owned by the engine: the audit dispatcher
// and any limiters Build created.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	for _, l := range e.ownedLimiters {
		l.Close()
	}
}

// AuditDropped reports how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Metrics returns the engine's counters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot copies the engine's counts for exporters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.Metrics().Snapshot()
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// failureDelay sleeps for the configured brute-force delay. It takes no
// context on purpose: a client that hangs up still pays the full delay.
func (e *Engine) failureDelay() {
	if d := e.config.Lockout.FailureDelay; d > 0 {
		e.clock.Sleep(d)
	}
}

// fault logs an unexpected collaborator failure and hides it behind
// ErrUnavailable.
func (e *Engine) fault(op string, err error, fields ...zap.Field) error {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	e.log.Error("backend failure", fields...)
	return ErrUnavailable
}

// passOrFault returns domain errors raised inside an update callback as is
// and turns anything else into a fault.
func (e *Engine) passOrFault(op string, err error, fields ...zap.Field) error {
	if isDomainError(err) {
		return err
	}
	return e.fault(op, err, fields...)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		ErrAccountLocked,
		ErrAccountNotFound,
		ErrInvalidCredentials,
		ErrSecondFactorInvalid,
		ErrSecondFactorNotConfigured,
		ErrSecondFactorAlreadyEnabled,
		ErrSecondFactorNotPending,
		ErrCodeExpired,
		ErrCodeInvalid,
		ErrDeviceNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeContext detaches mutations from caller cancellation so a committed
// change is never half applied because the client went away.
func writeContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func lockedError(a *Account, now time.Time) error {
	if a.LockedUntil.After(now) {
		return &LockedError{Until: a.LockedUntil, now: now}
	}
	return nil
}

func (e *Engine) verifyToken(token string, want jwt.ScopeKind) (*jwt.Claims, error) {
	claims, err := e.tokens.Verify(token, want)
	switch {
	case err == nil:
		e.metricInc(MetricTokenValid)
	case errors.Is(err, jwt.ErrExpired):
		e.metricInc(MetricTokenExpired)
	case errors.Is(err, jwt.ErrNotYetValid):
		e.metricInc(MetricTokenNotYetValid)
	case errors.Is(err, jwt.ErrWrongScope):
		e.metricInc(MetricTokenWrongScope)
	default:
		e.metricInc(MetricTokenMalformed)
	}
	return claims, err
}

func (e *Engine) issueFull(a *Account) (string, error) {
	if !a.Role.Valid() {
		return "", e.fault("issue token", errors.New("stored role is not recognised"), zap.String("account_id", a.ID))
	}
	tok, err := e.tokens.IssueFull(a.ID, string(a.Role))
	if err != nil {
		return "", e.fault("issue token", err, zap.String("account_id", a.ID))
	}
	return tok, nil
}

// Authenticate verifies a full token and re-reads the account, so a lock or
// role change applies to tokens issued before it.
func (e *Engine) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.verifyToken(token, jwt.KindFull)
	if err != nil {
		return nil, err
	}

	acct, err := e.store.FindByID(ctx, claims.Subject)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, e.fault("authenticate", err)
	}
	if err := lockedError(acct, e.clock.Now()); err != nil {
		return nil, err
	}
	if !acct.Role.Valid() {
		return nil, e.fault("authenticate", errors.New("stored role is not recognised"), zap.String("account_id", acct.ID))
	}

	return &Principal{
		AccountID: acct.ID,
		Email:     acct.Email,
		Role:      acct.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}
