package credcore

import (
	"errors"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/credcore/internal"
	"github.com/MrEthical07/credcore/jwt"
	"github.com/MrEthical07/credcore/password"
	"github.com/MrEthical07/credcore/ratelimit"
)

// Builder collects an engine's collaborators. Configure it during
// initialization, call Build once, and discard it.
type Builder struct {
	config   Config
	store    AccountStore
	notifier Notifier
	log      *zap.Logger
	clock    clockwork.Clock

	resetLimiter  ratelimit.Limiter
	verifyLimiter ratelimit.Limiter

	auditSinks []AuditSink
	registerer prometheus.Registerer

	built bool
}

// New returns a builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The builder keeps its own
// copy of key material.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the account store. Required.
func (b *Builder) WithStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithNotifier sets the outbound notifier. Without one, notifications are
// dropped after a debug log line.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithLogger sets the structured logger. Defaults to zap.NewNop.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// WithClock injects the time source used for lockouts, codes, devices,
// tokens, the in-memory limiters and the failure delay.
func (b *Builder) WithClock(clock clockwork.Clock) *Builder {
	b.clock = clock
	return b
}

// WithPasswordResetLimiter replaces the in-memory reset limiter, for
// example with ratelimit.NewRedis when several processes share budgets.
func (b *Builder) WithPasswordResetLimiter(l ratelimit.Limiter) *Builder {
	b.resetLimiter = l
	return b
}

// WithEmailVerificationLimiter replaces the in-memory verification limiter.
func (b *Builder) WithEmailVerificationLimiter(l ratelimit.Limiter) *Builder {
	b.verifyLimiter = l
	return b
}

// WithAuditSink adds sinks and enables auditing.
func (b *Builder) WithAuditSink(sinks ...AuditSink) *Builder {
	b.auditSinks = append(b.auditSinks, sinks...)
	b.config.Audit.Enabled = true
	return b
}

// WithMetricsRegisterer registers the engine counters on reg.
func (b *Builder) WithMetricsRegisterer(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("credcore")

	clock := b.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	// -------- PASSWORDS --------
	hasher, err := password.NewHasher(cfg.Password.Hash)
	if err != nil {
		return nil, err
	}
	// Burn one hash up front; unknown-email logins verify against it.
	dummy, err := internal.NewToken(24)
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(dummy)
	if err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	tokens, err := jwt.NewManager(jwt.Config{
		Issuer:        cfg.Tokens.Issuer,
		Audience:      cfg.Tokens.Audience,
		FullTTL:       cfg.Tokens.FullTTL,
		PendingTTL:    cfg.Tokens.PendingTTL,
		Skew:          cfg.Tokens.Skew,
		SigningMethod: jwt.SigningMethod(cfg.Tokens.SigningMethod),
		PrivateKey:    cfg.Tokens.PrivateKey,
		PublicKey:     cfg.Tokens.PublicKey,
		KeyID:         cfg.Tokens.KeyID,
		VerifyKeys:    cfg.Tokens.VerifyKeys,
	}, clock)
	if err != nil {
		return nil, err
	}

	// -------- SECOND FACTOR --------
	totpMgr, err := newTOTPManager(cfg.SecondFactor)
	if err != nil {
		return nil, err
	}

	// -------- LIMITERS --------
	var owned []*ratelimit.Memory
	resetLimiter := b.resetLimiter
	if resetLimiter == nil {
		m, err := ratelimit.NewMemory(cfg.RateLimit.PasswordReset, clock)
		if err != nil {
			return nil, err
		}
		owned = append(owned, m)
		resetLimiter = m
	}
	verifyLimiter := b.verifyLimiter
	if verifyLimiter == nil {
		m, err := ratelimit.NewMemory(cfg.RateLimit.EmailVerification, clock)
		if err != nil {
			closeLimiters(owned)
			return nil, err
		}
		owned = append(owned, m)
		verifyLimiter = m
	}

	// -------- METRICS --------
	metrics, err := NewMetrics(b.registerer)
	if err != nil {
		closeLimiters(owned)
		return nil, err
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = discardNotifier{log: log}
	}

	b.built = true

	return &Engine{
		config:        cfg,
		store:         b.store,
		notifier:      notifier,
		log:           log,
		clock:         clock,
		hasher:        hasher,
		tokens:        tokens,
		totp:          totpMgr,
		codes:         newCodeManager(cfg.Codes),
		resetLimiter:  resetLimiter,
		verifyLimiter: verifyLimiter,
		ownedLimiters: owned,
		audit:         newAuditDispatcher(cfg.Audit, log, b.auditSinks...),
		metrics:       metrics,
		dummyHash:     dummyHash,
		newID:         uuid.NewString,
		newDeviceID:   func() string { return ksuid.New().String() },
	}, nil
}

func closeLimiters(ls []*ratelimit.Memory) {
	for _, l := range ls {
		l.Close()
	}
}
