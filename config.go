package credcore

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/MrEthical07/credcore/password"
	"github.com/MrEthical07/credcore/ratelimit"
)

// Config is the full engine policy. Start from DefaultConfig and override
// fields; Build validates the result.
type Config struct {
	Password     PasswordConfig     `yaml:"password" toml:"password"`
	Lockout      LockoutConfig      `yaml:"lockout" toml:"lockout"`
	Tokens       TokenConfig        `yaml:"tokens" toml:"tokens"`
	SecondFactor SecondFactorConfig `yaml:"second_factor" toml:"second_factor"`
	Devices      DeviceConfig       `yaml:"devices" toml:"devices"`
	Codes        CodeConfig         `yaml:"codes" toml:"codes"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit" toml:"rate_limit"`
	Audit        AuditConfig        `yaml:"audit" toml:"audit"`
}

// PasswordConfig controls hashing cost and the composition policy.
type PasswordConfig struct {
	Hash   password.Config `yaml:"hash" toml:"hash"`
	Policy password.Policy `yaml:"policy" toml:"policy"`
	// UpgradeOnLogin re-hashes legacy or weaker hashes after a successful
	// password check.
	UpgradeOnLogin bool `yaml:"upgrade_on_login" toml:"upgrade_on_login"`
}

// LockoutConfig controls failed-attempt accounting.
type LockoutConfig struct {
	Threshold int           `yaml:"threshold" toml:"threshold"`
	Duration  time.Duration `yaml:"duration" toml:"duration"`
	// FailureDelay is slept after every mismatch. The caller's context
	// does not shorten it.
	FailureDelay time.Duration `yaml:"failure_delay" toml:"failure_delay"`
	// CountSecondFactorFailures makes wrong TOTP codes at login count
	// toward the same lockout threshold.
	CountSecondFactorFailures bool `yaml:"count_second_factor_failures" toml:"count_second_factor_failures"`
}

// TokenConfig is passed to the jwt package. Key material is not read from
// config files; load it through the environment.
type TokenConfig struct {
	Issuer        string            `yaml:"issuer" toml:"issuer"`
	Audience      string            `yaml:"audience" toml:"audience"`
	FullTTL       time.Duration     `yaml:"full_ttl" toml:"full_ttl"`
	PendingTTL    time.Duration     `yaml:"pending_ttl" toml:"pending_ttl"`
	Skew          time.Duration     `yaml:"skew" toml:"skew"`
	SigningMethod string            `yaml:"signing_method" toml:"signing_method"`
	KeyID         string            `yaml:"key_id" toml:"key_id"`
	PrivateKey    []byte            `yaml:"-" toml:"-"`
	PublicKey     []byte            `yaml:"-" toml:"-"`
	VerifyKeys    map[string][]byte `yaml:"-" toml:"-"`
}

// SecondFactorConfig controls TOTP parameters.
type SecondFactorConfig struct {
	// Issuer is the label authenticator apps show next to the account.
	Issuer string `yaml:"issuer" toml:"issuer"`
	Digits int    `yaml:"digits" toml:"digits"`
	Period uint   `yaml:"period" toml:"period"`
	// Skew is how many steps either side of the current one are accepted.
	Skew       uint `yaml:"skew" toml:"skew"`
	SecretSize uint `yaml:"secret_size" toml:"secret_size"`
	// ReplayProtection rejects a code for a step that was already used.
	ReplayProtection bool `yaml:"replay_protection" toml:"replay_protection"`
	// SealingKey, when 32 bytes, encrypts secrets at rest.
	SealingKey []byte `yaml:"-" toml:"-"`
	QRSize     int    `yaml:"qr_size" toml:"qr_size"`
}

// DeviceConfig controls trusted devices.
type DeviceConfig struct {
	TrustTTL time.Duration `yaml:"trust_ttl" toml:"trust_ttl"`
	// LabelMaxLength truncates caller-supplied labels.
	LabelMaxLength int `yaml:"label_max_length" toml:"label_max_length"`
}

// CodeConfig controls verification and reset codes.
type CodeConfig struct {
	Digits               int           `yaml:"digits" toml:"digits"`
	EmailVerificationTTL time.Duration `yaml:"email_verification_ttl" toml:"email_verification_ttl"`
	PasswordResetTTL     time.Duration `yaml:"password_reset_ttl" toml:"password_reset_ttl"`
	// MaxAttempts wrong submissions clear the outstanding code.
	MaxAttempts int `yaml:"max_attempts" toml:"max_attempts"`
	// NotifyUnknownAddress sends a "no account" notice for reset requests
	// to unknown addresses instead of silently acknowledging them.
	NotifyUnknownAddress bool `yaml:"notify_unknown_address" toml:"notify_unknown_address"`
}

// RateLimitConfig holds the budgets for code issuance. They are only used
// when Build creates the in-memory limiters itself.
type RateLimitConfig struct {
	PasswordReset     ratelimit.Config `yaml:"password_reset" toml:"password_reset"`
	EmailVerification ratelimit.Config `yaml:"email_verification" toml:"email_verification"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled" toml:"enabled"`
	BufferSize int  `yaml:"buffer_size" toml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full" toml:"drop_if_full"`
}

// DefaultConfig returns production defaults. Signing keys are left empty.
func DefaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Hash:           password.DefaultConfig(),
			Policy:         password.DefaultPolicy(),
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			Threshold:                 5,
			Duration:                  30 * time.Minute,
			FailureDelay:              time.Second,
			CountSecondFactorFailures: true,
		},
		Tokens: TokenConfig{
			Issuer:        "credcore",
			Audience:      "credcore-clients",
			FullTTL:       24 * time.Hour,
			PendingTTL:    15 * time.Minute,
			Skew:          30 * time.Second,
			SigningMethod: "ed25519",
		},
		SecondFactor: SecondFactorConfig{
			Issuer:           "credcore",
			Digits:           6,
			Period:           30,
			Skew:             1,
			SecretSize:       20,
			ReplayProtection: true,
			QRSize:           256,
		},
		Devices: DeviceConfig{
			TrustTTL:       30 * 24 * time.Hour,
			LabelMaxLength: 64,
		},
		Codes: CodeConfig{
			Digits:               6,
			EmailVerificationTTL: 24 * time.Hour,
			PasswordResetTTL:     10 * time.Minute,
			MaxAttempts:          5,
		},
		RateLimit: RateLimitConfig{
			PasswordReset: ratelimit.Config{
				Limit:         5,
				Window:        60 * time.Minute,
				SweepInterval: 10 * time.Minute,
			},
			EmailVerification: ratelimit.Config{
				Limit:         5,
				Window:        60 * time.Minute,
				SweepInterval: 10 * time.Minute,
			},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Tokens.PrivateKey = slices.Clone(cfg.Tokens.PrivateKey)
	out.Tokens.PublicKey = slices.Clone(cfg.Tokens.PublicKey)
	if cfg.Tokens.VerifyKeys != nil {
		out.Tokens.VerifyKeys = make(map[string][]byte, len(cfg.Tokens.VerifyKeys))
		for kid, key := range maps.All(cfg.Tokens.VerifyKeys) {
			out.Tokens.VerifyKeys[kid] = slices.Clone(key)
		}
	}
	out.SecondFactor.SealingKey = slices.Clone(cfg.SecondFactor.SealingKey)
	return out
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}
	if c.Lockout.FailureDelay < 0 || c.Lockout.FailureDelay > 10*time.Second {
		return errors.New("Lockout FailureDelay must be between 0 and 10s")
	}

	// Tokens
	if c.Tokens.FullTTL <= 0 || c.Tokens.PendingTTL <= 0 {
		return errors.New("Tokens FullTTL and PendingTTL must be > 0")
	}
	if c.Tokens.PendingTTL > c.Tokens.FullTTL {
		return errors.New("Tokens PendingTTL must not exceed FullTTL")
	}
	if strings.TrimSpace(c.Tokens.Issuer) == "" || strings.TrimSpace(c.Tokens.Audience) == "" {
		return errors.New("Tokens Issuer and Audience must be set")
	}
	switch c.Tokens.SigningMethod {
	case "ed25519":
		if len(c.Tokens.PublicKey) == 0 && len(c.Tokens.VerifyKeys) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
		if len(c.Tokens.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	case "hs256":
		if len(c.Tokens.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	default:
		return errors.New("unsupported Tokens SigningMethod")
	}

	// Second factor
	if c.SecondFactor.Digits != 6 && c.SecondFactor.Digits != 8 {
		return errors.New("SecondFactor Digits must be 6 or 8")
	}
	if c.SecondFactor.Period == 0 {
		return errors.New("SecondFactor Period must be > 0")
	}
	if c.SecondFactor.Skew > 3 {
		return errors.New("SecondFactor Skew must be <= 3")
	}
	if c.SecondFactor.SecretSize < 16 {
		return errors.New("SecondFactor SecretSize must be >= 16")
	}
	if n := len(c.SecondFactor.SealingKey); n != 0 && n != 32 {
		return errors.New("SecondFactor SealingKey must be 32 bytes")
	}

	// Devices
	if c.Devices.TrustTTL <= 0 {
		return errors.New("Devices TrustTTL must be > 0")
	}

	// Codes
	if c.Codes.Digits < 6 || c.Codes.Digits > 10 {
		return errors.New("Codes Digits must be between 6 and 10")
	}
	if c.Codes.EmailVerificationTTL <= 0 || c.Codes.PasswordResetTTL <= 0 {
		return errors.New("Codes TTLs must be > 0")
	}
	if c.Codes.MaxAttempts <= 0 {
		return errors.New("Codes MaxAttempts must be > 0")
	}

	// Rate limits
	if err := c.RateLimit.PasswordReset.Validate(); err != nil {
		return errors.New("RateLimit PasswordReset requires Limit and Window > 0")
	}
	if err := c.RateLimit.EmailVerification.Validate(); err != nil {
		return errors.New("RateLimit EmailVerification requires Limit and Window > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
