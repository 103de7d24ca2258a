package credcore

import (
	"strconv"
	"time"

	"github.com/MrEthical07/credcore/password"
)

// SecurityReport is a read-only summary of the policy an engine enforces,
// for startup logs and operator tooling. It never contains key material.
type SecurityReport struct {
	SigningAlgorithm     string          `yaml:"signing_algorithm" json:"signing_algorithm"`
	KeyRotation          bool            `yaml:"key_rotation" json:"key_rotation"`
	FullTTL              time.Duration   `yaml:"full_ttl" json:"full_ttl"`
	PendingTTL           time.Duration   `yaml:"pending_ttl" json:"pending_ttl"`
	Argon2               password.Config `yaml:"argon2" json:"argon2"`
	LegacyRehash         bool            `yaml:"legacy_rehash" json:"legacy_rehash"`
	LockoutThreshold     int             `yaml:"lockout_threshold" json:"lockout_threshold"`
	LockoutDuration      time.Duration   `yaml:"lockout_duration" json:"lockout_duration"`
	SecondFactorLockout  bool            `yaml:"second_factor_lockout" json:"second_factor_lockout"`
	TOTPReplayProtection bool            `yaml:"totp_replay_protection" json:"totp_replay_protection"`
	TOTPSecretsSealed    bool            `yaml:"totp_secrets_sealed" json:"totp_secrets_sealed"`
	DeviceTrustTTL       time.Duration   `yaml:"device_trust_ttl" json:"device_trust_ttl"`
	ResetRateLimit       string          `yaml:"reset_rate_limit" json:"reset_rate_limit"`
	VerifyRateLimit      string          `yaml:"verify_rate_limit" json:"verify_rate_limit"`
	AuditEnabled         bool            `yaml:"audit_enabled" json:"audit_enabled"`
	// Warnings lists settings that are legal but weaker than the defaults.
	Warnings []string `yaml:"warnings,omitempty" json:"warnings,omitempty"`
}

// SecurityReport describes the effective configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config
	def := DefaultConfig()

	r := SecurityReport{
		SigningAlgorithm:     cfg.Tokens.SigningMethod,
		KeyRotation:          len(cfg.Tokens.VerifyKeys) > 0,
		FullTTL:              cfg.Tokens.FullTTL,
		PendingTTL:           cfg.Tokens.PendingTTL,
		Argon2:               cfg.Password.Hash,
		LegacyRehash:         cfg.Password.UpgradeOnLogin,
		LockoutThreshold:     cfg.Lockout.Threshold,
		LockoutDuration:      cfg.Lockout.Duration,
		SecondFactorLockout:  cfg.Lockout.CountSecondFactorFailures,
		TOTPReplayProtection: cfg.SecondFactor.ReplayProtection,
		TOTPSecretsSealed:    len(cfg.SecondFactor.SealingKey) == 32,
		DeviceTrustTTL:       cfg.Devices.TrustTTL,
		ResetRateLimit:       budget(cfg.RateLimit.PasswordReset.Limit, cfg.RateLimit.PasswordReset.Window),
		VerifyRateLimit:      budget(cfg.RateLimit.EmailVerification.Limit, cfg.RateLimit.EmailVerification.Window),
		AuditEnabled:         e.audit != nil,
	}

	if cfg.Password.Hash.Memory < def.Password.Hash.Memory || cfg.Password.Hash.Time < def.Password.Hash.Time {
		r.Warnings = append(r.Warnings, "argon2 cost below default")
	}
	if cfg.Lockout.FailureDelay == 0 {
		r.Warnings = append(r.Warnings, "failure delay disabled")
	}
	if !r.TOTPSecretsSealed {
		r.Warnings = append(r.Warnings, "totp secrets stored unsealed")
	}
	if !cfg.SecondFactor.ReplayProtection {
		r.Warnings = append(r.Warnings, "totp replay protection off")
	}
	if cfg.Tokens.FullTTL > def.Tokens.FullTTL {
		r.Warnings = append(r.Warnings, "full token lifetime above default")
	}
	return r
}

func budget(limit int, window time.Duration) string {
	return strconv.Itoa(limit) + "/" + window.String()
}
