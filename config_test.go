package credcore

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "test defaults valid",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "zero threshold invalid",
			mutate: func(c *Config) {
				c.Lockout.Threshold = 0
			},
			wantValid: false,
		},
		{
			name: "failure delay too long invalid",
			mutate: func(c *Config) {
				c.Lockout.FailureDelay = time.Minute
			},
			wantValid: false,
		},
		{
			name: "pending longer than full invalid",
			mutate: func(c *Config) {
				c.Tokens.PendingTTL = 48 * time.Hour
			},
			wantValid: false,
		},
		{
			name: "blank audience invalid",
			mutate: func(c *Config) {
				c.Tokens.Audience = "   "
			},
			wantValid: false,
		},
		{
			name: "unknown signing method invalid",
			mutate: func(c *Config) {
				c.Tokens.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "ed25519 without keys invalid",
			mutate: func(c *Config) {
				c.Tokens.SigningMethod = "ed25519"
			},
			wantValid: false,
		},
		{
			name: "seven digit totp invalid",
			mutate: func(c *Config) {
				c.SecondFactor.Digits = 7
			},
			wantValid: false,
		},
		{
			name: "short sealing key invalid",
			mutate: func(c *Config) {
				c.SecondFactor.SealingKey = []byte("short")
			},
			wantValid: false,
		},
		{
			name: "code digits out of range invalid",
			mutate: func(c *Config) {
				c.Codes.Digits = 4
			},
			wantValid: false,
		},
		{
			name: "zero rate limit invalid",
			mutate: func(c *Config) {
				c.RateLimit.PasswordReset.Limit = 0
			},
			wantValid: false,
		},
		{
			name: "eight digit codes valid",
			mutate: func(c *Config) {
				c.Codes.Digits = 8
				c.SecondFactor.Digits = 8
			},
			wantValid: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultConfigNeedsOnlyKeys(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("defaults without signing keys must not validate")
	}
	cfg.Tokens.SigningMethod = "hs256"
	cfg.Tokens.PrivateKey = make([]byte, 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults plus a key must validate: %v", err)
	}
}

func TestWithConfigCopiesKeyMaterial(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg)
	cfg.Tokens.PrivateKey[0] = 'X'
	if b.config.Tokens.PrivateKey[0] == 'X' {
		t.Fatal("builder must not alias caller key bytes")
	}
}

func TestBuildRequiresStore(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without a store")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig()).WithStore(NewMemoryStore())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestSecurityReportFlagsWeakSettings(t *testing.T) {
	env := newTestEnv(t, testConfig())
	r := env.engine.SecurityReport()

	if r.SigningAlgorithm != "hs256" || r.LockoutThreshold != 5 || r.ResetRateLimit != "5/1h0m0s" {
		t.Fatalf("unexpected report %+v", r)
	}
	want := map[string]bool{
		"argon2 cost below default":    false,
		"failure delay disabled":       false,
		"totp secrets stored unsealed": false,
	}
	for _, w := range r.Warnings {
		if _, ok := want[w]; ok {
			want[w] = true
		}
	}
	for w, seen := range want {
		if !seen {
			t.Fatalf("expected warning %q in %v", w, r.Warnings)
		}
	}
}
