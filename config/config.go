// Package config loads the credcore binary's settings: engine policy plus
// the infrastructure it is wired to.
//
// Load reads a YAML or TOML file (picked by extension), then a .env file
// if one exists, then CREDCORE_* environment variables. Secrets (signing
// keys, the TOTP sealing key, SMTP and Redis passwords) are only read from
// the environment.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/credcore"
	"github.com/MrEthical07/credcore/logging"
	"github.com/MrEthical07/credcore/notify"
)

// Settings is the whole file.
type Settings struct {
	Engine   credcore.Config  `yaml:"engine" toml:"engine"`
	Store    StoreSettings    `yaml:"store" toml:"store"`
	Redis    RedisSettings    `yaml:"redis" toml:"redis"`
	Notifier NotifierSettings `yaml:"notifier" toml:"notifier"`
	HTTP     HTTPSettings     `yaml:"http" toml:"http"`
	Log      logging.Config   `yaml:"log" toml:"log"`
	Limiter  LimiterSettings  `yaml:"limiter" toml:"limiter"`
}

// StoreSettings picks the account store. Driver is memory, redis, sqlite
// or postgres.
type StoreSettings struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"-" toml:"-"`
	Table  string `yaml:"table" toml:"table"`
}

type RedisSettings struct {
	Addrs    []string `yaml:"addrs" toml:"addrs"`
	Password string   `yaml:"-" toml:"-"`
	DB       int      `yaml:"db" toml:"db"`
	Prefix   string   `yaml:"prefix" toml:"prefix"`
}

// NotifierSettings picks log, smtp or kafka delivery.
type NotifierSettings struct {
	Kind  string             `yaml:"kind" toml:"kind"`
	SMTP  notify.SMTPConfig  `yaml:"smtp" toml:"smtp"`
	Kafka notify.KafkaConfig `yaml:"kafka" toml:"kafka"`
}

type HTTPSettings struct {
	Addr            string        `yaml:"addr" toml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// LimiterSettings picks memory or redis budgets for code issuance.
type LimiterSettings struct {
	Backend string `yaml:"backend" toml:"backend"`
}

// Default returns settings that run a single in-memory instance. Signing
// keys still have to come from the environment.
func Default() Settings {
	return Settings{
		Engine: credcore.DefaultConfig(),
		Store:  StoreSettings{Driver: "memory", Table: "credcore_accounts"},
		Redis:  RedisSettings{Addrs: []string{"localhost:6379"}, Prefix: "credcore:"},
		Notifier: NotifierSettings{
			Kind: "log",
			SMTP: notify.SMTPConfig{Port: 587, TLSMode: "starttls"},
		},
		HTTP: HTTPSettings{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log:     logging.Config{Level: "info", Service: "credcore"},
		Limiter: LimiterSettings{Backend: "memory"},
	}
}

// Load builds Settings from Default, the file at path (optional), .env and
// the environment, then validates the result.
func Load(path string) (*Settings, error) {
	s := Default()

	if path != "" {
		if err := decodeFile(path, &s); err != nil {
			return nil, err
		}
	}

	// .env is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}
	if err := s.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func decodeFile(path string, s *Settings) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, s)
	case ".toml":
		_, err = toml.Decode(string(b), s)
	default:
		return fmt.Errorf("config: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate checks the infrastructure choices and the engine policy.
func (s *Settings) Validate() error {
	switch s.Store.Driver {
	case "memory", "redis":
	case "sqlite", "postgres":
		if s.Store.DSN == "" {
			return fmt.Errorf("config: store driver %s needs CREDCORE_STORE_DSN", s.Store.Driver)
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", s.Store.Driver)
	}
	switch s.Notifier.Kind {
	case "log", "smtp", "kafka":
	default:
		return fmt.Errorf("config: unknown notifier %q", s.Notifier.Kind)
	}
	switch s.Limiter.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown limiter backend %q", s.Limiter.Backend)
	}
	if (s.Store.Driver == "redis" || s.Limiter.Backend == "redis") && len(s.Redis.Addrs) == 0 {
		return errors.New("config: redis addrs required")
	}
	if _, err := logging.ParseLevel(s.Log.Level); err != nil {
		return err
	}
	if err := s.Engine.Validate(); err != nil {
		return fmt.Errorf("config: engine: %w", err)
	}
	return nil
}

func (s *Settings) applyEnvOverrides() error {
	// ENGINE
	if v, ok := getEnvStr("CREDCORE_TOKEN_SIGNING_METHOD"); ok {
		s.Engine.Tokens.SigningMethod = strings.ToLower(v)
	}
	if v, ok := getEnvStr("CREDCORE_TOKEN_KEY_ID"); ok {
		s.Engine.Tokens.KeyID = v
	}
	if v, ok := getEnvDur("CREDCORE_TOKEN_FULL_TTL"); ok {
		s.Engine.Tokens.FullTTL = v
	}
	if v, ok := getEnvInt("CREDCORE_LOCKOUT_THRESHOLD"); ok {
		s.Engine.Lockout.Threshold = v
	}
	if v, ok := getEnvDur("CREDCORE_LOCKOUT_DURATION"); ok {
		s.Engine.Lockout.Duration = v
	}
	if v, ok := getEnvBool("CREDCORE_NOTIFY_UNKNOWN_ADDRESS"); ok {
		s.Engine.Codes.NotifyUnknownAddress = v
	}

	// SECRETS
	var err error
	if s.Engine.Tokens.PrivateKey, err = getEnvKey("CREDCORE_TOKEN_PRIVATE_KEY", s.Engine.Tokens.PrivateKey); err != nil {
		return err
	}
	if s.Engine.Tokens.PublicKey, err = getEnvKey("CREDCORE_TOKEN_PUBLIC_KEY", s.Engine.Tokens.PublicKey); err != nil {
		return err
	}
	if s.Engine.SecondFactor.SealingKey, err = getEnvKey("CREDCORE_TOTP_SEALING_KEY", s.Engine.SecondFactor.SealingKey); err != nil {
		return err
	}
	if v, ok := getEnvStr("CREDCORE_SMTP_PASSWORD"); ok {
		s.Notifier.SMTP.Password = v
	}
	if v, ok := getEnvStr("CREDCORE_REDIS_PASSWORD"); ok {
		s.Redis.Password = v
	}

	// INFRA
	if v, ok := getEnvStr("CREDCORE_STORE_DRIVER"); ok {
		s.Store.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("CREDCORE_STORE_DSN"); ok {
		s.Store.DSN = v
	}
	if v, ok := getEnvCSV("CREDCORE_REDIS_ADDRS"); ok {
		s.Redis.Addrs = v
	}
	if v, ok := getEnvStr("CREDCORE_NOTIFIER"); ok {
		s.Notifier.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvCSV("CREDCORE_KAFKA_BROKERS"); ok {
		s.Notifier.Kafka.Brokers = v
	}
	if v, ok := getEnvStr("CREDCORE_HTTP_ADDR"); ok {
		s.HTTP.Addr = v
	}
	if v, ok := getEnvStr("CREDCORE_LOG_LEVEL"); ok {
		s.Log.Level = v
	}
	if v, ok := getEnvBool("CREDCORE_LOG_DEV"); ok {
		s.Log.Development = v
	}
	return nil
}

// ---- env helpers ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}

// getEnvKey reads key material as PEM or standard base64. A malformed
// value is an error rather than a silent fallback.
func getEnvKey(key string, current []byte) ([]byte, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return current, nil
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(s), nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("config: %s is not base64: %w", key, err)
	}
	return b, nil
}
