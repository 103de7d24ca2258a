// Package logging builds the zap logger shared by the credcore binary and
// its stores and notifiers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the encoder and level.
type Config struct {
	// Level is debug, info, warn or error. Defaults to info, or debug in
	// development.
	Level string `yaml:"level" toml:"level"`
	// Development switches to the colored console encoder.
	Development bool   `yaml:"development" toml:"development"`
	Service     string `yaml:"service" toml:"service"`
}

// ParseLevel maps a level name to zapcore. Unknown names are an error.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("logging: unknown level %q", s)
	}
}

// New builds a logger writing to stdout.
func New(cfg Config) (*zap.Logger, error) {
	return NewWriter(cfg, os.Stdout)
}

// NewWriter builds a logger writing to w.
func NewWriter(cfg Config, w io.Writer) (*zap.Logger, error) {
	if cfg.Level == "" && cfg.Development {
		cfg.Level = "debug"
	}
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var enc zapcore.Encoder
	if cfg.Development {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	} else {
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(ec)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), lvl)
	log := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if cfg.Service != "" {
		log = log.With(zap.String("service", cfg.Service))
	}
	return log, nil
}
