package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/go-mail/mail"
	"go.uber.org/zap"

	"github.com/MrEthical07/credcore"
)

// SMTPConfig describes the relay used for outbound mail.
type SMTPConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	From     string `yaml:"from" toml:"from"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"-" toml:"-"`
	// TLSMode is "starttls" (default), "ssl" or "none".
	TLSMode            string `yaml:"tls_mode" toml:"tls_mode"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" toml:"insecure_skip_verify"`
}

type mailSender interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTP sends notifications as plain-text email.
type SMTP struct {
	from   string
	dialer mailSender
	log    *zap.Logger
}

// NewSMTP builds a sender for cfg.
func NewSMTP(cfg SMTPConfig, log *zap.Logger) (*SMTP, error) {
	if cfg.Host == "" || cfg.Port <= 0 || cfg.From == "" {
		return nil, errors.New("notify: smtp host, port and from are required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	switch cfg.TLSMode {
	case "", "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		return nil, fmt.Errorf("notify: unknown smtp tls mode %q", cfg.TLSMode)
	}

	return &SMTP{
		from:   cfg.From,
		dialer: d,
		log:    log.Named("smtp").With(zap.String("host", cfg.Host), zap.Int("port", cfg.Port)),
	}, nil
}

// Send implements credcore.Notifier. The relay dial is not cancellable, so
// ctx is only checked before dialing.
func (s *SMTP) Send(ctx context.Context, destination string, kind credcore.NotificationKind, payload map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body, err := Render(kind, payload)
	if err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", destination)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		s.log.Error("smtp send failed", zap.String("kind", string(kind)), zap.Error(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	s.log.Debug("email sent", zap.String("kind", string(kind)))
	return nil
}

var _ credcore.Notifier = (*SMTP)(nil)
