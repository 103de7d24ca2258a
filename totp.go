package credcore

import (
	"bytes"
	"crypto/subtle"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/MrEthical07/credcore/internal"
)

// errTOTPReplay is a correct code for a step that was already accepted.
var errTOTPReplay = fmt.Errorf("%w: code already used", ErrSecondFactorInvalid)

type totpManager struct {
	config SecondFactorConfig
	sealer *internal.Sealer
}

func newTOTPManager(cfg SecondFactorConfig) (*totpManager, error) {
	sealer, err := internal.NewSealer(cfg.SealingKey)
	if err != nil {
		return nil, err
	}
	return &totpManager{config: cfg, sealer: sealer}, nil
}

func (m *totpManager) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    m.config.Period,
		Skew:      m.config.Skew,
		Digits:    otp.Digits(m.config.Digits),
		Algorithm: otp.AlgorithmSHA1,
	}
}

// generate creates a fresh secret and its provisioning material.
func (m *totpManager) generate(accountName string) (Provisioning, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: accountName,
		Period:      m.config.Period,
		SecretSize:  m.config.SecretSize,
		Digits:      otp.Digits(m.config.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Provisioning{}, err
	}

	p := Provisioning{
		Secret: key.Secret(),
		URI:    key.URL(),
	}
	if m.config.QRSize > 0 {
		p.QRCodePNG, err = renderQR(p.URI, m.config.QRSize)
		if err != nil {
			return Provisioning{}, err
		}
	}
	return p, nil
}

func renderQR(content string, size int) ([]byte, error) {
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return nil, err
	}
	code, err = barcode.Scale(code, size, size)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// seal and open convert between the plaintext secret and its stored form.
// Without a sealing key both are identity functions.
func (m *totpManager) seal(secret string) (string, error) {
	return m.sealer.Seal(secret)
}

func (m *totpManager) open(stored string) (string, error) {
	return m.sealer.Open(stored)
}

// verify checks code against every step within the skew window and
// returns the matching step. Steps at or below lastStep are refused when
// replay protection is on.
func (m *totpManager) verify(secret, code string, now time.Time, lastStep int64) (int64, error) {
	code = strings.TrimSpace(code)
	if len(code) != m.config.Digits || !isDigits(code) {
		return 0, ErrSecondFactorInvalid
	}

	period := int64(m.config.Period)
	current := now.Unix() / period
	skew := int64(m.config.Skew)
	opts := m.opts()

	replayed := false
	for step := current - skew; step <= current+skew; step++ {
		if step < 0 {
			continue
		}
		want, err := totp.GenerateCodeCustom(secret, time.Unix(step*period, 0).UTC(), opts)
		if err != nil {
			return 0, err
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) != 1 {
			continue
		}
		if m.config.ReplayProtection && step <= lastStep {
			replayed = true
			continue
		}
		return step, nil
	}

	if replayed {
		return 0, errTOTPReplay
	}
	return 0, ErrSecondFactorInvalid
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
