package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const sealedPrefix = "sb1:"

// ErrUnseal is returned when a sealed value cannot be opened with the
// configured key.
var ErrUnseal = errors.New("cannot open sealed value")

// Sealer encrypts short secrets at rest. A Sealer without a key passes
// values through unchanged, which keeps development setups simple.
type Sealer struct {
	key   [32]byte
	armed bool
}

// NewSealer accepts an empty key or exactly 32 bytes.
func NewSealer(key []byte) (*Sealer, error) {
	s := &Sealer{}
	switch len(key) {
	case 0:
	case 32:
		copy(s.key[:], key)
		s.armed = true
	default:
		return nil, errors.New("sealing key must be 32 bytes")
	}
	return s, nil
}

// Seal returns an opaque string for plaintext.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if !s.armed {
		return plaintext, nil
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(box), nil
}

// Open reverses Seal. Unsealed values stored before a key was configured
// are returned as is.
func (s *Sealer) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if !s.armed {
		return "", ErrUnseal
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil || len(raw) < 24+secretbox.Overhead {
		return "", ErrUnseal
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	out, ok := secretbox.Open(nil, raw[24:], &nonce, &s.key)
	if !ok {
		return "", ErrUnseal
	}
	return string(out), nil
}
