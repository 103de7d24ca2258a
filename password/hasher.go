package password

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnsupportedHash is returned when a stored hash is in neither the Argon2id
// PHC format nor a bcrypt format.
var ErrUnsupportedHash = errors.New("unsupported password hash format")

// Hasher hashes new passwords with Argon2id and verifies both Argon2id and
// legacy bcrypt hashes.
type Hasher struct {
	cfg Config
}

// NewHasher validates cfg against the package minimums.
func NewHasher(cfg Config) (*Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Hasher{cfg: cfg}, nil
}

// Hash returns an Argon2id PHC string for password. The bytes of password are
// used as given; no Unicode normalization happens here.
func (h *Hasher) Hash(password string) (string, error) {
	p := phc{
		params: h.cfg,
		salt:   make([]byte, h.cfg.SaltLength),
		key:    make([]byte, h.cfg.KeyLength),
	}
	if _, err := io.ReadFull(rand.Reader, p.salt); err != nil {
		return "", err
	}
	p.key = p.derive(password)
	return p.String(), nil
}

// Verify reports whether password matches encodedHash. A mismatch is not an
// error; a malformed hash is.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, err
		}
	}

	stored, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(stored.derive(password), stored.key) == 1, nil
}

// NeedsRehash reports whether encodedHash should be replaced by a fresh Hash
// of the same password. bcrypt hashes always need it; unparseable hashes never
// do, since Verify already rejected them.
func (h *Hasher) NeedsRehash(encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return true
	}
	stored, err := parsePHC(encodedHash)
	return err == nil && stored.params.weakerThan(h.cfg)
}

func isBcrypt(encodedHash string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(encodedHash, prefix) {
			return true
		}
	}
	return false
}
