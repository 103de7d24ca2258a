package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// NewNumericCode returns a uniformly random decimal string of the given
// length, read from crypto/rand.
func NewNumericCode(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	code := b.String()
	if len(code) != digits {
		return "", fmt.Errorf("invalid code generation length")
	}
	return code, nil
}

// NewToken returns n random bytes as unpadded base64url.
func NewToken(n int) (string, error) {
	if n < 16 {
		return "", errors.New("token too short")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashCode is the one-way form a code or token is stored in.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// MatchHash hashes submitted and compares it to storedHash in constant time.
func MatchHash(submitted, storedHash string) bool {
	got := HashCode(submitted)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}
