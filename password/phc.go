package password

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2idPrefix = "$argon2id$"

var errMalformedPHC = errors.New("password: malformed argon2id hash")

// b64 is the unpadded standard alphabet PHC strings use for salt and key.
var b64 = base64.RawStdEncoding

// phc is a decoded $argon2id$ string. params.SaltLength and params.KeyLength
// are taken from the decoded byte lengths.
type phc struct {
	params Config
	salt   []byte
	key    []byte
}

func (p phc) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2idPrefix, argon2.Version,
		p.params.Memory, p.params.Time, p.params.Parallelism,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

// derive runs Argon2id over password with p's parameters and salt.
func (p phc) derive(password string) []byte {
	return argon2.IDKey([]byte(password), p.salt,
		p.params.Time, p.params.Memory, p.params.Parallelism, uint32(len(p.key)))
}

func parsePHC(encoded string) (phc, error) {
	rest, ok := strings.CutPrefix(encoded, argon2idPrefix)
	if !ok {
		return phc{}, ErrUnsupportedHash
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return phc{}, errMalformedPHC
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil {
		return phc{}, errMalformedPHC
	}
	if version != argon2.Version {
		return phc{}, fmt.Errorf("password: argon2 version %d not supported", version)
	}

	var out phc
	if n, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d",
		&out.params.Memory, &out.params.Time, &out.params.Parallelism); err != nil || n != 3 {
		return phc{}, errMalformedPHC
	}
	// Sscanf stops at the last verb; reject trailing or reordered parameters.
	if fields[1] != fmt.Sprintf("m=%d,t=%d,p=%d", out.params.Memory, out.params.Time, out.params.Parallelism) {
		return phc{}, errMalformedPHC
	}

	var err error
	// Older encoders padded the base64; accept both.
	if out.salt, err = b64.DecodeString(strings.TrimRight(fields[2], "=")); err != nil {
		return phc{}, errMalformedPHC
	}
	if out.key, err = b64.DecodeString(strings.TrimRight(fields[3], "=")); err != nil {
		return phc{}, errMalformedPHC
	}
	out.params.SaltLength = uint32(len(out.salt))
	out.params.KeyLength = uint32(len(out.key))

	if len(out.key) == 0 {
		return phc{}, errMalformedPHC
	}
	if err := out.params.validate(); err != nil {
		return phc{}, fmt.Errorf("%w: %v", errMalformedPHC, err)
	}
	return out, nil
}
