package password

import "fmt"

// Lower bounds accepted for both configuration and stored hashes.
const (
	minMemoryKB    uint32 = 8 * 1024
	minTime        uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

// Config holds Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32 `yaml:"memory" toml:"memory"`
	Time        uint32 `yaml:"time" toml:"time"`
	Parallelism uint8  `yaml:"parallelism" toml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length" toml:"salt_length"`
	KeyLength   uint32 `yaml:"key_length" toml:"key_length"`
}

// DefaultConfig returns the parameters used for new hashes when none are
// configured.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password: memory %d KiB below minimum %d", c.Memory, minMemoryKB)
	case c.Time < minTime:
		return fmt.Errorf("password: time %d below minimum %d", c.Time, minTime)
	case c.Parallelism < minParallelism:
		return fmt.Errorf("password: parallelism %d below minimum %d", c.Parallelism, minParallelism)
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password: salt length %d below minimum %d", c.SaltLength, minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password: key length %d below minimum %d", c.KeyLength, minKeyLength)
	}
	return nil
}

// weakerThan reports whether hashes made with c should be replaced by hashes
// made with target.
func (c Config) weakerThan(target Config) bool {
	return c.Memory < target.Memory ||
		c.Time < target.Time ||
		c.Parallelism < target.Parallelism ||
		c.KeyLength != target.KeyLength
}
