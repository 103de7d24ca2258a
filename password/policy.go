package password

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrPolicy is wrapped by every composition failure returned from
// Policy.Validate.
var ErrPolicy = errors.New("password does not meet policy")

// Policy describes the composition rules for new passwords. The zero value
// is not useful; start from DefaultPolicy.
type Policy struct {
	MinLength     int  `yaml:"min_length" toml:"min_length"`
	MaxLength     int  `yaml:"max_length" toml:"max_length"`
	RequireUpper  bool `yaml:"require_upper" toml:"require_upper"`
	RequireLower  bool `yaml:"require_lower" toml:"require_lower"`
	RequireDigit  bool `yaml:"require_digit" toml:"require_digit"`
	RequireSymbol bool `yaml:"require_symbol" toml:"require_symbol"`
}

// DefaultPolicy requires mixed case, a digit and a symbol.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     8,
		MaxLength:     128,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

// Validate returns nil when pw satisfies p, or an error wrapping ErrPolicy
// that names the first unmet rule.
func (p Policy) Validate(pw string) error {
	n := len([]rune(pw))
	if n < p.MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPolicy, p.MinLength)
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrPolicy, p.MaxLength)
	}

	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	switch {
	case p.RequireUpper && !upper:
		return fmt.Errorf("%w: needs an upper-case letter", ErrPolicy)
	case p.RequireLower && !lower:
		return fmt.Errorf("%w: needs a lower-case letter", ErrPolicy)
	case p.RequireDigit && !digit:
		return fmt.Errorf("%w: needs a digit", ErrPolicy)
	case p.RequireSymbol && !symbol:
		return fmt.Errorf("%w: needs a symbol", ErrPolicy)
	}
	return nil
}
