package jwt

import (
	"encoding/json"
	"errors"
)

// ScopeKind identifies which Scope variant a caller expects.
type ScopeKind uint8

const (
	// KindFull is a complete session with a role.
	KindFull ScopeKind = iota + 1
	// KindPendingSecondFactor only permits completing a TOTP challenge.
	KindPendingSecondFactor
)

func (k ScopeKind) String() string {
	switch k {
	case KindFull:
		return "full"
	case KindPendingSecondFactor:
		return "pending_second_factor"
	default:
		return "unknown"
	}
}

// Scope is either Full or PendingSecondFactor.
type Scope interface {
	Kind() ScopeKind
	isScope()
}

// Full grants a session with Role.
type Full struct {
	Role string
}

func (Full) Kind() ScopeKind { return KindFull }
func (Full) isScope()        {}

// PendingSecondFactor marks a token issued between password and TOTP checks.
type PendingSecondFactor struct{}

func (PendingSecondFactor) Kind() ScopeKind { return KindPendingSecondFactor }
func (PendingSecondFactor) isScope()        {}

var errBadScope = errors.New("invalid scope claim")

// scopeClaim is the wire form of Scope inside the token payload.
type scopeClaim struct {
	Scope
}

type scopeWire struct {
	Kind string `json:"kind"`
	Role string `json:"role,omitempty"`
}

func (s scopeClaim) MarshalJSON() ([]byte, error) {
	switch v := s.Scope.(type) {
	case Full:
		if v.Role == "" {
			return nil, errBadScope
		}
		return json.Marshal(scopeWire{Kind: KindFull.String(), Role: v.Role})
	case PendingSecondFactor:
		return json.Marshal(scopeWire{Kind: KindPendingSecondFactor.String()})
	default:
		return nil, errBadScope
	}
}

func (s *scopeClaim) UnmarshalJSON(data []byte) error {
	var w scopeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case KindFull.String():
		if w.Role == "" {
			return errBadScope
		}
		s.Scope = Full{Role: w.Role}
	case KindPendingSecondFactor.String():
		if w.Role != "" {
			return errBadScope
		}
		s.Scope = PendingSecondFactor{}
	default:
		return errBadScope
	}
	return nil
}
