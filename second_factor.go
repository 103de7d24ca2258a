package credcore

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SecondFactorState is the tag of a SecondFactor.
type SecondFactorState uint8

const (
	SecondFactorDisabled SecondFactorState = iota
	SecondFactorPendingEnrollment
	SecondFactorEnabled
)

func (s SecondFactorState) String() string {
	switch s {
	case SecondFactorDisabled:
		return "disabled"
	case SecondFactorPendingEnrollment:
		return "pending"
	case SecondFactorEnabled:
		return "enabled"
	default:
		return "unknown"
	}
}

var errEmptySecret = errors.New("second factor secret must not be empty")

// SecondFactor is one of Disabled, PendingEnrollment(secret) or
// Enabled(secret). Its fields are unexported so an enabled factor without a
// secret cannot be built. The zero value is Disabled.
type SecondFactor struct {
	state  SecondFactorState
	secret string
	// lastStep is the most recent TOTP step accepted, for replay checks.
	lastStep int64
}

// NewPendingEnrollment holds secret until a code proves the user saved it.
func NewPendingEnrollment(secret string) (SecondFactor, error) {
	if secret == "" {
		return SecondFactor{}, errEmptySecret
	}
	return SecondFactor{state: SecondFactorPendingEnrollment, secret: secret}, nil
}

// NewEnabledSecondFactor is an active factor. lastStep may be zero.
func NewEnabledSecondFactor(secret string, lastStep int64) (SecondFactor, error) {
	if secret == "" {
		return SecondFactor{}, errEmptySecret
	}
	return SecondFactor{state: SecondFactorEnabled, secret: secret, lastStep: lastStep}, nil
}

func (f SecondFactor) State() SecondFactorState { return f.state }

func (f SecondFactor) Enabled() bool { return f.state == SecondFactorEnabled }

// EnabledSecret returns the stored secret only when the factor is enabled.
func (f SecondFactor) EnabledSecret() (string, bool) {
	if f.state != SecondFactorEnabled {
		return "", false
	}
	return f.secret, true
}

// PendingSecret returns the secret only during enrollment.
func (f SecondFactor) PendingSecret() (string, bool) {
	if f.state != SecondFactorPendingEnrollment {
		return "", false
	}
	return f.secret, true
}

func (f SecondFactor) LastStep() int64 { return f.lastStep }

func (f SecondFactor) withStep(step int64) SecondFactor {
	f.lastStep = step
	return f
}

type secondFactorWire struct {
	State    string `json:"state"`
	Secret   string `json:"secret,omitempty"`
	LastStep int64  `json:"last_step,omitempty"`
}

func (f SecondFactor) MarshalJSON() ([]byte, error) {
	w := secondFactorWire{State: f.state.String()}
	if f.state != SecondFactorDisabled {
		w.Secret = f.secret
	}
	if f.state == SecondFactorEnabled {
		w.LastStep = f.lastStep
	}
	return json.Marshal(w)
}

func (f *SecondFactor) UnmarshalJSON(data []byte) error {
	var w secondFactorWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var (
		out SecondFactor
		err error
	)
	switch w.State {
	case "", "disabled":
		if w.Secret != "" {
			return errors.New("disabled second factor must not carry a secret")
		}
	case "pending":
		out, err = NewPendingEnrollment(w.Secret)
	case "enabled":
		out, err = NewEnabledSecondFactor(w.Secret, w.LastStep)
	default:
		return fmt.Errorf("unknown second factor state %q", w.State)
	}
	if err != nil {
		return err
	}
	*f = out
	return nil
}
