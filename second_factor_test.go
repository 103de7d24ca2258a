package credcore

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSecondFactorZeroValueDisabled(t *testing.T) {
	var f SecondFactor
	if f.State() != SecondFactorDisabled || f.Enabled() {
		t.Fatalf("zero value must be disabled, got %s", f.State())
	}
	if _, ok := f.EnabledSecret(); ok {
		t.Fatal("disabled factor must not expose a secret")
	}
}

func TestSecondFactorRejectsEmptySecret(t *testing.T) {
	if _, err := NewEnabledSecondFactor("", 0); err == nil {
		t.Fatal("expected error for enabled factor without secret")
	}
	if _, err := NewPendingEnrollment(""); err == nil {
		t.Fatal("expected error for pending factor without secret")
	}
}

func TestSecondFactorSecretAccessByState(t *testing.T) {
	pending, _ := NewPendingEnrollment("S1")
	if _, ok := pending.EnabledSecret(); ok {
		t.Fatal("pending secret must not verify logins")
	}
	if s, ok := pending.PendingSecret(); !ok || s != "S1" {
		t.Fatalf("unexpected pending secret %q", s)
	}

	enabled, _ := NewEnabledSecondFactor("S2", 7)
	if _, ok := enabled.PendingSecret(); ok {
		t.Fatal("enabled factor has no pending secret")
	}
	if s, ok := enabled.EnabledSecret(); !ok || s != "S2" {
		t.Fatalf("unexpected enabled secret %q", s)
	}
}

func TestSecondFactorJSON(t *testing.T) {
	enabled, _ := NewEnabledSecondFactor("S2", 42)
	raw, err := json.Marshal(enabled)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var back SecondFactor
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back != enabled {
		t.Fatalf("round trip changed value: %+v vs %+v", back, enabled)
	}

	raw, _ = json.Marshal(SecondFactor{})
	if !strings.Contains(string(raw), `"disabled"`) || strings.Contains(string(raw), "secret") {
		t.Fatalf("unexpected disabled encoding %s", raw)
	}
}

func TestSecondFactorJSONRejectsInconsistentState(t *testing.T) {
	cases := []string{
		`{"state":"enabled"}`,
		`{"state":"pending","secret":""}`,
		`{"state":"disabled","secret":"S"}`,
		`{"state":"armed","secret":"S"}`,
	}
	for _, raw := range cases {
		var f SecondFactor
		if err := json.Unmarshal([]byte(raw), &f); err == nil {
			t.Fatalf("expected %s to be rejected", raw)
		}
	}
}
