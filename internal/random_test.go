package internal

import (
	"strings"
	"testing"
)

func TestNewNumericCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := NewNumericCode(6)
		if err != nil {
			t.Fatalf("NewNumericCode error: %v", err)
		}
		if len(code) != 6 || strings.Trim(code, "0123456789") != "" {
			t.Fatalf("unexpected code %q", code)
		}
		seen[code] = true
	}
	if len(seen) < 40 {
		t.Fatalf("codes look non-random: %d distinct of 50", len(seen))
	}

	if _, err := NewNumericCode(4); err == nil {
		t.Fatal("expected too-short code length to be rejected")
	}
}

func TestMatchHash(t *testing.T) {
	stored := HashCode("123456")
	if stored == "123456" {
		t.Fatal("code stored in clear")
	}
	if !MatchHash("123456", stored) {
		t.Fatal("expected matching code")
	}
	if MatchHash("123457", stored) {
		t.Fatal("expected mismatch")
	}
}

func TestFingerprintIsStable(t *testing.T) {
	a := Fingerprint("Mozilla/5.0", "203.0.113.9")
	b := Fingerprint(" Mozilla/5.0 ", "203.0.113.9")
	if a != b {
		t.Fatal("fingerprint should ignore surrounding whitespace")
	}
	if a == Fingerprint("Mozilla/5.0", "203.0.113.10") {
		t.Fatal("different IPs must not share a fingerprint")
	}
}

func TestSealerRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	s, err := NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer error: %v", err)
	}

	sealed, err := s.Seal("JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}
	if strings.Contains(sealed, "JBSWY3DPEHPK3PXP") {
		t.Fatal("sealed value leaks plaintext")
	}
	opened, err := s.Open(sealed)
	if err != nil || opened != "JBSWY3DPEHPK3PXP" {
		t.Fatalf("Open = %q, %v", opened, err)
	}

	other, _ := NewSealer([]byte("fedcba9876543210fedcba9876543210"))
	if _, err := other.Open(sealed); err == nil {
		t.Fatal("expected wrong key to fail")
	}

	plain, _ := NewSealer(nil)
	if v, err := plain.Open("LEGACYSECRET"); err != nil || v != "LEGACYSECRET" {
		t.Fatalf("unsealed legacy value should pass through: %q %v", v, err)
	}
}

func TestFingerprintNeedsAnInput(t *testing.T) {
	if got := Fingerprint("", ""); got != "" {
		t.Fatalf("expected empty fingerprint without inputs, got %q", got)
	}
	if got := Fingerprint("  ", "\t"); got != "" {
		t.Fatalf("expected blank inputs to count as missing, got %q", got)
	}
	if len(Fingerprint("Mozilla/5.0", "")) != 64 || len(Fingerprint("", "203.0.113.7")) != 64 {
		t.Fatal("one input is enough for a hex sha256 fingerprint")
	}
}
