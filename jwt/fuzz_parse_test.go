package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

// FuzzVerify feeds arbitrary strings to Verify. Nothing may panic and any
// accepted token must carry a scope.
func FuzzVerify(f *testing.F) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		f.Fatal(err)
	}
	mgr, err := NewManager(Config{
		Issuer:        "fuzz-test",
		Audience:      "fuzz-api",
		FullTTL:       5 * time.Minute,
		PendingTTL:    time.Minute,
		Skew:          30 * time.Second,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub},
	}, nil)
	if err != nil {
		f.Fatal(err)
	}

	validToken, err := mgr.IssueFull("acct-1", "standard")
	if err != nil {
		f.Fatal(err)
	}

	f.Add(validToken)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJFZERTQSJ9.eyJ1aWQiOiJ0ZXN0In0.invalid")
	f.Add("eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		for _, kind := range []ScopeKind{KindFull, KindPendingSecondFactor} {
			claims, err := mgr.Verify(input, kind)
			if err != nil {
				continue
			}
			if claims == nil || claims.Scope == nil {
				t.Fatal("Verify accepted a token without claims")
			}
		}
	})
}
