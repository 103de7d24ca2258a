package credcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/MrEthical07/credcore/password"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	testEmail    = "a@x.com"
	testPassword = "Abc123!@#"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Hash = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	cfg.Lockout.FailureDelay = 0
	cfg.Tokens.SigningMethod = "hs256"
	cfg.Tokens.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.SecondFactor.QRSize = 64
	return cfg
}

type sentNotification struct {
	Destination string
	Kind        NotificationKind
	Payload     map[string]string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, destination string, kind NotificationKind, payload map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentNotification{Destination: destination, Kind: kind, Payload: payload})
	return nil
}

func (n *recordingNotifier) fail(err error) {
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

func (n *recordingNotifier) count(kind NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.Kind == kind {
			c++
		}
	}
	return c
}

// lastCode returns the code from the most recent notification of kind.
func (n *recordingNotifier) lastCode(t *testing.T, kind NotificationKind) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			return n.sent[i].Payload[PayloadCode]
		}
	}
	t.Fatalf("no %s notification sent", kind)
	return ""
}

type testEnv struct {
	engine   *Engine
	store    *MemoryStore
	clock    *clockwork.FakeClock
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, cfg Config, extra ...func(*Builder)) *testEnv {
	t.Helper()

	env := &testEnv{
		store:    NewMemoryStore(),
		clock:    clockwork.NewFakeClockAt(testEpoch),
		notifier: &recordingNotifier{},
	}
	b := New().
		WithConfig(cfg).
		WithStore(env.store).
		WithNotifier(env.notifier).
		WithClock(env.clock)
	for _, fn := range extra {
		fn(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) register(t *testing.T, email, pw string) *RegisterResult {
	t.Helper()
	res, err := env.engine.Register(context.Background(), "Alice", email, pw)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return res
}

func (env *testEnv) account(t *testing.T, id string) *Account {
	t.Helper()
	a, err := env.store.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(%s): %v", id, err)
	}
	return a
}

func (env *testEnv) code(t *testing.T, secret string) string {
	t.Helper()
	return totpCodeAt(t, secret, env.clock.Now())
}

// enableSecondFactor enrolls and confirms TOTP, then moves the clock past
// the confirming step so the next code is not a replay.
func (env *testEnv) enableSecondFactor(t *testing.T, accountID string) string {
	t.Helper()
	ctx := context.Background()

	prov, err := env.engine.BeginEnrollment(ctx, accountID)
	if err != nil {
		t.Fatalf("BeginEnrollment failed: %v", err)
	}
	if err := env.engine.ConfirmEnrollment(ctx, accountID, env.code(t, prov.Secret)); err != nil {
		t.Fatalf("ConfirmEnrollment failed: %v", err)
	}
	env.clock.Advance(30 * time.Second)
	return prov.Secret
}

// wrongCode returns a well-formed code that matches no step in the
// tolerance window.
func (env *testEnv) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	now := env.clock.Now()
	live := map[string]bool{}
	for _, d := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		live[totpCodeAt(t, secret, now.Add(d))] = true
	}
	for _, c := range []string{"000000", "111111", "222222", "333333"} {
		if !live[c] {
			return c
		}
	}
	t.Fatal("no wrong code available")
	return ""
}

func totpCodeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("GenerateCodeCustom failed: %v", err)
	}
	return code
}

func deviceContext(ua, ip string) context.Context {
	return WithUserAgent(WithClientIP(context.Background(), ip), ua)
}

func mustErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
