package credcore

import (
	"context"
	"testing"
	"time"
)

func seedDevices(t *testing.T, env *testEnv, accountID string, ttls ...time.Duration) []string {
	t.Helper()
	now := env.clock.Now()
	var ids []string
	_, err := env.store.Update(context.Background(), accountID, func(a *Account) error {
		for i, ttl := range ttls {
			id := env.engine.newDeviceID()
			a.TrustedDevices = append(a.TrustedDevices, TrustedDevice{
				ID:          id,
				Fingerprint: "fp-" + id,
				CreatedAt:   now.Add(time.Duration(i) * time.Second),
				ExpiresAt:   now.Add(ttl),
			})
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed devices: %v", err)
	}
	return ids
}

func TestRemoveDevice(t *testing.T) {
	env := newTestEnv(t, testConfig())
	reg := env.register(t, testEmail, testPassword)
	ids := seedDevices(t, env, reg.Account.ID, time.Hour, time.Hour, -time.Minute)
	ctx := context.Background()

	if err := env.engine.RemoveDevice(ctx, reg.Account.ID, ids[0]); err != nil {
		t.Fatalf("RemoveDevice failed: %v", err)
	}
	mustErr(t, env.engine.RemoveDevice(ctx, reg.Account.ID, ids[0]), ErrDeviceNotFound)
	mustErr(t, env.engine.RemoveDevice(ctx, reg.Account.ID, "no-such-id"), ErrDeviceNotFound)

	devices, err := env.engine.ListDevices(ctx, reg.Account.ID)
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 1 || devices[0].ID != ids[1] {
		t.Fatalf("unexpected devices %+v", devices)
	}
	// The successful removal also purged the expired entry.
	if n := len(env.account(t, reg.Account.ID).TrustedDevices); n != 1 {
		t.Fatalf("expected 1 stored device, got %d", n)
	}
}

func TestClearDevicesIsIdempotent(t *testing.T) {
	env := newTestEnv(t, testConfig())
	reg := env.register(t, testEmail, testPassword)
	seedDevices(t, env, reg.Account.ID, time.Hour, time.Hour)
	ctx := context.Background()

	if err := env.engine.ClearDevices(ctx, reg.Account.ID); err != nil {
		t.Fatalf("ClearDevices failed: %v", err)
	}
	if err := env.engine.ClearDevices(ctx, reg.Account.ID); err != nil {
		t.Fatalf("clearing an empty list failed: %v", err)
	}
	if n := len(env.account(t, reg.Account.ID).TrustedDevices); n != 0 {
		t.Fatalf("expected no devices, got %d", n)
	}
}

func TestListDevicesOrdersByCreation(t *testing.T) {
	env := newTestEnv(t, testConfig())
	reg := env.register(t, testEmail, testPassword)
	ids := seedDevices(t, env, reg.Account.ID, time.Hour, 2*time.Hour, 3*time.Hour)

	devices, err := env.engine.ListDevices(context.Background(), reg.Account.ID)
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	for i, d := range devices {
		if d.ID != ids[i] {
			t.Fatalf("position %d: expected %s, got %s", i, ids[i], d.ID)
		}
	}
}

func TestClampLabel(t *testing.T) {
	if got := clampLabel("  héllo wörld  ", 5); got != "héllo" {
		t.Fatalf("expected rune-safe truncation, got %q", got)
	}
	if got := clampLabel("x", 0); got != "x" {
		t.Fatalf("zero max must not truncate, got %q", got)
	}
}
