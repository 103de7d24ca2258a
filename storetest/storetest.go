// Package storetest is a conformance suite for credcore.AccountStore
// implementations. Each backend's tests call Run with a factory that
// returns an empty store.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/credcore"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) credcore.AccountStore

// Run exercises the AccountStore contract against stores made by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("SaveAndFind", func(t *testing.T) { testSaveAndFind(t, newStore(t)) })
	t.Run("EmailConflict", func(t *testing.T) { testEmailConflict(t, newStore(t)) })
	t.Run("EmailChangeReindexes", func(t *testing.T) { testEmailChange(t, newStore(t)) })
	t.Run("UpdateAbortWritesNothing", func(t *testing.T) { testUpdateAbort(t, newStore(t)) })
	t.Run("UpdateUnknown", func(t *testing.T) { testUpdateUnknown(t, newStore(t)) })
	t.Run("ReturnedCopiesIsolated", func(t *testing.T) { testIsolation(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ConcurrentUpdatesSerialize", func(t *testing.T) { testConcurrentUpdates(t, newStore(t)) })
	t.Run("RoundTripsSecondFactor", func(t *testing.T) { testSecondFactorRoundTrip(t, newStore(t)) })
}

// Account returns a fully populated record for id and email.
func Account(id, email string) *credcore.Account {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &credcore.Account{
		ID:            id,
		Email:         email,
		DisplayName:   "User " + id,
		PasswordHash:  "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		Role:          credcore.RoleStandard,
		EmailVerified: true,
		TrustedDevices: []credcore.TrustedDevice{{
			ID:          "dev-" + id,
			Fingerprint: "fp",
			Label:       "laptop",
			CreatedAt:   now,
			ExpiresAt:   now.Add(24 * time.Hour),
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testSaveAndFind(t *testing.T, s credcore.AccountStore) {
	ctx := context.Background()
	want := Account("u1", "a@x.com")
	require.NoError(t, s.Save(ctx, want))

	byID, err := s.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, want.Email, byID.Email)
	assert.Equal(t, want.PasswordHash, byID.PasswordHash)
	assert.True(t, want.CreatedAt.Equal(byID.CreatedAt))
	require.Len(t, byID.TrustedDevices, 1)
	assert.Equal(t, "laptop", byID.TrustedDevices[0].Label)

	byEmail, err := s.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)

	_, err = s.FindByEmail(ctx, "b@x.com")
	assert.ErrorIs(t, err, credcore.ErrAccountNotFound)
	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, credcore.ErrAccountNotFound)
}

func testEmailConflict(t *testing.T, s credcore.AccountStore) {
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Account("u1", "a@x.com")))

	err := s.Save(ctx, Account("u2", "a@x.com"))
	assert.ErrorIs(t, err, credcore.ErrStoreConflict)

	// Saving the owner again is a replace.
	again := Account("u1", "a@x.com")
	again.DisplayName = "renamed"
	require.NoError(t, s.Save(ctx, again))
	got, err := s.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.DisplayName)
}

func testEmailChange(t *testing.T, s credcore.AccountStore) {
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Account("u1", "a@x.com")))

	_, err := s.Update(ctx, "u1", func(a *credcore.Account) error {
		a.Email = "new@x.com"
		return nil
	})
	require.NoError(t, err)

	_, err = s.FindByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, credcore.ErrAccountNotFound)
	got, err := s.FindByEmail(ctx, "new@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	// The old address is free again.
	require.NoError(t, s.Save(ctx, Account("u2", "a@x.com")))
}

func testUpdateAbort(t *testing.T, s credcore.AccountStore) {
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Account("u1", "a@x.com")))

	boom := errors.New("boom")
	_, err := s.Update(ctx, "u1", func(a *credcore.Account) error {
		a.FailedAttempts = 99
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, got.FailedAttempts)
}

func testUpdateUnknown(t *testing.T, s credcore.AccountStore) {
	called := false
	_, err := s.Update(context.Background(), "missing", func(*credcore.Account) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, credcore.ErrAccountNotFound)
	assert.False(t, called)
}

func testIsolation(t *testing.T, s credcore.AccountStore) {
	ctx := context.Background()
	in := Account("u1", "a@x.com")
	require.NoError(t, s.Save(ctx, in))
	in.TrustedDevices[0].Label = "mutated"

	out, err := s.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "laptop", out.TrustedDevices[0].Label)

	out.TrustedDevices[0].Label = "mutated again"
	again, err := s.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "laptop", again.TrustedDevices[0].Label)
}

func testDelete(t *testing.T, s credcore.AccountStore) {
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Account("u1", "a@x.com")))
	require.NoError(t, s.Delete(ctx, "u1"))

	_, err := s.FindByID(ctx, "u1")
	assert.ErrorIs(t, err, credcore.ErrAccountNotFound)
	_, err = s.FindByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, credcore.ErrAccountNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "u1"), credcore.ErrAccountNotFound)
}

func testConcurrentUpdates(t *testing.T, s credcore.AccountStore) {
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Account("u1", "a@x.com")))

	const writers = 8
	const perWriter = 5

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				_, err := s.Update(ctx, "u1", func(a *credcore.Account) error {
					a.FailedAttempts++
					return nil
				})
				if err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		// Optimistic stores may give up under heavy contention.
		require.ErrorIs(t, err, credcore.ErrStoreConflict)
		failed++
	}

	got, err := s.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter-failed, got.FailedAttempts, "no increment may be lost")
}

func testSecondFactorRoundTrip(t *testing.T, s credcore.AccountStore) {
	ctx := context.Background()
	a := Account("u1", "a@x.com")
	sf, err := credcore.NewEnabledSecondFactor("JBSWY3DPEHPK3PXP", 1234)
	require.NoError(t, err)
	a.SecondFactor = sf
	a.ResetCode = &credcore.OutstandingCode{
		Hash:      "abc",
		ExpiresAt: a.CreatedAt.Add(10 * time.Minute),
		Attempts:  2,
	}
	require.NoError(t, s.Save(ctx, a))

	got, err := s.FindByID(ctx, "u1")
	require.NoError(t, err)
	secret, ok := got.SecondFactor.EnabledSecret()
	require.True(t, ok)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", secret)
	assert.EqualValues(t, 1234, got.SecondFactor.LastStep())
	require.NotNil(t, got.ResetCode)
	assert.Equal(t, 2, got.ResetCode.Attempts)
	assert.Nil(t, got.EmailCode)
}
