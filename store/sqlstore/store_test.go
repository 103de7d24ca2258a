package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/credcore"
	"github.com/MrEthical07/credcore/storetest"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "accounts.db") + "?_pragma=busy_timeout(5000)"
	db, err := Open(context.Background(), DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := New(openTestDB(t), opts)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) credcore.AccountStore {
		return newTestStore(t, Options{})
	})
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t, Options{})
	require.NoError(t, s.Migrate(context.Background()))
}

func TestVersionAdvancesOnWrite(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s := newTestStore(t, Options{Clock: clock})
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, storetest.Account("u1", "a@x.com")))
	_, v1, err := s.get(ctx, "id", "u1")
	require.NoError(t, err)

	_, err = s.Update(ctx, "u1", func(a *credcore.Account) error {
		a.FailedAttempts = 1
		return nil
	})
	require.NoError(t, err)
	_, v2, err := s.get(ctx, "id", "u1")
	require.NoError(t, err)
	assert.Equal(t, v1+1, v2)
}

func TestUpdateConflictOnTakenEmail(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, storetest.Account("u1", "a@x.com")))
	require.NoError(t, s.Save(ctx, storetest.Account("u2", "b@x.com")))

	_, err := s.Update(ctx, "u2", func(a *credcore.Account) error {
		a.Email = "a@x.com"
		return nil
	})
	assert.ErrorIs(t, err, credcore.ErrStoreConflict)
}

func TestCorruptDocument(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx, `INSERT INTO credcore_accounts (id, email, doc, version, updated_at) VALUES ('u1', 'a@x.com', '{bad', 1, CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	_, err = s.FindByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestCount(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, storetest.Account("u1", "a@x.com")))
	require.NoError(t, s.Save(ctx, storetest.Account("u2", "b@x.com")))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNewRejectsBadTable(t *testing.T) {
	_, err := New(openTestDB(t), Options{Table: "accounts; DROP TABLE x"})
	assert.Error(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	assert.Error(t, err)
}
