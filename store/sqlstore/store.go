// Package sqlstore keeps credcore accounts in a SQL table through sqlx.
//
// Each row holds the account as a JSON document next to a unique email
// column and a version counter. Update is optimistic: it re-reads and
// retries when another writer bumped the version in between.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/MrEthical07/credcore"
)

// Driver names accepted by Open.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

const defaultMaxRetries = 16

// ErrCorrupt is returned when a stored document does not decode.
var ErrCorrupt = errors.New("corrupt account document")

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Options tunes a Store.
type Options struct {
	// Table defaults to "credcore_accounts".
	Table      string
	MaxRetries int
	Clock      clockwork.Clock
	Logger     *zap.Logger
}

// Store implements credcore.AccountStore.
type Store struct {
	db         *sqlx.DB
	table      string
	maxRetries int
	clock      clockwork.Clock
	log        *zap.Logger
}

// Open connects with driver (DriverPostgres or DriverSQLite) and dsn.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: connect: %w", err)
	}
	if driver == DriverSQLite {
		// One writer at a time; SQLite serializes anyway.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// New wraps db. Call Migrate before first use.
func New(db *sqlx.DB, opts Options) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlstore: nil db")
	}
	if opts.Table == "" {
		opts.Table = "credcore_accounts"
	}
	if !validIdent(opts.Table) {
		return nil, fmt.Errorf("sqlstore: invalid table name %q", opts.Table)
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		db:         db,
		table:      opts.Table,
		maxRetries: opts.MaxRetries,
		clock:      opts.Clock,
		log:        opts.Logger.Named("sqlstore"),
	}, nil
}

// Migrate creates the table if it does not exist. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  doc TEXT NOT NULL,
  version BIGINT NOT NULL,
  updated_at TIMESTAMP NOT NULL
)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

type row struct {
	ID      string `db:"id"`
	Email   string `db:"email"`
	Doc     string `db:"doc"`
	Version int64  `db:"version"`
}

func (s *Store) FindByID(ctx context.Context, id string) (*credcore.Account, error) {
	a, _, err := s.get(ctx, "id", id)
	return a, err
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*credcore.Account, error) {
	a, _, err := s.get(ctx, "email", email)
	return a, err
}

func (s *Store) get(ctx context.Context, column, value string) (*credcore.Account, int64, error) {
	var r row
	q := s.db.Rebind(`SELECT id, email, doc, version FROM ` + s.table + ` WHERE ` + column + ` = ?`)
	err := s.db.GetContext(ctx, &r, q, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, credcore.ErrAccountNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("sqlstore: select: %w", err)
	}
	var a credcore.Account
	if err := json.Unmarshal([]byte(r.Doc), &a); err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %v", ErrCorrupt, r.ID, err)
	}
	return &a, r.Version, nil
}

// Save inserts or replaces acct by ID.
func (s *Store) Save(ctx context.Context, acct *credcore.Account) error {
	if acct == nil || acct.ID == "" {
		return errors.New("sqlstore: account id required")
	}
	doc, err := json.Marshal(acct)
	if err != nil {
		return err
	}
	q := `INSERT INTO ` + s.table + ` (id, email, doc, version, updated_at)
VALUES (:id, :email, :doc, 1, :updated_at)
ON CONFLICT (id) DO UPDATE SET email = excluded.email, doc = excluded.doc,
  version = ` + s.table + `.version + 1, updated_at = excluded.updated_at`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"id":         acct.ID,
		"email":      acct.Email,
		"doc":        string(doc),
		"updated_at": s.clock.Now().UTC(),
	})
	if isUniqueViolation(err) {
		return credcore.ErrStoreConflict
	}
	if err != nil {
		return fmt.Errorf("sqlstore: save: %w", err)
	}
	return nil
}

// Update re-runs fn when a concurrent writer wins the version race, so fn
// may be called more than once.
func (s *Store) Update(ctx context.Context, id string, fn func(*credcore.Account) error) (*credcore.Account, error) {
	q := s.db.Rebind(`UPDATE ` + s.table + ` SET email = ?, doc = ?, version = version + 1, updated_at = ?
WHERE id = ? AND version = ?`)

	for i := 0; i < s.maxRetries; i++ {
		cur, version, err := s.get(ctx, "id", id)
		if err != nil {
			return nil, err
		}
		next := cur.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		next.ID = id
		doc, err := json.Marshal(next)
		if err != nil {
			return nil, err
		}

		res, err := s.db.ExecContext(ctx, q, next.Email, string(doc), s.clock.Now().UTC(), id, version)
		if isUniqueViolation(err) {
			return nil, credcore.ErrStoreConflict
		}
		if err != nil {
			return nil, fmt.Errorf("sqlstore: update: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("sqlstore: update: %w", err)
		}
		if n == 1 {
			return next, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	s.log.Warn("optimistic retries exhausted", zap.String("account_id", id), zap.Int("retries", s.maxRetries))
	return nil, credcore.ErrStoreConflict
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM `+s.table+` WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("sqlstore: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: delete: %w", err)
	}
	if n == 0 {
		return credcore.ErrAccountNotFound
	}
	return nil
}

// Count reports the number of stored accounts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+s.table); err != nil {
		return 0, fmt.Errorf("sqlstore: count: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE")
	}
	return false
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	}) < 0
}

var _ credcore.AccountStore = (*Store)(nil)
