// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go translation
// of the SQLite C code.
//
// CONNECTION POOL:
// *sql.DB is a pool, safe for concurrent checkout. Every repository method takes
// one connection for the duration of a single logical operation and gives it
// back on every exit path (the deferred rows.Close / tx.Rollback calls).
// Each operation is bounded by the configured operation timeout, so a caller is
// never blocked indefinitely waiting for a connection.
//
// PRAGMAS PER CONNECTION:
// Pragmas set with conn.Exec only affect whichever pooled connection ran them.
// We pass them in the DSN instead so every new connection gets them:
//   - foreign_keys(1)   referential integrity (external_identities.user_id → users.id)
//   - busy_timeout(...) wait for the write lock instead of failing with SQLITE_BUSY
//   - journal_mode(WAL) readers don't block the writer
//
// _txlock=immediate makes BEGIN take the write lock up front, so the
// check-then-insert transactions (CreateUser, GrantPermission, upserts) are
// serialised against each other.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"time"

	// The sqlite package's init() registers itself with database/sql as "sqlite".
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	defaultMaxOpenConns = 8
	defaultOpTimeout    = 5 * time.Second
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn      *sql.DB
	opTimeout time.Duration
}

// Option configures a DB.
type Option func(*options)

type options struct {
	maxOpenConns int
	opTimeout    time.Duration
}

// WithMaxOpenConns caps the pool size.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

// WithOpTimeout bounds every repository call, including time spent waiting
// for a pooled connection or the SQLite write lock.
func WithOpTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.opTimeout = d
		}
	}
}

// New opens (or creates) the database at dbPath and applies pending migrations.
//
// dbPath examples:
//   - "data/idevgames.db" → file-based database (persistent)
//   - ":memory:"          → in-memory database; the pool is pinned to one
//     connection because every SQLite connection to ":memory:" is a separate database
func New(dbPath string, opts ...Option) (*DB, error) {
	o := options{maxOpenConns: defaultMaxOpenConns, opTimeout: defaultOpTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := sql.Open("sqlite", dsn(dbPath, o.opTimeout))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(o.maxOpenConns)
	}
	conn.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), o.opTimeout)
	defer cancel()

	// Ping verifies the connection actually works.
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn, opTimeout: o.opTimeout}

	if err := db.Migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func dsn(dbPath string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return dbPath + "?" + q.Encode()
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Migrate applies every embedded migration that has not run yet.
func (db *DB) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, db.conn, migrationFS, "migrations")
}

// withTimeout derives the per-operation context.
func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.opTimeout)
}

// querier is satisfied by both *sql.DB and *sql.Tx so lookups can run
// inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// inTx runs fn inside one transaction, committing only if fn returns nil.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	// Rollback after a successful Commit is a no-op returning ErrTxDone.
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
