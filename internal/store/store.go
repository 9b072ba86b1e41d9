// Package store implements the transactional entity store: the append-only
// entity registry, the connection-scoped unit of work, and the per-kind
// record operations built on top of both.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/memogarden/memogarden-core/internal/isotime"
)

// querier is the subset of database/sql shared by *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the database handle and hands out units of work. Each unit of
// work runs on its own connection; there is no shared mutable state between
// concurrent requests beyond the pool itself.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source. Useful for tests.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// Open connects to PostgreSQL and tunes the pool.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, opts...), nil
}

// New wraps an existing database handle. Tests use it with sqlmock.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, now: isotime.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Core acquires an autocommit unit of work on a dedicated connection. Every
// operation commits independently; multi-statement operations open a short
// local transaction. The caller must Release it; Release is idempotent.
func (s *Store) Core(ctx context.Context) (*Core, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	c := &Core{conn: conn, now: s.now}
	c.init()
	return c, nil
}

// Atomic acquires a unit of work bound to a single database transaction and
// runs fn inside it. A nil error from fn commits; any error rolls back, so
// no partial writes are observable afterwards. The Core is released when
// Atomic returns; using it beyond the scope fails with ErrCoreReleased.
func (s *Store) Atomic(ctx context.Context, fn func(*Core) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("begin: %w", err)
	}
	c := &Core{conn: conn, tx: tx, atomic: true, now: s.now}
	c.init()
	defer c.Release()

	if err := fn(c); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Core is a connection-scoped unit of work. It exposes the entity registry
// and the record operations; record operations hold the Core reference so a
// single domain call can create the registry row and the domain row as one
// coordinated step.
type Core struct {
	conn     *sql.Conn
	tx       *sql.Tx
	atomic   bool
	released bool
	now      func() time.Time

	entities     *EntityOps
	transactions *TransactionOps
	recurrences  *RecurrenceOps
	users        *UserOps
	apiKeys      *APIKeyOps
}

func (c *Core) init() {
	c.entities = &EntityOps{core: c}
	c.transactions = &TransactionOps{core: c}
	c.recurrences = &RecurrenceOps{core: c}
	c.users = &UserOps{core: c}
	c.apiKeys = &APIKeyOps{core: c}
}

// Entities returns the entity registry operations.
func (c *Core) Entities() *EntityOps { return c.entities }

// Transactions returns the transaction record operations.
func (c *Core) Transactions() *TransactionOps { return c.transactions }

// Recurrences returns the recurrence record operations.
func (c *Core) Recurrences() *RecurrenceOps { return c.recurrences }

// Users returns the user account row operations.
func (c *Core) Users() *UserOps { return c.users }

// APIKeys returns the API key row operations.
func (c *Core) APIKeys() *APIKeyOps { return c.apiKeys }

// Release returns the connection to the pool. Safe to call more than once;
// a second call is a no-op. On an atomic Core a pending transaction is
// rolled back first (a no-op after commit).
func (c *Core) Release() {
	if c.released {
		return
	}
	c.released = true
	if c.tx != nil {
		_ = c.tx.Rollback()
	}
	_ = c.conn.Close()
}

func (c *Core) guard() error {
	if c.released {
		return ErrCoreReleased
	}
	return nil
}

func (c *Core) q() querier {
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

// withTx runs fn against the enclosing transaction when the Core is atomic,
// or inside a short local transaction otherwise. This is the coordination
// primitive record operations use to pair registry and domain writes.
func (c *Core) withTx(ctx context.Context, fn func(q querier) error) error {
	if err := c.guard(); err != nil {
		return err
	}
	if c.tx != nil {
		return fn(c.tx)
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
