// Package store provides SQLite-based persistence for the command deck:
// boards, lists, milestones, cards, revisioned artifacts and agent memory.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Store is the SQLite-backed persistence layer. All access goes through
// Update or View, which serialize on a single process-wide mutex; the store
// therefore supports exactly one writer process per database file.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates a SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and every
	// operation is serialized by the store mutex anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// migrate applies the schema if not already at the current version.
func (s *Store) migrate() error {
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&name)

	if err == sql.ErrNoRows {
		if _, err := s.db.Exec(schemaSQL); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
		_, err = s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion)
		return err
	}
	if err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if version < currentSchemaVersion {
		return fmt.Errorf("schema version %d is older than %d and has no migration", version, currentSchemaVersion)
	}

	return nil
}

// --- Transactions ---

// Tx is one serialized unit of work. It is only valid inside the callback
// passed to Update or View.
type Tx struct {
	ctx         context.Context
	tx          *sql.Tx
	afterCommit []func()
}

// Context returns the context the transaction was started with.
func (t *Tx) Context() context.Context {
	return t.ctx
}

// AfterCommit registers fn to run once the transaction has committed and the
// store lock is released. Callbacks are dropped on rollback.
func (t *Tx) AfterCommit(fn func()) {
	t.afterCommit = append(t.afterCommit, fn)
}

func (t *Tx) exec(query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(t.ctx, query, args...)
}

func (t *Tx) query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(t.ctx, query, args...)
}

func (t *Tx) queryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(t.ctx, query, args...)
}

// Update runs fn inside a write transaction under the store lock. If fn
// returns an error the transaction is rolled back and the error returned
// unchanged. Once started, an operation is not cancelled by ctx.
func (s *Store) Update(ctx context.Context, fn func(*Tx) error) error {
	return s.run(ctx, true, fn)
}

// View runs fn inside a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(*Tx) error) error {
	return s.run(ctx, false, fn)
}

func (s *Store) run(ctx context.Context, write bool, fn func(*Tx) error) (err error) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	locked := true
	unlock := func() {
		if locked {
			locked = false
			s.mu.Unlock()
		}
	}
	defer unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	tx := &Tx{ctx: ctx, tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if !write {
		return sqlTx.Rollback()
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	unlock()
	for _, cb := range tx.afterCommit {
		cb()
	}
	return nil
}

// --- Helpers ---

// NowMillis returns t as unix milliseconds, the storage time unit.
func NowMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func newID() string {
	return uuid.NewString()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// decodeTags never fails: unreadable tag columns decode as empty.
func decodeTags(raw string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return []string{}
	}
	if tags == nil {
		return []string{}
	}
	return tags
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
