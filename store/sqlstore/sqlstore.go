/*
Package sqlstore provides a SQL-backed implementation of generic.TxStore.

PURPOSE:
  Implements every persistence interface (items, daily ledger, NCRs, custom
  columns, custom values) on database/sql. The same statements run on
  SQLite and PostgreSQL; only the id column type and the placeholder style
  differ (see dialect.go).

DRIVERS:
  sqlite3: github.com/mattn/go-sqlite3 (cgo, default)
  sqlite:  modernc.org/sqlite (pure Go, for CGO_ENABLED=0 builds)
  pgx:     github.com/jackc/pgx/v5/stdlib (PostgreSQL)

KEY TABLES:
  checklist_items:          Master list per form type (soft delete)
  daily_observations:       One row per (item, line, date)
  non_conformance_reports:  One row per (item, line, report date)
  custom_columns:           Schema registry per form type (soft delete)
  custom_column_values:     EAV values, primary key (record, column)

UNIQUENESS:
  The natural keys are backed by UNIQUE indexes so a racing double insert
  fails with generic.ErrDuplicateKey instead of creating a second row.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite connections are capped at one
  so ":memory:" databases are shared by every call. Inside WithTx every
  statement runs on the *sql.Tx; nothing touches the pool until commit.

USAGE:
  store, err := sqlstore.NewSQLite("./data/audit.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/warp/audit-engine/generic"
)

// Store implements generic.TxStore on database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.RWMutex
	now     func() time.Time
}

var _ generic.TxStore = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens a store for the given driver name ("sqlite3", "sqlite" or "pgx")
// and applies the schema.
func New(driver, dsn string) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect.Driver, dialect.DSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect.SingleConn {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, dialect: dialect, now: time.Now}
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewSQLite opens a SQLite database with the default cgo driver.
// Use ":memory:" for an in-memory database.
func NewSQLite(path string) (*Store, error) {
	return New(DriverSQLite3, path)
}

// NewPostgres opens a PostgreSQL database through pgx.
func NewPostgres(dsn string) (*Store, error) {
	return New(DriverPgx, dsn)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, pragma := range s.dialect.Pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	for _, stmt := range splitStatements(s.dialect.Schema()) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func splitStatements(schema string) []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

// Reset clears all tables. Intended for tests and demo seeding.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{
		"custom_column_values",
		"custom_columns",
		"non_conformance_reports",
		"daily_observations",
		"checklist_items",
	} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx, parent: s}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore runs every operation on the open transaction.
type txStore struct {
	q      querier
	parent *Store
}

func (ts *txStore) SaveItem(ctx context.Context, item generic.ChecklistItem) (generic.ChecklistItem, error) {
	return ts.parent.saveItem(ctx, ts.q, item)
}

func (ts *txStore) GetItem(ctx context.Context, id generic.ItemID) (generic.ChecklistItem, error) {
	return ts.parent.getItem(ctx, ts.q, id)
}

func (ts *txStore) ListItems(ctx context.Context, formType generic.FormType, includeDeleted bool) ([]generic.ChecklistItem, error) {
	return ts.parent.listItems(ctx, ts.q, formType, includeDeleted)
}

func (ts *txStore) SoftDeleteItem(ctx context.Context, id generic.ItemID) error {
	return ts.parent.softDeleteItem(ctx, ts.q, id)
}

func (ts *txStore) FindObservation(ctx context.Context, key generic.ObservationKey) (*generic.DailyObservation, error) {
	return ts.parent.findObservation(ctx, ts.q, key)
}

// InsertObservation runs under a savepoint so a unique violation leaves the
// transaction usable. PostgreSQL aborts the whole transaction otherwise, and
// the ledger's re-read after a lost insert race would fail.
func (ts *txStore) InsertObservation(ctx context.Context, obs generic.DailyObservation) (saved generic.DailyObservation, err error) {
	err = ts.savepoint(ctx, "insert_observation", func() error {
		saved, err = ts.parent.insertObservation(ctx, ts.q, obs)
		return err
	})
	return saved, err
}

func (ts *txStore) UpdateObservation(ctx context.Context, obs generic.DailyObservation) (generic.DailyObservation, error) {
	return ts.parent.updateObservation(ctx, ts.q, obs)
}

func (ts *txStore) ListObservations(ctx context.Context, lineID generic.LineID, period generic.Period, items []generic.ItemID) ([]generic.DailyObservation, error) {
	return ts.parent.listObservations(ctx, ts.q, lineID, period, items)
}

func (ts *txStore) FindNCR(ctx context.Context, key generic.ObservationKey) (*generic.NonConformanceReport, error) {
	return ts.parent.findNCR(ctx, ts.q, key)
}

func (ts *txStore) GetNCR(ctx context.Context, id generic.NCRID) (generic.NonConformanceReport, error) {
	return ts.parent.getNCR(ctx, ts.q, id)
}

func (ts *txStore) InsertNCR(ctx context.Context, ncr generic.NonConformanceReport) (saved generic.NonConformanceReport, err error) {
	err = ts.savepoint(ctx, "insert_ncr", func() error {
		saved, err = ts.parent.insertNCR(ctx, ts.q, ncr)
		return err
	})
	return saved, err
}

func (ts *txStore) UpdateNCR(ctx context.Context, ncr generic.NonConformanceReport) (generic.NonConformanceReport, error) {
	return ts.parent.updateNCR(ctx, ts.q, ncr)
}

func (ts *txStore) ListNCRs(ctx context.Context, lineID generic.LineID, period generic.Period, items []generic.ItemID) ([]generic.NonConformanceReport, error) {
	return ts.parent.listNCRs(ctx, ts.q, lineID, period, items)
}

func (ts *txStore) InsertColumn(ctx context.Context, formType generic.FormType, name string) (generic.CustomColumnDefinition, error) {
	return ts.parent.insertColumn(ctx, ts.q, formType, name)
}

func (ts *txStore) GetColumn(ctx context.Context, id generic.ColumnID) (generic.CustomColumnDefinition, error) {
	return ts.parent.getColumn(ctx, ts.q, id)
}

func (ts *txStore) RenameColumn(ctx context.Context, id generic.ColumnID, name string) (generic.CustomColumnDefinition, error) {
	return ts.parent.renameColumn(ctx, ts.q, id, name)
}

func (ts *txStore) SoftDeleteColumn(ctx context.Context, id generic.ColumnID) error {
	return ts.parent.softDeleteColumn(ctx, ts.q, id)
}

func (ts *txStore) ListColumns(ctx context.Context, formType generic.FormType, includeDeleted bool) ([]generic.CustomColumnDefinition, error) {
	return ts.parent.listColumns(ctx, ts.q, formType, includeDeleted)
}

func (ts *txStore) UpsertValue(ctx context.Context, v generic.CustomColumnValue) (generic.CustomColumnValue, error) {
	return ts.parent.upsertValue(ctx, ts.q, v)
}

func (ts *txStore) ListValues(ctx context.Context, records []generic.RecordID) ([]generic.CustomColumnValue, error) {
	return ts.parent.listValues(ctx, ts.q, records)
}

func (ts *txStore) DeleteRecordValues(ctx context.Context, record generic.RecordID) (int, error) {
	return ts.parent.deleteRecordValues(ctx, ts.q, record)
}

// savepoint runs fn inside SAVEPOINT name and rolls back to it on error.
func (ts *txStore) savepoint(ctx context.Context, name string, fn func() error) error {
	if _, err := ts.q.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to open savepoint %s: %w", name, err)
	}
	if err := fn(); err != nil {
		if _, rerr := ts.q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rerr != nil {
			return errors.Join(err, fmt.Errorf("failed to roll back savepoint %s: %w", name, rerr))
		}
		return err
	}
	if _, err := ts.q.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTimestamp and parseDate reject corrupt rows instead of returning a
// zero value.
func parseTimestamp(column, v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, generic.Persist("parse "+column, fmt.Errorf("corrupt timestamp %q: %w", v, err))
	}
	return t, nil
}

func parseDate(column, v string) (generic.Date, error) {
	d, err := generic.ParseDate(v)
	if err != nil {
		return generic.Date{}, generic.Persist("parse "+column, fmt.Errorf("corrupt date %q: %w", v, err))
	}
	return d, nil
}

// inClause renders "col IN (?, ?, ...)" and appends the args. An empty list
// renders a tautology so callers can append it unconditionally.
func inClause[T any](column string, values []T, args []any) (string, []any) {
	if len(values) == 0 {
		return "1 = 1", args
	}
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = "?"
		args = append(args, v)
	}
	return column + " IN (" + strings.Join(marks, ", ") + ")", args
}
