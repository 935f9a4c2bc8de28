package sqlstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

const (
	DriverSQLite3 = "sqlite3"
	DriverSQLite  = "sqlite"
	DriverPgx     = "pgx"
)

// Dialect captures the few differences between SQLite and PostgreSQL.
type Dialect struct {
	Driver     string
	PrimaryKey string
	Pragmas    []string
	SingleConn bool
	Dollar     bool
	dsn        func(string) string
}

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverSQLite3, "":
		return Dialect{
			Driver:     DriverSQLite3,
			PrimaryKey: "INTEGER PRIMARY KEY AUTOINCREMENT",
			SingleConn: true,
			dsn: func(path string) string {
				if path == ":memory:" {
					return path + "?_foreign_keys=on"
				}
				return path + "?_foreign_keys=on&_journal_mode=WAL"
			},
		}, nil
	case DriverSQLite:
		return Dialect{
			Driver:     DriverSQLite,
			PrimaryKey: "INTEGER PRIMARY KEY AUTOINCREMENT",
			Pragmas:    []string{"PRAGMA foreign_keys = ON"},
			SingleConn: true,
		}, nil
	case DriverPgx, "postgres":
		return Dialect{
			Driver:     DriverPgx,
			PrimaryKey: "BIGSERIAL PRIMARY KEY",
			Dollar:     true,
		}, nil
	}
	return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
}

func (d Dialect) DSN(dsn string) string {
	if d.dsn == nil {
		return dsn
	}
	return d.dsn(dsn)
}

// Rebind rewrites "?" placeholders to "$n" for PostgreSQL. Queries in this
// package never contain a literal question mark.
func (d Dialect) Rebind(query string) string {
	if !d.Dollar {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Schema returns the DDL for this dialect.
func (d Dialect) Schema() string {
	return strings.ReplaceAll(schema, "{{pk}}", d.PrimaryKey)
}

const schema = `
	-- Checklist master list (soft delete only)
	CREATE TABLE IF NOT EXISTS checklist_items (
		id {{pk}},
		form_type TEXT NOT NULL,
		sl_no INTEGER NOT NULL,
		description TEXT NOT NULL,
		check_method TEXT NOT NULL DEFAULT '',
		reading_unit TEXT NOT NULL DEFAULT '',
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_items_form
		ON checklist_items(form_type, sl_no);

	-- Daily ledger
	CREATE TABLE IF NOT EXISTS daily_observations (
		id {{pk}},
		item_id BIGINT NOT NULL REFERENCES checklist_items(id),
		line_id TEXT NOT NULL,
		log_date TEXT NOT NULL,
		status TEXT NOT NULL,
		reading TEXT,
		sign_off TEXT NOT NULL DEFAULT '',
		submission_id TEXT NOT NULL DEFAULT '',
		last_updated TEXT NOT NULL
	);

	-- CRITICAL: at most one observation per (item, line, date)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_observations_key
		ON daily_observations(item_id, line_id, log_date);

	-- Day and month scans (hot path)
	CREATE INDEX IF NOT EXISTS idx_observations_line_date
		ON daily_observations(line_id, log_date);

	-- Non-conformance reports
	CREATE TABLE IF NOT EXISTS non_conformance_reports (
		id {{pk}},
		item_id BIGINT NOT NULL REFERENCES checklist_items(id),
		line_id TEXT NOT NULL,
		report_date TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		correction TEXT NOT NULL DEFAULT '',
		root_cause TEXT NOT NULL DEFAULT '',
		corrective_action TEXT NOT NULL DEFAULT '',
		target_date TEXT,
		responsibility TEXT NOT NULL DEFAULT '',
		sign_off TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'Pending',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_ncr_key
		ON non_conformance_reports(item_id, line_id, report_date);

	CREATE INDEX IF NOT EXISTS idx_ncr_line_date
		ON non_conformance_reports(line_id, report_date);

	-- Schema registry
	CREATE TABLE IF NOT EXISTS custom_columns (
		id {{pk}},
		form_type TEXT NOT NULL,
		column_name TEXT NOT NULL,
		display_order INTEGER NOT NULL,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_columns_form
		ON custom_columns(form_type, display_order);

	-- Attribute store, values survive column soft delete
	CREATE TABLE IF NOT EXISTS custom_column_values (
		record_id BIGINT NOT NULL,
		column_id BIGINT NOT NULL REFERENCES custom_columns(id),
		value TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (record_id, column_id)
	);

	CREATE INDEX IF NOT EXISTS idx_values_column
		ON custom_column_values(column_id)
`

// isUniqueConstraintError recognizes unique violations from all three drivers.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
