package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/audit-engine/generic"
)

// =============================================================================
// SCHEMA REGISTRY (generic.ColumnStore interface)
// =============================================================================

const columnColumns = `id, form_type, column_name, display_order, is_deleted`

// InsertColumn appends a column at max(display_order)+1 for the form type.
// The order is computed inside the INSERT so two admins adding columns at
// once cannot read the same maximum.
func (s *Store) InsertColumn(ctx context.Context, formType generic.FormType, name string) (generic.CustomColumnDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertColumn(ctx, s.db, formType, name)
}

func (s *Store) insertColumn(ctx context.Context, q querier, formType generic.FormType, name string) (generic.CustomColumnDefinition, error) {
	query := s.dialect.Rebind(`
		INSERT INTO custom_columns (form_type, column_name, display_order, is_deleted)
		SELECT ?, ?, COALESCE(MAX(display_order), 0) + 1, FALSE
		FROM custom_columns
		WHERE form_type = ?
		RETURNING ` + columnColumns)
	col, err := scanColumn(q.QueryRowContext(ctx, query, string(formType), name, string(formType)))
	if err != nil {
		return generic.CustomColumnDefinition{}, fmt.Errorf("failed to insert custom column: %w", err)
	}
	return col, nil
}

// GetColumn retrieves a column by ID, including retired columns.
func (s *Store) GetColumn(ctx context.Context, id generic.ColumnID) (generic.CustomColumnDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getColumn(ctx, s.db, id)
}

func (s *Store) getColumn(ctx context.Context, q querier, id generic.ColumnID) (generic.CustomColumnDefinition, error) {
	query := s.dialect.Rebind(`SELECT ` + columnColumns + ` FROM custom_columns WHERE id = ?`)
	col, err := scanColumn(q.QueryRowContext(ctx, query, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return generic.CustomColumnDefinition{}, generic.ErrColumnNotFound
	}
	return col, err
}

// RenameColumn changes the display name. Values are keyed by ID and follow.
func (s *Store) RenameColumn(ctx context.Context, id generic.ColumnID, name string) (generic.CustomColumnDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renameColumn(ctx, s.db, id, name)
}

func (s *Store) renameColumn(ctx context.Context, q querier, id generic.ColumnID, name string) (generic.CustomColumnDefinition, error) {
	query := s.dialect.Rebind(`UPDATE custom_columns SET column_name = ? WHERE id = ? RETURNING ` + columnColumns)
	col, err := scanColumn(q.QueryRowContext(ctx, query, name, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return generic.CustomColumnDefinition{}, generic.ErrColumnNotFound
	}
	return col, err
}

// SoftDeleteColumn hides a column. custom_column_values is not touched.
func (s *Store) SoftDeleteColumn(ctx context.Context, id generic.ColumnID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.softDeleteColumn(ctx, s.db, id)
}

func (s *Store) softDeleteColumn(ctx context.Context, q querier, id generic.ColumnID) error {
	res, err := q.ExecContext(ctx, s.dialect.Rebind(`UPDATE custom_columns SET is_deleted = TRUE WHERE id = ?`), int64(id))
	if err != nil {
		return fmt.Errorf("failed to delete custom column: %w", err)
	}
	return expectRow(res, generic.ErrColumnNotFound)
}

// ListColumns returns the columns of a form in display order.
func (s *Store) ListColumns(ctx context.Context, formType generic.FormType, includeDeleted bool) ([]generic.CustomColumnDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listColumns(ctx, s.db, formType, includeDeleted)
}

func (s *Store) listColumns(ctx context.Context, q querier, formType generic.FormType, includeDeleted bool) ([]generic.CustomColumnDefinition, error) {
	query := `SELECT ` + columnColumns + ` FROM custom_columns WHERE form_type = ?`
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}
	query += ` ORDER BY display_order ASC, id ASC`

	rows, err := q.QueryContext(ctx, s.dialect.Rebind(query), string(formType))
	if err != nil {
		return nil, fmt.Errorf("failed to query custom columns: %w", err)
	}
	defer rows.Close()

	var cols []generic.CustomColumnDefinition
	for rows.Next() {
		col, err := scanColumn(rows)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func scanColumn(row scanner) (generic.CustomColumnDefinition, error) {
	var col generic.CustomColumnDefinition
	err := row.Scan(&col.ID, &col.FormType, &col.Name, &col.DisplayOrder, &col.IsDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return col, err
		}
		return col, fmt.Errorf("failed to scan custom column: %w", err)
	}
	return col, nil
}

// =============================================================================
// ATTRIBUTE STORE (generic.ValueStore interface)
// =============================================================================

// UpsertValue writes one value: update if the (record, column) row exists,
// else insert. A single statement, so a double write converges on one row.
func (s *Store) UpsertValue(ctx context.Context, v generic.CustomColumnValue) (generic.CustomColumnValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertValue(ctx, s.db, v)
}

func (s *Store) upsertValue(ctx context.Context, q querier, v generic.CustomColumnValue) (generic.CustomColumnValue, error) {
	if _, err := s.getColumn(ctx, q, v.ColumnID); err != nil {
		return generic.CustomColumnValue{}, err
	}

	v.UpdatedAt = s.now().UTC()
	query := s.dialect.Rebind(`
		INSERT INTO custom_column_values (record_id, column_id, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (record_id, column_id) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`)
	_, err := q.ExecContext(ctx, query, int64(v.RecordID), int64(v.ColumnID), v.Value, formatTime(v.UpdatedAt))
	if err != nil {
		return generic.CustomColumnValue{}, fmt.Errorf("failed to upsert custom value: %w", err)
	}
	return v, nil
}

// ListValues fetches every value of the given records in one query.
func (s *Store) ListValues(ctx context.Context, records []generic.RecordID) ([]generic.CustomColumnValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listValues(ctx, s.db, records)
}

func (s *Store) listValues(ctx context.Context, q querier, records []generic.RecordID) ([]generic.CustomColumnValue, error) {
	if len(records) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = int64(r)
	}
	filter, args := inClause("record_id", ids, nil)
	query := s.dialect.Rebind(`
		SELECT record_id, column_id, value, updated_at
		FROM custom_column_values
		WHERE ` + filter + `
		ORDER BY record_id ASC, column_id ASC
	`)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query custom values: %w", err)
	}
	defer rows.Close()

	var out []generic.CustomColumnValue
	for rows.Next() {
		var (
			v         generic.CustomColumnValue
			updatedAt string
		)
		if err := rows.Scan(&v.RecordID, &v.ColumnID, &v.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan custom value: %w", err)
		}
		if v.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeleteRecordValues removes every value of a deleted host record.
func (s *Store) DeleteRecordValues(ctx context.Context, record generic.RecordID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteRecordValues(ctx, s.db, record)
}

func (s *Store) deleteRecordValues(ctx context.Context, q querier, record generic.RecordID) (int, error) {
	res, err := q.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM custom_column_values WHERE record_id = ?`), int64(record))
	if err != nil {
		return 0, fmt.Errorf("failed to delete custom values: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
