package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/audit-engine/generic"
)

// =============================================================================
// CHECKLIST ITEMS (generic.ItemStore interface)
// =============================================================================

const itemColumns = `id, form_type, sl_no, description, check_method, reading_unit, is_deleted`

// SaveItem inserts an item when ID is zero, otherwise updates it.
func (s *Store) SaveItem(ctx context.Context, item generic.ChecklistItem) (generic.ChecklistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveItem(ctx, s.db, item)
}

func (s *Store) saveItem(ctx context.Context, q querier, item generic.ChecklistItem) (generic.ChecklistItem, error) {
	if item.ID == 0 {
		query := s.dialect.Rebind(`
			INSERT INTO checklist_items (form_type, sl_no, description, check_method, reading_unit, is_deleted)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id
		`)
		err := q.QueryRowContext(ctx, query,
			string(item.FormType), item.SlNo, item.Description, item.CheckMethod, item.ReadingUnit, item.IsDeleted,
		).Scan(&item.ID)
		if err != nil {
			return generic.ChecklistItem{}, fmt.Errorf("failed to insert checklist item: %w", err)
		}
		return item, nil
	}

	query := s.dialect.Rebind(`
		UPDATE checklist_items
		SET form_type = ?, sl_no = ?, description = ?, check_method = ?, reading_unit = ?, is_deleted = ?
		WHERE id = ?
	`)
	res, err := q.ExecContext(ctx, query,
		string(item.FormType), item.SlNo, item.Description, item.CheckMethod, item.ReadingUnit, item.IsDeleted, int64(item.ID),
	)
	if err != nil {
		return generic.ChecklistItem{}, fmt.Errorf("failed to update checklist item: %w", err)
	}
	if err := expectRow(res, generic.ErrItemNotFound); err != nil {
		return generic.ChecklistItem{}, err
	}
	return item, nil
}

// GetItem retrieves an item by ID, including soft-deleted items.
func (s *Store) GetItem(ctx context.Context, id generic.ItemID) (generic.ChecklistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getItem(ctx, s.db, id)
}

func (s *Store) getItem(ctx context.Context, q querier, id generic.ItemID) (generic.ChecklistItem, error) {
	row := q.QueryRowContext(ctx, s.dialect.Rebind(`SELECT `+itemColumns+` FROM checklist_items WHERE id = ?`), int64(id))
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.ChecklistItem{}, generic.ErrItemNotFound
	}
	return item, err
}

// ListItems returns the items of a form ordered by SlNo.
func (s *Store) ListItems(ctx context.Context, formType generic.FormType, includeDeleted bool) ([]generic.ChecklistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listItems(ctx, s.db, formType, includeDeleted)
}

func (s *Store) listItems(ctx context.Context, q querier, formType generic.FormType, includeDeleted bool) ([]generic.ChecklistItem, error) {
	query := `SELECT ` + itemColumns + ` FROM checklist_items WHERE form_type = ?`
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}
	query += ` ORDER BY sl_no ASC, id ASC`

	rows, err := q.QueryContext(ctx, s.dialect.Rebind(query), string(formType))
	if err != nil {
		return nil, fmt.Errorf("failed to query checklist items: %w", err)
	}
	defer rows.Close()

	var items []generic.ChecklistItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SoftDeleteItem marks an item deleted. Observations referencing it remain.
func (s *Store) SoftDeleteItem(ctx context.Context, id generic.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.softDeleteItem(ctx, s.db, id)
}

func (s *Store) softDeleteItem(ctx context.Context, q querier, id generic.ItemID) error {
	res, err := q.ExecContext(ctx, s.dialect.Rebind(`UPDATE checklist_items SET is_deleted = TRUE WHERE id = ?`), int64(id))
	if err != nil {
		return fmt.Errorf("failed to delete checklist item: %w", err)
	}
	return expectRow(res, generic.ErrItemNotFound)
}

func scanItem(row scanner) (generic.ChecklistItem, error) {
	var item generic.ChecklistItem
	err := row.Scan(&item.ID, &item.FormType, &item.SlNo, &item.Description,
		&item.CheckMethod, &item.ReadingUnit, &item.IsDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return item, err
		}
		return item, fmt.Errorf("failed to scan checklist item: %w", err)
	}
	return item, nil
}

// =============================================================================
// DAILY LEDGER (generic.ObservationStore interface)
// =============================================================================

const observationColumns = `id, item_id, line_id, log_date, status, reading, sign_off, submission_id, last_updated`

// FindObservation returns the observation for a key, or nil.
func (s *Store) FindObservation(ctx context.Context, key generic.ObservationKey) (*generic.DailyObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findObservation(ctx, s.db, key)
}

func (s *Store) findObservation(ctx context.Context, q querier, key generic.ObservationKey) (*generic.DailyObservation, error) {
	query := s.dialect.Rebind(`
		SELECT ` + observationColumns + `
		FROM daily_observations
		WHERE item_id = ? AND line_id = ? AND log_date = ?
	`)
	obs, err := scanObservation(q.QueryRowContext(ctx, query, int64(key.ItemID), string(key.LineID), key.LogDate.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

// InsertObservation adds a new ledger row.
func (s *Store) InsertObservation(ctx context.Context, obs generic.DailyObservation) (generic.DailyObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertObservation(ctx, s.db, obs)
}

func (s *Store) insertObservation(ctx context.Context, q querier, obs generic.DailyObservation) (generic.DailyObservation, error) {
	if obs.LastUpdated.IsZero() {
		obs.LastUpdated = s.now().UTC()
	}
	query := s.dialect.Rebind(`
		INSERT INTO daily_observations
		(item_id, line_id, log_date, status, reading, sign_off, submission_id, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := q.QueryRowContext(ctx, query,
		int64(obs.ItemID),
		string(obs.LineID),
		obs.LogDate.String(),
		string(obs.Status),
		readingArg(obs.Reading),
		obs.SignOff,
		obs.SubmissionID,
		formatTime(obs.LastUpdated),
	).Scan(&obs.ID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.DailyObservation{}, generic.ErrDuplicateKey
		}
		return generic.DailyObservation{}, fmt.Errorf("failed to insert observation: %w", err)
	}
	return obs, nil
}

// UpdateObservation overwrites a ledger row in place.
func (s *Store) UpdateObservation(ctx context.Context, obs generic.DailyObservation) (generic.DailyObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateObservation(ctx, s.db, obs)
}

func (s *Store) updateObservation(ctx context.Context, q querier, obs generic.DailyObservation) (generic.DailyObservation, error) {
	if obs.LastUpdated.IsZero() {
		obs.LastUpdated = s.now().UTC()
	}
	query := s.dialect.Rebind(`
		UPDATE daily_observations
		SET status = ?, reading = ?, sign_off = ?, submission_id = ?, last_updated = ?
		WHERE id = ?
		RETURNING ` + observationColumns)
	saved, err := scanObservation(q.QueryRowContext(ctx, query,
		string(obs.Status),
		readingArg(obs.Reading),
		obs.SignOff,
		obs.SubmissionID,
		formatTime(obs.LastUpdated),
		int64(obs.ID),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return generic.DailyObservation{}, generic.ErrObservationNotFound
	}
	return saved, err
}

// ListObservations returns rows for a line within a period.
func (s *Store) ListObservations(ctx context.Context, lineID generic.LineID, period generic.Period, items []generic.ItemID) ([]generic.DailyObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listObservations(ctx, s.db, lineID, period, items)
}

func (s *Store) listObservations(ctx context.Context, q querier, lineID generic.LineID, period generic.Period, items []generic.ItemID) ([]generic.DailyObservation, error) {
	args := []any{string(lineID), period.Start.String(), period.End.String()}
	filter, args := inClause("item_id", itemArgs(items), args)
	query := s.dialect.Rebind(`
		SELECT ` + observationColumns + `
		FROM daily_observations
		WHERE line_id = ? AND log_date >= ? AND log_date <= ? AND ` + filter + `
		ORDER BY log_date ASC, item_id ASC
	`)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var out []generic.DailyObservation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

func scanObservation(row scanner) (generic.DailyObservation, error) {
	var (
		obs         generic.DailyObservation
		logDate     string
		status      string
		reading     sql.NullString
		lastUpdated string
	)
	err := row.Scan(&obs.ID, &obs.ItemID, &obs.LineID, &logDate, &status,
		&reading, &obs.SignOff, &obs.SubmissionID, &lastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return obs, err
		}
		return obs, fmt.Errorf("failed to scan observation: %w", err)
	}
	if obs.LogDate, err = parseDate("log_date", logDate); err != nil {
		return obs, err
	}
	obs.Status = generic.Status(status)
	if obs.LastUpdated, err = parseTimestamp("last_updated", lastUpdated); err != nil {
		return obs, err
	}
	if reading.Valid && reading.String != "" {
		d, err := decimal.NewFromString(reading.String)
		if err != nil {
			return obs, fmt.Errorf("corrupt reading %q on observation %d: %w", reading.String, obs.ID, err)
		}
		obs.Reading = &d
	}
	return obs, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func itemArgs(items []generic.ItemID) []int64 {
	out := make([]int64, len(items))
	for i, id := range items {
		out[i] = int64(id)
	}
	return out
}

func readingArg(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
