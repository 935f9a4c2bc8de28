package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/audit-engine/generic"
)

// =============================================================================
// NON-CONFORMANCE REPORTS (generic.NCRStore interface)
// =============================================================================

const ncrColumns = `id, item_id, line_id, report_date, details, correction, root_cause,
	corrective_action, target_date, responsibility, sign_off, status, created_at, updated_at`

// FindNCR returns the report for a key, or nil.
func (s *Store) FindNCR(ctx context.Context, key generic.ObservationKey) (*generic.NonConformanceReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findNCR(ctx, s.db, key)
}

func (s *Store) findNCR(ctx context.Context, q querier, key generic.ObservationKey) (*generic.NonConformanceReport, error) {
	query := s.dialect.Rebind(`
		SELECT ` + ncrColumns + `
		FROM non_conformance_reports
		WHERE item_id = ? AND line_id = ? AND report_date = ?
	`)
	ncr, err := scanNCR(q.QueryRowContext(ctx, query, int64(key.ItemID), string(key.LineID), key.LogDate.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ncr, nil
}

// GetNCR retrieves a report by ID.
func (s *Store) GetNCR(ctx context.Context, id generic.NCRID) (generic.NonConformanceReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getNCR(ctx, s.db, id)
}

func (s *Store) getNCR(ctx context.Context, q querier, id generic.NCRID) (generic.NonConformanceReport, error) {
	query := s.dialect.Rebind(`SELECT ` + ncrColumns + ` FROM non_conformance_reports WHERE id = ?`)
	ncr, err := scanNCR(q.QueryRowContext(ctx, query, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return generic.NonConformanceReport{}, generic.ErrNCRNotFound
	}
	return ncr, err
}

// InsertNCR adds a report. The key must be free.
func (s *Store) InsertNCR(ctx context.Context, ncr generic.NonConformanceReport) (generic.NonConformanceReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertNCR(ctx, s.db, ncr)
}

func (s *Store) insertNCR(ctx context.Context, q querier, ncr generic.NonConformanceReport) (generic.NonConformanceReport, error) {
	now := s.now().UTC()
	ncr.CreatedAt, ncr.UpdatedAt = now, now
	if ncr.Status == "" {
		ncr.Status = generic.NCRPending
	}

	query := s.dialect.Rebind(`
		INSERT INTO non_conformance_reports
		(item_id, line_id, report_date, details, correction, root_cause, corrective_action,
		 target_date, responsibility, sign_off, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := q.QueryRowContext(ctx, query,
		int64(ncr.ItemID),
		string(ncr.LineID),
		ncr.ReportDate.String(),
		ncr.Details,
		ncr.Correction,
		ncr.RootCause,
		ncr.CorrectiveAction,
		dateArg(ncr.TargetDate),
		ncr.Responsibility,
		ncr.SignOff,
		string(ncr.Status),
		formatTime(now),
		formatTime(now),
	).Scan(&ncr.ID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.NonConformanceReport{}, generic.ErrDuplicateKey
		}
		return generic.NonConformanceReport{}, fmt.Errorf("failed to insert non-conformance report: %w", err)
	}
	return ncr, nil
}

// UpdateNCR overwrites workflow fields. The key columns never change.
func (s *Store) UpdateNCR(ctx context.Context, ncr generic.NonConformanceReport) (generic.NonConformanceReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateNCR(ctx, s.db, ncr)
}

func (s *Store) updateNCR(ctx context.Context, q querier, ncr generic.NonConformanceReport) (generic.NonConformanceReport, error) {
	query := s.dialect.Rebind(`
		UPDATE non_conformance_reports
		SET details = ?, correction = ?, root_cause = ?, corrective_action = ?,
		    target_date = ?, responsibility = ?, sign_off = ?, status = ?, updated_at = ?
		WHERE id = ?
		RETURNING ` + ncrColumns)
	saved, err := scanNCR(q.QueryRowContext(ctx, query,
		ncr.Details,
		ncr.Correction,
		ncr.RootCause,
		ncr.CorrectiveAction,
		dateArg(ncr.TargetDate),
		ncr.Responsibility,
		ncr.SignOff,
		string(ncr.Status),
		formatTime(s.now()),
		int64(ncr.ID),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return generic.NonConformanceReport{}, generic.ErrNCRNotFound
	}
	return saved, err
}

// ListNCRs returns reports for a line within a period.
func (s *Store) ListNCRs(ctx context.Context, lineID generic.LineID, period generic.Period, items []generic.ItemID) ([]generic.NonConformanceReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listNCRs(ctx, s.db, lineID, period, items)
}

func (s *Store) listNCRs(ctx context.Context, q querier, lineID generic.LineID, period generic.Period, items []generic.ItemID) ([]generic.NonConformanceReport, error) {
	args := []any{string(lineID), period.Start.String(), period.End.String()}
	filter, args := inClause("item_id", itemArgs(items), args)
	query := s.dialect.Rebind(`
		SELECT ` + ncrColumns + `
		FROM non_conformance_reports
		WHERE line_id = ? AND report_date >= ? AND report_date <= ? AND ` + filter + `
		ORDER BY report_date ASC, item_id ASC
	`)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query non-conformance reports: %w", err)
	}
	defer rows.Close()

	var out []generic.NonConformanceReport
	for rows.Next() {
		ncr, err := scanNCR(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ncr)
	}
	return out, rows.Err()
}

func scanNCR(row scanner) (generic.NonConformanceReport, error) {
	var (
		ncr        generic.NonConformanceReport
		reportDate string
		targetDate sql.NullString
		status     string
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(&ncr.ID, &ncr.ItemID, &ncr.LineID, &reportDate, &ncr.Details,
		&ncr.Correction, &ncr.RootCause, &ncr.CorrectiveAction, &targetDate,
		&ncr.Responsibility, &ncr.SignOff, &status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ncr, err
		}
		return ncr, fmt.Errorf("failed to scan non-conformance report: %w", err)
	}
	if ncr.ReportDate, err = parseDate("report_date", reportDate); err != nil {
		return ncr, err
	}
	if targetDate.Valid && targetDate.String != "" {
		d, err := parseDate("target_date", targetDate.String)
		if err != nil {
			return ncr, err
		}
		ncr.TargetDate = &d
	}
	ncr.Status = generic.NCRStatus(status)
	if ncr.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return ncr, err
	}
	if ncr.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
		return ncr, err
	}
	return ncr, nil
}

func dateArg(d *generic.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
