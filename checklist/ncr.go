/*
ncr.go - Non-conformance report workflow

PURPOSE:
  A failed checkpoint is recorded as a report with root-cause and
  corrective-action fields. Reporting is the only path that produces a
  report, and it forces the linked observation into NotOK.

RULES:
  1. One report per (item, line, report date); re-reporting overwrites it
  2. A Holiday/VatCleaning observation or day cannot be reported
  3. The report and the NotOK observation commit together
  4. Reports are never deleted; reverting the observation to Done/NA only
     removes the report from the pending-corrections surface

SEE ALSO:
  - batch.go: Requires a report before accepting NotOK
  - ledger.go: Day override derivation
*/
package checklist

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/audit-engine/generic"
	"github.com/warp/audit-engine/metrics"
)

// NCRInput is the body of a new or corrected report.
type NCRInput struct {
	ItemID           generic.ItemID
	LineID           generic.LineID
	ReportDate       generic.Date
	Details          string
	Correction       string
	RootCause        string
	CorrectiveAction string
	TargetDate       *generic.Date
	Responsibility   string
	SignOff          string
}

// NCRUpdate is an external workflow update. Nil fields are left unchanged.
type NCRUpdate struct {
	Details          *string
	Correction       *string
	RootCause        *string
	CorrectiveAction *string
	TargetDate       *generic.Date
	Responsibility   *string
	SignOff          *string
	Status           *generic.NCRStatus
}

// PendingCorrection is a report still waiting for its corrective action.
type PendingCorrection struct {
	Report      generic.NonConformanceReport
	Item        generic.ChecklistItem
	Observation generic.DailyObservation
}

// Workflow manages non-conformance reports.
type Workflow struct {
	store   generic.TxStore
	logger  *zap.Logger
	metrics *metrics.Metrics

	Now func() time.Time
}

func NewWorkflow(store generic.TxStore, logger *zap.Logger, m *metrics.Metrics) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{store: store, logger: logger, metrics: m, Now: time.Now}
}

// ReportNonConformance upserts the report for the key and forces the
// observation to NotOK. It returns both persisted rows.
func (w *Workflow) ReportNonConformance(ctx context.Context, in NCRInput) (generic.NonConformanceReport, generic.DailyObservation, error) {
	if in.ItemID == 0 {
		return generic.NonConformanceReport{}, generic.DailyObservation{}, generic.Invalid(generic.CodeRequired, "checklistItemId", "item is required")
	}
	if strings.TrimSpace(string(in.LineID)) == "" {
		return generic.NonConformanceReport{}, generic.DailyObservation{}, generic.Invalid(generic.CodeRequired, "lineId", "line is required")
	}
	if in.ReportDate.IsZero() {
		return generic.NonConformanceReport{}, generic.DailyObservation{}, generic.Invalid(generic.CodeRequired, "reportDate", "report date is required")
	}

	var (
		report  generic.NonConformanceReport
		obs     generic.DailyObservation
		created bool
	)
	key := generic.ObservationKey{ItemID: in.ItemID, LineID: in.LineID, LogDate: in.ReportDate}

	err := w.store.WithTx(ctx, func(tx generic.Store) error {
		item, err := tx.GetItem(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if item.IsDeleted {
			return generic.Invalid(generic.CodeUnknownItem, "checklistItemId", "item %d is retired", item.ID)
		}

		existingObs, err := tx.FindObservation(ctx, key)
		if err != nil {
			return generic.Persist("find observation", err)
		}
		if existingObs != nil && existingObs.Status.IsDayOverride() {
			return generic.Invalid(generic.CodeDayOverride, "checklistItemId",
				"item %d is %s on %s", item.ID, existingObs.Status, in.ReportDate)
		}
		override, err := NewLedger(tx).DayOverride(ctx, item.FormType, in.LineID, in.ReportDate)
		if err != nil {
			return err
		}
		if override != generic.StatusPending {
			return generic.Invalid(generic.CodeDayOverride, "reportDate",
				"%s on line %s is marked %s", in.ReportDate, in.LineID, override)
		}

		report, created, err = upsertReport(ctx, tx, in)
		if err != nil {
			return err
		}

		next := generic.DailyObservation{
			ItemID:  in.ItemID,
			LineID:  in.LineID,
			LogDate: in.ReportDate,
			Status:  generic.StatusNotOK,
			SignOff: in.SignOff,
		}
		if existingObs != nil {
			next.Reading = existingObs.Reading
			next.SubmissionID = existingObs.SubmissionID
			if next.SignOff == "" {
				next.SignOff = existingObs.SignOff
			}
		}
		ledger := generic.NewLedger(tx)
		ledger.Now = w.Now
		obs, err = ledger.Record(ctx, next)
		return generic.Persist("force not ok", err)
	})
	if err != nil {
		w.logger.Info("report rejected",
			zap.Int64("item_id", int64(in.ItemID)),
			zap.String("line_id", string(in.LineID)),
			zap.Error(err))
		return generic.NonConformanceReport{}, generic.DailyObservation{}, generic.Persist("report non-conformance", err)
	}

	action := "updated"
	if created {
		action = "created"
	}
	w.metrics.NCR(action)
	w.logger.Info("non-conformance reported",
		zap.Int64("ncr_id", int64(report.ID)),
		zap.Int64("item_id", int64(report.ItemID)),
		zap.String("line_id", string(report.LineID)),
		zap.Stringer("report_date", report.ReportDate),
		zap.String("action", action),
	)
	return report, obs, nil
}

func upsertReport(ctx context.Context, tx generic.Store, in NCRInput) (generic.NonConformanceReport, bool, error) {
	key := generic.ObservationKey{ItemID: in.ItemID, LineID: in.LineID, LogDate: in.ReportDate}
	existing, err := tx.FindNCR(ctx, key)
	if err != nil {
		return generic.NonConformanceReport{}, false, generic.Persist("find report", err)
	}

	r := generic.NonConformanceReport{
		ItemID:           in.ItemID,
		LineID:           in.LineID,
		ReportDate:       in.ReportDate,
		Details:          in.Details,
		Correction:       in.Correction,
		RootCause:        in.RootCause,
		CorrectiveAction: in.CorrectiveAction,
		TargetDate:       in.TargetDate,
		Responsibility:   in.Responsibility,
		SignOff:          in.SignOff,
		Status:           generic.NCRPending,
	}
	if existing != nil {
		// A re-report is a fresh failure: the report reopens.
		r.ID = existing.ID
		saved, err := tx.UpdateNCR(ctx, r)
		return saved, false, generic.Persist("update report", err)
	}
	saved, err := tx.InsertNCR(ctx, r)
	return saved, true, generic.Persist("insert report", err)
}

// UpdateNCR applies an external workflow update such as closing a report.
func (w *Workflow) UpdateNCR(ctx context.Context, id generic.NCRID, u NCRUpdate) (generic.NonConformanceReport, error) {
	if u.Status != nil && !u.Status.Valid() {
		return generic.NonConformanceReport{}, generic.Invalid(generic.CodeInvalidStatus, "status",
			"report status must be %s or %s", generic.NCRPending, generic.NCRClosed)
	}

	var saved generic.NonConformanceReport
	err := w.store.WithTx(ctx, func(tx generic.Store) error {
		r, err := tx.GetNCR(ctx, id)
		if err != nil {
			return err
		}
		applyUpdate(&r, u)
		saved, err = tx.UpdateNCR(ctx, r)
		return err
	})
	if err != nil {
		return generic.NonConformanceReport{}, generic.Persist("update report", err)
	}

	if saved.Status == generic.NCRClosed {
		w.metrics.NCR("closed")
	} else {
		w.metrics.NCR("updated")
	}
	w.logger.Info("non-conformance updated",
		zap.Int64("ncr_id", int64(saved.ID)),
		zap.String("status", string(saved.Status)))
	return saved, nil
}

func applyUpdate(r *generic.NonConformanceReport, u NCRUpdate) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&r.Details, u.Details)
	set(&r.Correction, u.Correction)
	set(&r.RootCause, u.RootCause)
	set(&r.CorrectiveAction, u.CorrectiveAction)
	set(&r.Responsibility, u.Responsibility)
	set(&r.SignOff, u.SignOff)
	if u.TargetDate != nil {
		d := *u.TargetDate
		r.TargetDate = &d
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
}

// ListNCRs returns every report of a form on a line in the period.
func (w *Workflow) ListNCRs(ctx context.Context, formType generic.FormType, lineID generic.LineID, period generic.Period) ([]generic.NonConformanceReport, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	items, err := w.store.ListItems(ctx, formType, true)
	if err != nil {
		return nil, generic.Persist("list items", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	reports, err := w.store.ListNCRs(ctx, lineID, period, itemIDs(items))
	return reports, generic.Persist("list reports", err)
}

// PendingCorrections lists Pending reports whose observation is still NotOK.
// Reports left behind by a NotOK to Done correction are not listed.
func (w *Workflow) PendingCorrections(ctx context.Context, formType generic.FormType, lineID generic.LineID, period generic.Period) ([]PendingCorrection, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	items, err := w.store.ListItems(ctx, formType, true)
	if err != nil {
		return nil, generic.Persist("list items", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	ids := itemIDs(items)
	byID := make(map[generic.ItemID]generic.ChecklistItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	reports, err := w.store.ListNCRs(ctx, lineID, period, ids)
	if err != nil {
		return nil, generic.Persist("list reports", err)
	}
	observations, err := w.store.ListObservations(ctx, lineID, period, ids)
	if err != nil {
		return nil, generic.Persist("list observations", err)
	}
	byKey := make(map[generic.ObservationKey]generic.DailyObservation, len(observations))
	for _, o := range observations {
		byKey[o.Key()] = o
	}

	var out []PendingCorrection
	for _, r := range reports {
		if r.Status != generic.NCRPending {
			continue
		}
		obs, ok := byKey[r.Key()]
		if !ok || obs.Status != generic.StatusNotOK {
			continue
		}
		out = append(out, PendingCorrection{Report: r, Item: byID[r.ItemID], Observation: obs})
	}
	return out, nil
}
