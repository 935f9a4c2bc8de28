/*
batch.go - Batch Submission Coordinator

PURPOSE:
  Persists a full day of checklist answers for one (form, line, date) as a
  single all-or-nothing unit. A day with some checkpoints verified and
  others silently missing is never written.

VALIDATION (before any write):
  1. Every submitted item exists, is active and belongs to the form
  2. No item appears twice
  3. Holiday/VatCleaning on any item forces the whole day to that status;
     both in one batch is a conflict
  4. Without an override, every active item carries a terminal status
  5. SignOff is required unless the day is under an override
  6. Readings only on items with a unit, and they must be decimals
  7. NotOK requires an existing non-conformance report for the key

WRITE:
  Inside one WithTx: per item, find by (item, line, date), update in place
  or insert. Any failure rolls back every row of the batch and surfaces as a
  PersistenceError. No report is created or changed here.

SEE ALSO:
  - ncr.go: The independent path that creates reports and forces NotOK
  - generic/ledger.go: Key-level upsert used inside the transaction
*/
package checklist

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/audit-engine/generic"
	"github.com/warp/audit-engine/metrics"
)

// BatchItem is one checkpoint answer. Reading is the raw decimal text.
type BatchItem struct {
	ItemID  generic.ItemID
	Status  generic.Status
	Reading string
}

// Batch is a full day for one form and line.
type Batch struct {
	FormType generic.FormType
	LineID   generic.LineID
	LogDate  generic.Date
	SignOff  string
	Items    []BatchItem
}

// Coordinator writes daily batches.
type Coordinator struct {
	store   generic.TxStore
	logger  *zap.Logger
	metrics *metrics.Metrics

	// Now and NewID are overridable in tests.
	Now   func() time.Time
	NewID func() string
}

func NewCoordinator(store generic.TxStore, logger *zap.Logger, m *metrics.Metrics) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:   store,
		logger:  logger,
		metrics: m,
		Now:     time.Now,
		NewID:   uuid.NewString,
	}
}

// resolvedItem is a validated answer ready to be written.
type resolvedItem struct {
	item    generic.ChecklistItem
	status  generic.Status
	reading *decimal.Decimal
}

// SubmitBatch validates and persists a day. It returns the persisted rows in
// checklist order.
func (c *Coordinator) SubmitBatch(ctx context.Context, b Batch) ([]generic.DailyObservation, error) {
	log := c.logger.With(
		zap.String("form_type", string(b.FormType)),
		zap.String("line_id", string(b.LineID)),
		zap.Stringer("log_date", b.LogDate),
	)

	items, err := c.store.ListItems(ctx, b.FormType, false)
	if err != nil {
		c.metrics.Batch(string(b.FormType), metrics.OutcomeFailed)
		return nil, generic.Persist("list items", err)
	}

	resolved, override, err := resolveBatch(b, items)
	if err != nil {
		c.metrics.Batch(string(b.FormType), metrics.OutcomeRejected)
		log.Info("batch rejected", zap.Error(err))
		return nil, err
	}

	submissionID := c.NewID()
	var saved []generic.DailyObservation

	err = c.store.WithTx(ctx, func(tx generic.Store) error {
		saved = saved[:0]
		if err := requireReports(ctx, tx, b, resolved); err != nil {
			return err
		}

		ledger := generic.NewLedger(tx)
		ledger.Now = c.Now
		for _, r := range resolved {
			obs, err := ledger.Record(ctx, generic.DailyObservation{
				ItemID:       r.item.ID,
				LineID:       b.LineID,
				LogDate:      b.LogDate,
				Status:       r.status,
				Reading:      r.reading,
				SignOff:      b.SignOff,
				SubmissionID: submissionID,
			})
			if err != nil {
				return generic.Persist("record observation", err)
			}
			saved = append(saved, obs)
		}
		return nil
	})
	if err != nil {
		if generic.IsClientError(err) {
			c.metrics.Batch(string(b.FormType), metrics.OutcomeRejected)
			log.Info("batch rejected", zap.Error(err))
			return nil, err
		}
		c.metrics.Batch(string(b.FormType), metrics.OutcomeFailed)
		log.Error("batch rolled back", zap.Error(err))
		return nil, generic.Persist("submit batch", err)
	}

	c.metrics.Batch(string(b.FormType), metrics.OutcomeAccepted)
	for _, obs := range saved {
		c.metrics.Observation(string(b.FormType), string(obs.Status))
	}
	log.Info("batch submitted",
		zap.String("submission_id", submissionID),
		zap.Int("rows", len(saved)),
		zap.String("override", string(override)),
	)
	return saved, nil
}

// resolveBatch runs every check that needs no database access and returns
// the answers in checklist order.
func resolveBatch(b Batch, active []generic.ChecklistItem) ([]resolvedItem, generic.Status, error) {
	if strings.TrimSpace(string(b.FormType)) == "" {
		return nil, "", generic.Invalid(generic.CodeRequired, "formType", "form type is required")
	}
	if strings.TrimSpace(string(b.LineID)) == "" {
		return nil, "", generic.Invalid(generic.CodeRequired, "lineId", "line is required")
	}
	if b.LogDate.IsZero() {
		return nil, "", generic.Invalid(generic.CodeRequired, "logDate", "log date is required")
	}
	if len(active) == 0 {
		return nil, "", generic.Invalid(generic.CodeUnknownItem, "formType", "form %s has no checklist items", b.FormType)
	}

	byID := make(map[generic.ItemID]generic.ChecklistItem, len(active))
	for _, item := range active {
		byID[item.ID] = item
	}

	submitted := make(map[generic.ItemID]BatchItem, len(b.Items))
	override := generic.StatusPending
	for _, in := range b.Items {
		if _, ok := byID[in.ItemID]; !ok {
			return nil, "", generic.Invalid(generic.CodeUnknownItem, "items",
				"item %d is not an active checkpoint of %s", in.ItemID, b.FormType)
		}
		if _, dup := submitted[in.ItemID]; dup {
			return nil, "", generic.Invalid(generic.CodeDuplicateItem, "items",
				"item %d submitted more than once", in.ItemID)
		}
		if !in.Status.Valid() {
			return nil, "", generic.Invalid(generic.CodeInvalidStatus, "items",
				"item %d has unknown status %q", in.ItemID, in.Status)
		}
		if in.Status.IsDayOverride() {
			if override != generic.StatusPending && override != in.Status {
				return nil, "", generic.Invalid(generic.CodeConflictingStatus, "items",
					"%s and %s cannot both apply to one day", override, in.Status)
			}
			override = in.Status
		}
		submitted[in.ItemID] = in
	}

	if override == generic.StatusPending && strings.TrimSpace(b.SignOff) == "" {
		return nil, "", generic.Invalid(generic.CodeMissingSignOff, "signOff", "sign-off is required")
	}

	out := make([]resolvedItem, 0, len(active))
	var missing []generic.ItemID
	for _, item := range active {
		in, ok := submitted[item.ID]

		// The override covers every item and clears any other answer.
		if override != generic.StatusPending {
			out = append(out, resolvedItem{item: item, status: override})
			continue
		}
		if !ok || !in.Status.IsTerminal() {
			missing = append(missing, item.ID)
			continue
		}

		r := resolvedItem{item: item, status: in.Status}
		if reading := strings.TrimSpace(in.Reading); reading != "" {
			d, err := parseReading(item, in.Status, reading)
			if err != nil {
				return nil, "", err
			}
			r.reading = &d
		}
		out = append(out, r)
	}
	if len(missing) > 0 {
		return nil, "", generic.Invalid(generic.CodeIncompleteBatch, "items",
			"%d of %d checkpoints unanswered: %v", len(missing), len(active), missing)
	}
	return out, override, nil
}

func parseReading(item generic.ChecklistItem, status generic.Status, raw string) (decimal.Decimal, error) {
	if !item.TakesReading() {
		return decimal.Decimal{}, generic.Invalid(generic.CodeInvalidReading, "items",
			"item %d does not record a reading", item.ID)
	}
	if status != generic.StatusDone && status != generic.StatusNotOK {
		return decimal.Decimal{}, generic.Invalid(generic.CodeInvalidReading, "items",
			"item %d cannot carry a reading when %s", item.ID, status)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, generic.Invalid(generic.CodeInvalidReading, "items",
			"item %d reading %q is not a number", item.ID, raw)
	}
	return d, nil
}

// requireReports rejects NotOK answers that have no report behind them.
func requireReports(ctx context.Context, tx generic.Store, b Batch, resolved []resolvedItem) error {
	for _, r := range resolved {
		if r.status != generic.StatusNotOK {
			continue
		}
		key := generic.ObservationKey{ItemID: r.item.ID, LineID: b.LineID, LogDate: b.LogDate}
		ncr, err := tx.FindNCR(ctx, key)
		if err != nil {
			return generic.Persist("find report", err)
		}
		if ncr == nil {
			return generic.Invalid(generic.CodeNCRRequired, "items",
				"item %d is NotOK without a non-conformance report", r.item.ID)
		}
	}
	return nil
}
