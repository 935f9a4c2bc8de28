/*
ledger.go - Checklist view of the daily transaction ledger

PURPOSE:
  Wraps the generic ledger with form awareness. The generic ledger only
  knows (item, line, date) keys; a form's day is the set of rows for the
  form's items, and the Holiday/VatCleaning override is derived from them.

WHY DERIVED?
  There is no day-level table. The batch writes the override status on
  every item row, so "is this day a holiday" is simply "does any row of
  this form/line/date carry Holiday". Readers and the NCR workflow share
  the derivation through DayOverride.

SEE ALSO:
  - generic/ledger.go: Key-level upsert
  - batch.go: The writer that keeps override rows consistent
*/
package checklist

import (
	"context"

	"github.com/warp/audit-engine/generic"
)

// Ledger answers day-level questions for one form type at a time.
type Ledger struct {
	store generic.Store
	inner generic.Ledger
}

func NewLedger(store generic.Store) *Ledger {
	return &Ledger{store: store, inner: generic.NewLedger(store)}
}

// DayEntry is one row of the daily form.
type DayEntry struct {
	Item        generic.ChecklistItem
	Status      generic.Status
	Observation *generic.DailyObservation
	NCR         *generic.NonConformanceReport
}

// DayState is the daily form as the UI renders it.
type DayState struct {
	FormType generic.FormType
	LineID   generic.LineID
	Date     generic.Date
	Override generic.Status
	Entries  []DayEntry
}

// Complete reports whether every entry is answered.
func (d DayState) Complete() bool {
	for _, e := range d.Entries {
		if !e.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Day loads the form for one line and date: every active item with its
// observation (Pending when absent) and report, if any.
func (l *Ledger) Day(ctx context.Context, formType generic.FormType, lineID generic.LineID, date generic.Date) (DayState, error) {
	items, err := l.store.ListItems(ctx, formType, false)
	if err != nil {
		return DayState{}, generic.Persist("list items", err)
	}
	ids := itemIDs(items)

	observations, err := l.inner.Day(ctx, lineID, date, ids)
	if err != nil {
		return DayState{}, generic.Persist("load day", err)
	}
	reports, err := l.store.ListNCRs(ctx, lineID, generic.Period{Start: date, End: date}, ids)
	if err != nil {
		return DayState{}, generic.Persist("load reports", err)
	}
	byItem := make(map[generic.ItemID]generic.NonConformanceReport, len(reports))
	for _, r := range reports {
		byItem[r.ItemID] = r
	}

	state := DayState{FormType: formType, LineID: lineID, Date: date, Override: generic.StatusPending}
	rows := make([]generic.DailyObservation, 0, len(observations))
	for _, item := range items {
		entry := DayEntry{Item: item, Status: generic.StatusPending}
		if obs, ok := observations[item.ID]; ok {
			entry.Observation = &obs
			entry.Status = obs.Status
			rows = append(rows, obs)
		}
		if r, ok := byItem[item.ID]; ok {
			entry.NCR = &r
		}
		state.Entries = append(state.Entries, entry)
	}

	state.Override, err = dayOverride(rows)
	if err != nil {
		return DayState{}, err
	}
	return state, nil
}

// DayOverride returns Holiday or VatCleaning when the day is under a
// day-wide override, otherwise Pending. Only active items count: a batch
// rewrites active rows only, so a retired item's row may still carry an
// override the day no longer has. Day derives its override the same way.
func (l *Ledger) DayOverride(ctx context.Context, formType generic.FormType, lineID generic.LineID, date generic.Date) (generic.Status, error) {
	items, err := l.store.ListItems(ctx, formType, false)
	if err != nil {
		return "", generic.Persist("list items", err)
	}
	if len(items) == 0 {
		return generic.StatusPending, nil
	}
	rows, err := l.inner.Range(ctx, lineID, generic.Period{Start: date, End: date}, itemIDs(items))
	if err != nil {
		return "", generic.Persist("load day", err)
	}
	return dayOverride(rows)
}

func itemIDs(items []generic.ChecklistItem) []generic.ItemID {
	ids := make([]generic.ItemID, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}
