/*
ledger.go - Daily transaction ledger

PURPOSE:
  The Ledger holds one observation per (checklist item, line, calendar date).
  It is the mutable heart of the engine: a resubmission for the same key
  overwrites the row in place, it never appends a second one.

CRITICAL INVARIANTS:
  1. UNIQUE KEY: at most one DailyObservation per (ItemID, LineID, LogDate)
  2. SINGLE STATE: a row holds exactly one Status, never a combination
  3. NO CARRY-OVER: each date starts at Pending; yesterday's row is not read

WHY UPSERT AND NOT APPEND?
  The monthly report shows what the line looked like at the end of each day.
  A correction (Done -> NotOK after a failure is found) replaces the day's
  answer. The NCR row keeps the audit trail of the failure itself.

SEE ALSO:
  - store.go: Low-level persistence interface
  - checklist/ledger.go: Domain wrapper enforcing the state machine
*/
package generic

import (
	"context"
	"errors"
	"time"
)

// Ledger is the daily observation log.
type Ledger interface {
	// Record upserts the observation by key and returns the persisted row.
	Record(ctx context.Context, obs DailyObservation) (DailyObservation, error)

	// Lookup returns the observation for a key, or nil if the item is still Pending.
	Lookup(ctx context.Context, key ObservationKey) (*DailyObservation, error)

	// Day returns the observations of the given items on one line/date, keyed by item.
	Day(ctx context.Context, lineID LineID, date Date, items []ItemID) (map[ItemID]DailyObservation, error)

	// Range returns observations for a line in the period.
	Range(ctx context.Context, lineID LineID, period Period, items []ItemID) ([]DailyObservation, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using ObservationStore
// =============================================================================

type DefaultLedger struct {
	Store ObservationStore
	// Now is overridable in tests.
	Now func() time.Time
}

func NewLedger(store ObservationStore) *DefaultLedger {
	return &DefaultLedger{Store: store, Now: time.Now}
}

func (l *DefaultLedger) Record(ctx context.Context, obs DailyObservation) (DailyObservation, error) {
	if !obs.Status.IsTerminal() {
		return DailyObservation{}, Invalid(CodeInvalidStatus, "status", "status %q cannot be persisted", obs.Status)
	}
	obs.LastUpdated = l.Now().UTC()

	existing, err := l.Store.FindObservation(ctx, obs.Key())
	if err != nil {
		return DailyObservation{}, err
	}
	if existing != nil {
		obs.ID = existing.ID
		return l.Store.UpdateObservation(ctx, obs)
	}

	saved, err := l.Store.InsertObservation(ctx, obs)
	if errors.Is(err, ErrDuplicateKey) {
		// Lost an insert race with another writer: converge on their row.
		existing, ferr := l.Store.FindObservation(ctx, obs.Key())
		if ferr != nil || existing == nil {
			return DailyObservation{}, err
		}
		obs.ID = existing.ID
		return l.Store.UpdateObservation(ctx, obs)
	}
	return saved, err
}

func (l *DefaultLedger) Lookup(ctx context.Context, key ObservationKey) (*DailyObservation, error) {
	return l.Store.FindObservation(ctx, key)
}

func (l *DefaultLedger) Day(ctx context.Context, lineID LineID, date Date, items []ItemID) (map[ItemID]DailyObservation, error) {
	rows, err := l.Store.ListObservations(ctx, lineID, Period{Start: date, End: date}, items)
	if err != nil {
		return nil, err
	}
	out := make(map[ItemID]DailyObservation, len(rows))
	for _, o := range rows {
		out[o.ItemID] = o
	}
	return out, nil
}

func (l *DefaultLedger) Range(ctx context.Context, lineID LineID, period Period, items []ItemID) ([]DailyObservation, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	return l.Store.ListObservations(ctx, lineID, period, items)
}
