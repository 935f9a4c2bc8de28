/*
Package report builds the read models consumed by the monthly PDF export.

PURPOSE:
  Folds a month of ledger rows and non-conformance reports into an
  item x day-of-month matrix. Pure read: nothing is written.

CELL RESOLUTION (first match wins):
  1. Day under Holiday override     -> "H"  (whole day column)
  2. Day under VatCleaning override -> "VC" (whole day column)
  3. Done with a reading            -> the reading ("6.5")
  4. Done                           -> "Y"
  5. NotOK                          -> "N"
  6. NA                             -> "NA"
  No row for the day: the cell is absent (rendered blank).

ROWS:
  Every active item of the form, plus retired items that still have data
  in the month, ordered by serial number.

SEE ALSO:
  - checklist/ledger.go: Same day-override derivation for a single day
*/
package report

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/audit-engine/generic"
)

// Cell symbols.
const (
	CellDone        = "Y"
	CellNotOK       = "N"
	CellNA          = "NA"
	CellHoliday     = "H"
	CellVatCleaning = "VC"
)

// MonthlyMatrix is the month grid for one form and line.
type MonthlyMatrix struct {
	FormType generic.FormType
	LineID   generic.LineID
	Year     int
	Month    time.Month
	Days     int

	Items []generic.ChecklistItem
	// Cells[item][day] holds the symbol; missing entries are blank.
	Cells map[generic.ItemID]map[int]string
	// DayOverrides maps a day to Holiday or VatCleaning.
	DayOverrides map[int]generic.Status
	NCRs         []generic.NonConformanceReport
}

// Cell returns the symbol for an item and day, "" when blank.
func (m *MonthlyMatrix) Cell(item generic.ItemID, day int) string {
	return m.Cells[item][day]
}

// Row returns the item's cells for days 1..Days.
func (m *MonthlyMatrix) Row(item generic.ItemID) []string {
	row := make([]string, m.Days)
	for day := 1; day <= m.Days; day++ {
		row[day-1] = m.Cells[item][day]
	}
	return row
}

// Aggregator builds matrices from a store.
type Aggregator struct {
	store generic.Store
}

func NewAggregator(store generic.Store) *Aggregator {
	return &Aggregator{store: store}
}

// BuildMonthlyMatrix reads items, observations and reports concurrently and
// reshapes them into the month grid.
func (a *Aggregator) BuildMonthlyMatrix(ctx context.Context, formType generic.FormType, lineID generic.LineID, month time.Month, year int) (*MonthlyMatrix, error) {
	period, err := generic.MonthPeriod(year, month)
	if err != nil {
		return nil, err
	}

	var (
		items        []generic.ChecklistItem
		observations []generic.DailyObservation
		reports      []generic.NonConformanceReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = a.store.ListItems(gctx, formType, true)
		return generic.Persist("list items", err)
	})
	g.Go(func() error {
		var err error
		observations, err = a.store.ListObservations(gctx, lineID, period, nil)
		return generic.Persist("list observations", err)
	})
	g.Go(func() error {
		var err error
		reports, err = a.store.ListNCRs(gctx, lineID, period, nil)
		return generic.Persist("list reports", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fold(formType, lineID, period, items, observations, reports), nil
}

func fold(formType generic.FormType, lineID generic.LineID, period generic.Period, items []generic.ChecklistItem, observations []generic.DailyObservation, reports []generic.NonConformanceReport) *MonthlyMatrix {
	m := &MonthlyMatrix{
		FormType:     formType,
		LineID:       lineID,
		Year:         period.Start.Year(),
		Month:        period.Start.Month(),
		Days:         period.Days(),
		Cells:        make(map[generic.ItemID]map[int]string),
		DayOverrides: make(map[int]generic.Status),
	}

	// The line's rows include other forms; keep only this form's items.
	onForm := make(map[generic.ItemID]generic.ChecklistItem, len(items))
	for _, item := range items {
		onForm[item.ID] = item
	}
	hasData := make(map[generic.ItemID]bool)
	var rows []generic.DailyObservation
	for _, o := range observations {
		if _, ok := onForm[o.ItemID]; !ok {
			continue
		}
		rows = append(rows, o)
		hasData[o.ItemID] = true
		// Retired rows keep their own cell but never mark the whole day.
		if o.Status.IsDayOverride() && !onForm[o.ItemID].IsDeleted {
			day := o.LogDate.Day()
			// Holiday wins over VatCleaning if a day was ever written with both.
			if m.DayOverrides[day] != generic.StatusHoliday {
				m.DayOverrides[day] = o.Status
			}
		}
	}
	for _, r := range reports {
		if _, ok := onForm[r.ItemID]; ok {
			m.NCRs = append(m.NCRs, r)
			hasData[r.ItemID] = true
		}
	}

	for _, item := range items {
		if item.IsDeleted && !hasData[item.ID] {
			continue
		}
		m.Items = append(m.Items, item)
		m.Cells[item.ID] = make(map[int]string)
	}

	for _, o := range rows {
		cells, ok := m.Cells[o.ItemID]
		if !ok {
			continue
		}
		if symbol := cellFor(o); symbol != "" {
			cells[o.LogDate.Day()] = symbol
		}
	}
	for day, status := range m.DayOverrides {
		symbol := CellHoliday
		if status == generic.StatusVatCleaning {
			symbol = CellVatCleaning
		}
		for _, item := range m.Items {
			m.Cells[item.ID][day] = symbol
		}
	}
	return m
}

func cellFor(o generic.DailyObservation) string {
	switch o.Status {
	case generic.StatusDone:
		if o.Reading != nil {
			return o.Reading.String()
		}
		return CellDone
	case generic.StatusNotOK:
		return CellNotOK
	case generic.StatusNA:
		return CellNA
	case generic.StatusHoliday:
		return CellHoliday
	case generic.StatusVatCleaning:
		return CellVatCleaning
	}
	return ""
}
