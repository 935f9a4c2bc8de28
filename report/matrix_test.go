package report_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/audit-engine/checklist"
	"github.com/warp/audit-engine/generic"
	"github.com/warp/audit-engine/generic/store"
	"github.com/warp/audit-engine/report"
	"github.com/warp/audit-engine/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	machineForm generic.FormType = "disa-machine-checklist"
	otherForm   generic.FormType = "production-log"
	line        generic.LineID   = "DISA-1"
)

type fixture struct {
	store       generic.TxStore
	items       []generic.ChecklistItem
	coordinator *checklist.Coordinator
	workflow    *checklist.Workflow
}

// newFixture seeds three machine items; item 2 takes a reading in bar.
func newFixture(t *testing.T, s generic.TxStore) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:       s,
		coordinator: checklist.NewCoordinator(s, nil, nil),
		workflow:    checklist.NewWorkflow(s, nil, nil),
	}
	for i := 1; i <= 3; i++ {
		item := generic.ChecklistItem{FormType: machineForm, SlNo: i, Description: fmt.Sprintf("Checkpoint %d", i)}
		if i == 2 {
			item.Description = "Sand Shot Pressure Check"
			item.ReadingUnit = "bar"
		}
		saved, err := s.SaveItem(ctx, item)
		require.NoError(t, err)
		f.items = append(f.items, saved)
	}
	return f
}

func (f *fixture) submit(t *testing.T, day int, items ...checklist.BatchItem) {
	t.Helper()
	_, err := f.coordinator.SubmitBatch(context.Background(), checklist.Batch{
		FormType: machineForm,
		LineID:   line,
		LogDate:  generic.NewDate(2026, time.October, day),
		SignOff:  "R. Kumar",
		Items:    items,
	})
	require.NoError(t, err)
}

func (f *fixture) answer(i int, status generic.Status, reading string) checklist.BatchItem {
	return checklist.BatchItem{ItemID: f.items[i].ID, Status: status, Reading: reading}
}

// row builds an expected 31-day October row from sparse cells.
func row(cells map[int]string) []string {
	out := make([]string, 31)
	for day, v := range cells {
		out[day-1] = v
	}
	return out
}

func stores(t *testing.T) map[string]generic.TxStore {
	s, err := sqlstore.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return map[string]generic.TxStore{
		"memory": store.NewMemory(),
		"sqlite": s,
	}
}

// =============================================================================
// MONTHLY MATRIX
// =============================================================================

func TestBuildMonthlyMatrix_October(t *testing.T) {
	// GIVEN: A month with a normal day, a holiday, a reported failure,
	//        an NA day and a vat-cleaning day
	// WHEN: The October matrix is built
	// THEN: Cells follow the override > reading > status precedence

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, s)

			f.submit(t, 1,
				f.answer(0, generic.StatusDone, ""),
				f.answer(1, generic.StatusDone, "6.5"),
				f.answer(2, generic.StatusDone, ""))
			f.submit(t, 2, f.answer(0, generic.StatusHoliday, ""))
			_, _, err := f.workflow.ReportNonConformance(ctx, checklist.NCRInput{
				ItemID:     f.items[0].ID,
				LineID:     line,
				ReportDate: generic.NewDate(2026, time.October, 3),
				Details:    "Pattern plate cracked",
			})
			require.NoError(t, err)
			f.submit(t, 4,
				f.answer(0, generic.StatusDone, ""),
				f.answer(1, generic.StatusDone, ""),
				f.answer(2, generic.StatusNA, ""))
			f.submit(t, 5, f.answer(2, generic.StatusVatCleaning, ""))

			m, err := report.NewAggregator(s).BuildMonthlyMatrix(ctx, machineForm, line, time.October, 2026)
			require.NoError(t, err)

			assert.Equal(t, 31, m.Days)
			require.Len(t, m.Items, 3)

			want := map[generic.ItemID][]string{
				f.items[0].ID: row(map[int]string{1: "Y", 2: "H", 3: "N", 4: "Y", 5: "VC"}),
				f.items[1].ID: row(map[int]string{1: "6.5", 2: "H", 4: "Y", 5: "VC"}),
				f.items[2].ID: row(map[int]string{1: "Y", 2: "H", 4: "NA", 5: "VC"}),
			}
			for _, item := range m.Items {
				if diff := cmp.Diff(want[item.ID], m.Row(item.ID)); diff != "" {
					t.Errorf("row %d mismatch (-want +got):\n%s", item.SlNo, diff)
				}
			}

			assert.Equal(t, map[int]generic.Status{2: generic.StatusHoliday, 5: generic.StatusVatCleaning}, m.DayOverrides)
			require.Len(t, m.NCRs, 1)
			assert.Equal(t, "Pattern plate cracked", m.NCRs[0].Details)
		})
	}
}

func TestBuildMonthlyMatrix_RetiredItems(t *testing.T) {
	// GIVEN: Item 3 answered on the 1st then retired, and a retired item with no data
	// WHEN: The matrix is built
	// THEN: Item 3 keeps its row; the empty retired item is left out

	s := store.NewMemory()
	ctx := context.Background()
	f := newFixture(t, s)

	f.submit(t, 1,
		f.answer(0, generic.StatusDone, ""),
		f.answer(1, generic.StatusDone, ""),
		f.answer(2, generic.StatusDone, ""))
	require.NoError(t, s.SoftDeleteItem(ctx, f.items[2].ID))

	unused, err := s.SaveItem(ctx, generic.ChecklistItem{FormType: machineForm, SlNo: 4, Description: "Unused"})
	require.NoError(t, err)
	require.NoError(t, s.SoftDeleteItem(ctx, unused.ID))

	m, err := report.NewAggregator(s).BuildMonthlyMatrix(ctx, machineForm, line, time.October, 2026)
	require.NoError(t, err)

	var ids []generic.ItemID
	for _, item := range m.Items {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []generic.ItemID{f.items[0].ID, f.items[1].ID, f.items[2].ID}, ids)
	assert.Equal(t, "Y", m.Cell(f.items[2].ID, 1))

	// In November the retired item has no data and disappears.
	nov, err := report.NewAggregator(s).BuildMonthlyMatrix(ctx, machineForm, line, time.November, 2026)
	require.NoError(t, err)
	assert.Len(t, nov.Items, 2)
	assert.Equal(t, 30, nov.Days)
	assert.Empty(t, nov.Cell(f.items[0].ID, 1))
}

func TestBuildMonthlyMatrix_RetiredHolidayRowDoesNotMarkDay(t *testing.T) {
	// GIVEN: A Holiday on the 2nd, item 3 retired, then the 2nd resubmitted as a normal day
	// WHEN: The matrix is built
	// THEN: The 2nd carries no day override; only the retired row keeps its H

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, s)

			f.submit(t, 2, f.answer(0, generic.StatusHoliday, ""))
			require.NoError(t, s.SoftDeleteItem(ctx, f.items[2].ID))
			f.submit(t, 2,
				f.answer(0, generic.StatusDone, ""),
				f.answer(1, generic.StatusDone, "6.5"))

			m, err := report.NewAggregator(s).BuildMonthlyMatrix(ctx, machineForm, line, time.October, 2026)
			require.NoError(t, err)

			assert.Empty(t, m.DayOverrides)
			want := map[generic.ItemID][]string{
				f.items[0].ID: row(map[int]string{2: "Y"}),
				f.items[1].ID: row(map[int]string{2: "6.5"}),
				f.items[2].ID: row(map[int]string{2: "H"}),
			}
			require.Len(t, m.Items, 3)
			for _, item := range m.Items {
				if diff := cmp.Diff(want[item.ID], m.Row(item.ID)); diff != "" {
					t.Errorf("row %d mismatch (-want +got):\n%s", item.SlNo, diff)
				}
			}
		})
	}
}

func TestBuildMonthlyMatrix_IgnoresOtherFormsOnLine(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	f := newFixture(t, s)

	other, err := s.SaveItem(ctx, generic.ChecklistItem{FormType: otherForm, SlNo: 1, Description: "Shift log"})
	require.NoError(t, err)
	_, err = checklist.NewCoordinator(s, nil, nil).SubmitBatch(ctx, checklist.Batch{
		FormType: otherForm,
		LineID:   line,
		LogDate:  generic.NewDate(2026, time.October, 7),
		Items:    []checklist.BatchItem{{ItemID: other.ID, Status: generic.StatusHoliday}},
	})
	require.NoError(t, err)

	m, err := report.NewAggregator(s).BuildMonthlyMatrix(ctx, machineForm, line, time.October, 2026)
	require.NoError(t, err)

	assert.Empty(t, m.DayOverrides)
	assert.NotContains(t, m.Cells, other.ID)
	for _, item := range f.items {
		assert.Empty(t, m.Cell(item.ID, 7))
	}
}

func TestBuildMonthlyMatrix_InvalidMonth(t *testing.T) {
	_, err := report.NewAggregator(store.NewMemory()).BuildMonthlyMatrix(context.Background(), machineForm, line, 13, 2026)
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
}

func TestBuildMonthlyMatrix_EmptyMonth(t *testing.T) {
	s := store.NewMemory()
	f := newFixture(t, s)

	m, err := report.NewAggregator(s).BuildMonthlyMatrix(context.Background(), machineForm, line, time.February, 2028)
	require.NoError(t, err)

	assert.Equal(t, 29, m.Days)
	require.Len(t, m.Items, 3)
	if diff := cmp.Diff(make([]string, 29), m.Row(f.items[0].ID)); diff != "" {
		t.Errorf("empty row mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, m.NCRs)
}
