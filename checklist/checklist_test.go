package checklist_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/audit-engine/checklist"
	"github.com/warp/audit-engine/generic"
	"github.com/warp/audit-engine/generic/store"
	"github.com/warp/audit-engine/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	machineForm generic.FormType = "disa-machine-checklist"
	lineDISA1   generic.LineID   = "DISA-I"
)

var may1 = generic.NewDate(2024, time.May, 1)

type env struct {
	store       generic.TxStore
	coordinator *checklist.Coordinator
	workflow    *checklist.Workflow
	ledger      *checklist.Ledger
	items       []generic.ChecklistItem
}

func newEnv(t *testing.T, s generic.TxStore, n int) *env {
	t.Helper()
	ctx := context.Background()

	var items []generic.ChecklistItem
	for i := 1; i <= n; i++ {
		item := generic.ChecklistItem{
			FormType:    machineForm,
			SlNo:        i,
			Description: fmt.Sprintf("Checkpoint %d", i),
			CheckMethod: "Visual",
		}
		if i == 3 {
			item.Description = "Sand Shot Pressure Check"
			item.CheckMethod = "Gauge"
			item.ReadingUnit = "bar"
		}
		saved, err := s.SaveItem(ctx, item)
		require.NoError(t, err)
		items = append(items, saved)
	}

	return &env{
		store:       s,
		coordinator: checklist.NewCoordinator(s, zap.NewNop(), nil),
		workflow:    checklist.NewWorkflow(s, zap.NewNop(), nil),
		ledger:      checklist.NewLedger(s),
		items:       items,
	}
}

func newMemoryEnv(t *testing.T, n int) *env {
	return newEnv(t, store.NewMemory(), n)
}

func newSQLiteEnv(t *testing.T, n int) *env {
	s, err := sqlstore.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return newEnv(t, s, n)
}

// allDone answers every item with Done.
func (e *env) allDone() []checklist.BatchItem {
	out := make([]checklist.BatchItem, len(e.items))
	for i, item := range e.items {
		out[i] = checklist.BatchItem{ItemID: item.ID, Status: generic.StatusDone}
	}
	return out
}

func (e *env) batch(items []checklist.BatchItem) checklist.Batch {
	return checklist.Batch{
		FormType: machineForm,
		LineID:   lineDISA1,
		LogDate:  may1,
		SignOff:  "Supervisor A",
		Items:    items,
	}
}

func (e *env) day(t *testing.T) []generic.DailyObservation {
	t.Helper()
	rows, err := e.store.ListObservations(context.Background(), lineDISA1, generic.Period{Start: may1, End: may1}, nil)
	require.NoError(t, err)
	return rows
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrValidation)
	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, code, verr.Code)
}

// failingTxStore fails the Nth observation write inside a transaction.
type failingTxStore struct {
	generic.TxStore
	failOn int
}

func (f *failingTxStore) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	return f.TxStore.WithTx(ctx, func(tx generic.Store) error {
		return fn(&failingStore{Store: tx, failOn: f.failOn})
	})
}

type failingStore struct {
	generic.Store
	writes int
	failOn int
}

var errDiskFull = errors.New("disk full")

func (f *failingStore) write() error {
	f.writes++
	if f.writes == f.failOn {
		return errDiskFull
	}
	return nil
}

func (f *failingStore) InsertObservation(ctx context.Context, obs generic.DailyObservation) (generic.DailyObservation, error) {
	if err := f.write(); err != nil {
		return generic.DailyObservation{}, err
	}
	return f.Store.InsertObservation(ctx, obs)
}

func (f *failingStore) UpdateObservation(ctx context.Context, obs generic.DailyObservation) (generic.DailyObservation, error) {
	if err := f.write(); err != nil {
		return generic.DailyObservation{}, err
	}
	return f.Store.UpdateObservation(ctx, obs)
}

// =============================================================================
// STATE MACHINE
// =============================================================================

func TestStatusFromFlags(t *testing.T) {
	s, err := checklist.StatusFromFlags(checklist.Flags{})
	require.NoError(t, err)
	assert.Equal(t, generic.StatusPending, s)

	s, err = checklist.StatusFromFlags(checklist.Flags{VatCleaning: true})
	require.NoError(t, err)
	assert.Equal(t, generic.StatusVatCleaning, s)

	_, err = checklist.StatusFromFlags(checklist.Flags{Done: true, NA: true})
	requireCode(t, err, generic.CodeConflictingStatus)

	_, err = checklist.StatusFromFlags(checklist.Flags{Holiday: true, NotOK: true})
	requireCode(t, err, generic.CodeConflictingStatus)
}

func TestFlagsOf_RoundTripsEveryStatus(t *testing.T) {
	for _, s := range generic.AllStatuses {
		got, err := checklist.StatusFromFlags(checklist.FlagsOf(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestToggle_DoneAndNAExcludeEachOther(t *testing.T) {
	assert.Equal(t, generic.StatusNA, checklist.Toggle(generic.StatusDone, generic.StatusNA))
	assert.Equal(t, generic.StatusDone, checklist.Toggle(generic.StatusNA, generic.StatusDone))
	assert.Equal(t, generic.StatusPending, checklist.Toggle(generic.StatusDone, generic.StatusDone))
}

// =============================================================================
// BATCH SUBMISSION
// =============================================================================

func TestSubmitBatch_ResubmissionUpdatesInPlace(t *testing.T) {
	// GIVEN: A day already submitted
	// WHEN: The same day is submitted again with different answers
	// THEN: Still one row per item, same IDs, refreshed lastUpdated

	for name, newEnvFn := range map[string]func(*testing.T, int) *env{
		"memory": newMemoryEnv,
		"sqlite": newSQLiteEnv,
	} {
		t.Run(name, func(t *testing.T) {
			e := newEnvFn(t, 5)
			ctx := context.Background()

			first := time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)
			e.coordinator.Now = func() time.Time { return first }
			saved, err := e.coordinator.SubmitBatch(ctx, e.batch(e.allDone()))
			require.NoError(t, err)
			require.Len(t, saved, 5)

			second := first.Add(3 * time.Hour)
			e.coordinator.Now = func() time.Time { return second }
			items := e.allDone()
			items[1].Status = generic.StatusNA
			resaved, err := e.coordinator.SubmitBatch(ctx, e.batch(items))
			require.NoError(t, err)

			rows := e.day(t)
			assert.Len(t, rows, 5)
			for i := range saved {
				assert.Equal(t, saved[i].ID, resaved[i].ID)
				assert.True(t, resaved[i].LastUpdated.Equal(second))
			}
			assert.Equal(t, generic.StatusNA, resaved[1].Status)
			assert.NotEqual(t, saved[0].SubmissionID, resaved[0].SubmissionID)
		})
	}
}

func TestSubmitBatch_IncompleteCoverageRejected(t *testing.T) {
	e := newMemoryEnv(t, 4)
	ctx := context.Background()

	items := e.allDone()[:3]
	_, err := e.coordinator.SubmitBatch(ctx, e.batch(items))
	requireCode(t, err, generic.CodeIncompleteBatch)

	// A Pending answer is not an answer.
	items = e.allDone()
	items[2].Status = generic.StatusPending
	_, err = e.coordinator.SubmitBatch(ctx, e.batch(items))
	requireCode(t, err, generic.CodeIncompleteBatch)

	assert.Empty(t, e.day(t))
}

func TestSubmitBatch_UnknownAndDuplicateItemsRejected(t *testing.T) {
	e := newMemoryEnv(t, 2)
	ctx := context.Background()

	items := append(e.allDone(), checklist.BatchItem{ItemID: 999, Status: generic.StatusDone})
	_, err := e.coordinator.SubmitBatch(ctx, e.batch(items))
	requireCode(t, err, generic.CodeUnknownItem)

	items = append(e.allDone(), e.allDone()[0])
	_, err = e.coordinator.SubmitBatch(ctx, e.batch(items))
	requireCode(t, err, generic.CodeDuplicateItem)
}

func TestSubmitBatch_RetiredItemsNotRequired(t *testing.T) {
	e := newMemoryEnv(t, 3)
	ctx := context.Background()
	require.NoError(t, e.store.SoftDeleteItem(ctx, e.items[2].ID))

	items := e.allDone()[:2]
	saved, err := e.coordinator.SubmitBatch(ctx, e.batch(items))
	require.NoError(t, err)
	assert.Len(t, saved, 2)

	// Submitting the retired item is an error.
	_, err = e.coordinator.SubmitBatch(ctx, e.batch(e.allDone()))
	requireCode(t, err, generic.CodeUnknownItem)
}

func TestSubmitBatch_SignOffRequiredUnlessOverride(t *testing.T) {
	e := newMemoryEnv(t, 3)
	ctx := context.Background()

	b := e.batch(e.allDone())
	b.SignOff = "  "
	_, err := e.coordinator.SubmitBatch(ctx, b)
	requireCode(t, err, generic.CodeMissingSignOff)

	b = e.batch([]checklist.BatchItem{{ItemID: e.items[0].ID, Status: generic.StatusHoliday}})
	b.SignOff = ""
	saved, err := e.coordinator.SubmitBatch(ctx, b)
	require.NoError(t, err)
	assert.Len(t, saved, 3)
}

func TestSubmitBatch_HolidayCascadesToEveryItem(t *testing.T) {
	// GIVEN: A day answered Done/NA with a reading
	// WHEN: One item is toggled to Holiday
	// THEN: Every item of the form/line/date becomes Holiday, readings cleared

	e := newMemoryEnv(t, 5)
	ctx := context.Background()

	items := e.allDone()
	items[1].Status = generic.StatusNA
	items[2].Reading = "6.5"
	_, err := e.coordinator.SubmitBatch(ctx, e.batch(items))
	require.NoError(t, err)

	items = e.allDone()
	items[4].Status = generic.StatusHoliday
	saved, err := e.coordinator.SubmitBatch(ctx, e.batch(items))
	require.NoError(t, err)
	require.Len(t, saved, 5)

	for _, obs := range e.day(t) {
		assert.Equal(t, generic.StatusHoliday, obs.Status)
		assert.Nil(t, obs.Reading)
	}

	state, err := e.ledger.Day(ctx, machineForm, lineDISA1, may1)
	require.NoError(t, err)
	assert.Equal(t, generic.StatusHoliday, state.Override)
	assert.True(t, state.Complete())
}

func TestSubmitBatch_HolidayAndVatCleaningConflict(t *testing.T) {
	e := newMemoryEnv(t, 3)

	items := e.allDone()
	items[0].Status = generic.StatusHoliday
	items[1].Status = generic.StatusVatCleaning
	_, err := e.coordinator.SubmitBatch(context.Background(), e.batch(items))
	requireCode(t, err, generic.CodeConflictingStatus)
}

func TestSubmitBatch_NotOKRequiresReport(t *testing.T) {
	e := newMemoryEnv(t, 3)

	items := e.allDone()
	items[0].Status = generic.StatusNotOK
	_, err := e.coordinator.SubmitBatch(context.Background(), e.batch(items))
	requireCode(t, err, generic.CodeNCRRequired)
	assert.Empty(t, e.day(t))
}

func TestSubmitBatch_Readings(t *testing.T) {
	e := newMemoryEnv(t, 3)
	ctx := context.Background()

	// Item 1 has no unit.
	items := e.allDone()
	items[0].Reading = "1.2"
	_, err := e.coordinator.SubmitBatch(ctx, e.batch(items))
	requireCode(t, err, generic.CodeInvalidReading)

	items = e.allDone()
	items[2].Reading = "high"
	_, err = e.coordinator.SubmitBatch(ctx, e.batch(items))
	requireCode(t, err, generic.CodeInvalidReading)

	items = e.allDone()
	items[2].Status = generic.StatusNA
	items[2].Reading = "6.0"
	_, err = e.coordinator.SubmitBatch(ctx, e.batch(items))
	requireCode(t, err, generic.CodeInvalidReading)

	items = e.allDone()
	items[2].Reading = "6.25"
	saved, err := e.coordinator.SubmitBatch(ctx, e.batch(items))
	require.NoError(t, err)
	require.NotNil(t, saved[2].Reading)
	assert.Equal(t, "6.25", saved[2].Reading.String())
}

func TestSubmitBatch_ReadingSurvivesSQLite(t *testing.T) {
	e := newSQLiteEnv(t, 3)
	ctx := context.Background()

	items := e.allDone()
	items[2].Reading = "6.50"
	_, err := e.coordinator.SubmitBatch(ctx, e.batch(items))
	require.NoError(t, err)

	obs, err := e.store.FindObservation(ctx, generic.ObservationKey{ItemID: e.items[2].ID, LineID: lineDISA1, LogDate: may1})
	require.NoError(t, err)
	require.NotNil(t, obs)
	require.NotNil(t, obs.Reading)
	assert.Equal(t, "6.5", obs.Reading.String())
}

func TestSubmitBatch_FailureOnLastRowRollsBackEverything(t *testing.T) {
	// GIVEN: An 18-item form
	// WHEN: The 18th row write fails inside the transaction
	// THEN: No row of the batch is persisted and the error is a PersistenceError

	for name, newStore := range map[string]func(t *testing.T) generic.TxStore{
		"memory": func(t *testing.T) generic.TxStore { return store.NewMemory() },
		"sqlite": func(t *testing.T) generic.TxStore {
			s, err := sqlstore.NewSQLite(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	} {
		t.Run(name, func(t *testing.T) {
			inner := newStore(t)
			e := newEnv(t, inner, 18)
			ctx := context.Background()

			failing := checklist.NewCoordinator(&failingTxStore{TxStore: inner, failOn: 18}, zap.NewNop(), nil)
			_, err := failing.SubmitBatch(ctx, e.batch(e.allDone()))
			require.Error(t, err)
			assert.ErrorIs(t, err, generic.ErrPersistence)
			assert.ErrorIs(t, err, errDiskFull)
			assert.Empty(t, e.day(t))

			// Previously persisted rows are untouched by a failed resubmission.
			_, err = e.coordinator.SubmitBatch(ctx, e.batch(e.allDone()))
			require.NoError(t, err)
			items := e.allDone()
			items[0].Status = generic.StatusNA
			_, err = failing.SubmitBatch(ctx, e.batch(items))
			require.Error(t, err)

			rows := e.day(t)
			require.Len(t, rows, 18)
			for _, obs := range rows {
				assert.Equal(t, generic.StatusDone, obs.Status)
			}
		})
	}
}

// =============================================================================
// NON-CONFORMANCE WORKFLOW
// =============================================================================

func TestSandShotPressureCheck_Scenario(t *testing.T) {
	// GIVEN: Item #3 "Sand Shot Pressure Check" submitted Done on 2024-05-01 for DISA-I
	// WHEN: It is reported NotOK with NCR details and the day is resubmitted
	// THEN: Exactly one observation (NotOK) and one report (Pending) exist

	e := newSQLiteEnv(t, 18)
	ctx := context.Background()
	sandShot := e.items[2]
	require.Equal(t, "Sand Shot Pressure Check", sandShot.Description)

	_, err := e.coordinator.SubmitBatch(ctx, e.batch(e.allDone()))
	require.NoError(t, err)

	report, obs, err := e.workflow.ReportNonConformance(ctx, checklist.NCRInput{
		ItemID:     sandShot.ID,
		LineID:     lineDISA1,
		ReportDate: may1,
		Details:    "Pressure below 5 bar",
		SignOff:    "Supervisor A",
	})
	require.NoError(t, err)
	assert.Equal(t, generic.NCRPending, report.Status)
	assert.Equal(t, generic.StatusNotOK, obs.Status)

	items := e.allDone()
	items[2].Status = generic.StatusNotOK
	_, err = e.coordinator.SubmitBatch(ctx, e.batch(items))
	require.NoError(t, err)

	period := generic.Period{Start: may1, End: may1}
	rows, err := e.store.ListObservations(ctx, lineDISA1, period, []generic.ItemID{sandShot.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, generic.StatusNotOK, rows[0].Status)

	reports, err := e.store.ListNCRs(ctx, lineDISA1, period, nil)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, generic.NCRPending, reports[0].Status)
	assert.Equal(t, "Pressure below 5 bar", reports[0].Details)
}

func TestReportNonConformance_FirstWriteOfTheDay(t *testing.T) {
	e := newMemoryEnv(t, 3)
	ctx := context.Background()

	_, obs, err := e.workflow.ReportNonConformance(ctx, checklist.NCRInput{
		ItemID: e.items[0].ID, LineID: lineDISA1, ReportDate: may1, Details: "Leak",
	})
	require.NoError(t, err)
	assert.NotZero(t, obs.ID)
	assert.Equal(t, generic.StatusNotOK, obs.Status)
	assert.Len(t, e.day(t), 1)
}

func TestReportNonConformance_ReReportOverwrites(t *testing.T) {
	e := newMemoryEnv(t, 3)
	ctx := context.Background()
	target := generic.NewDate(2024, time.May, 10)

	first, _, err := e.workflow.ReportNonConformance(ctx, checklist.NCRInput{
		ItemID: e.items[1].ID, LineID: lineDISA1, ReportDate: may1, Details: "misfiled",
	})
	require.NoError(t, err)

	second, _, err := e.workflow.ReportNonConformance(ctx, checklist.NCRInput{
		ItemID: e.items[1].ID, LineID: lineDISA1, ReportDate: may1,
		Details: "Belt worn", RootCause: "Wear", TargetDate: &target,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Belt worn", second.Details)
	require.NotNil(t, second.TargetDate)
	assert.Equal(t, target, *second.TargetDate)

	reports, err := e.workflow.ListNCRs(ctx, machineForm, lineDISA1, generic.Period{Start: may1, End: may1})
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestReportNonConformance_RejectedOnOverrideDay(t *testing.T) {
	e := newMemoryEnv(t, 3)
	ctx := context.Background()

	b := e.batch([]checklist.BatchItem{{ItemID: e.items[0].ID, Status: generic.StatusVatCleaning}})
	_, err := e.coordinator.SubmitBatch(ctx, b)
	require.NoError(t, err)

	_, _, err = e.workflow.ReportNonConformance(ctx, checklist.NCRInput{
		ItemID: e.items[1].ID, LineID: lineDISA1, ReportDate: may1, Details: "Leak",
	})
	requireCode(t, err, generic.CodeDayOverride)

	reports, err := e.store.ListNCRs(ctx, lineDISA1, generic.Period{Start: may1, End: may1}, nil)
	require.NoError(t, err)
	assert.Empty(t, reports)
	for _, obs := range e.day(t) {
		assert.Equal(t, generic.StatusVatCleaning, obs.Status)
	}
}

func TestSubmitBatch_ResubmitAfterRetireClearsOverride(t *testing.T) {
	// GIVEN: A Holiday day, then one item retired
	// WHEN: The active items are resubmitted as a normal day
	// THEN: The day is no longer under an override and accepts reports

	for name, newEnvFn := range map[string]func(*testing.T, int) *env{
		"memory": newMemoryEnv,
		"sqlite": newSQLiteEnv,
	} {
		t.Run(name, func(t *testing.T) {
			e := newEnvFn(t, 3)
			ctx := context.Background()

			b := e.batch([]checklist.BatchItem{{ItemID: e.items[0].ID, Status: generic.StatusHoliday}})
			_, err := e.coordinator.SubmitBatch(ctx, b)
			require.NoError(t, err)

			require.NoError(t, checklist.NewCatalog(e.store).Retire(ctx, e.items[2].ID))

			_, err = e.coordinator.SubmitBatch(ctx, e.batch(e.allDone()[:2]))
			require.NoError(t, err)

			state, err := e.ledger.Day(ctx, machineForm, lineDISA1, may1)
			require.NoError(t, err)
			assert.Equal(t, generic.StatusPending, state.Override)
			assert.True(t, state.Complete())

			override, err := e.ledger.DayOverride(ctx, machineForm, lineDISA1, may1)
			require.NoError(t, err)
			assert.Equal(t, generic.StatusPending, override)

			_, obs, err := e.workflow.ReportNonConformance(ctx, checklist.NCRInput{
				ItemID: e.items[0].ID, LineID: lineDISA1, ReportDate: may1, Details: "Leak",
			})
			require.NoError(t, err)
			assert.Equal(t, generic.StatusNotOK, obs.Status)
		})
	}
}

func TestReportNonConformance_UnknownAndRetiredItems(t *testing.T) {
	e := newMemoryEnv(t, 2)
	ctx := context.Background()

	_, _, err := e.workflow.ReportNonConformance(ctx, checklist.NCRInput{ItemID: 42, LineID: lineDISA1, ReportDate: may1})
	assert.ErrorIs(t, err, generic.ErrItemNotFound)

	require.NoError(t, e.store.SoftDeleteItem(ctx, e.items[0].ID))
	_, _, err = e.workflow.ReportNonConformance(ctx, checklist.NCRInput{ItemID: e.items[0].ID, LineID: lineDISA1, ReportDate: may1})
	requireCode(t, err, generic.CodeUnknownItem)

	_, _, err = e.workflow.ReportNonConformance(ctx, checklist.NCRInput{ItemID: e.items[1].ID, ReportDate: may1})
	requireCode(t, err, generic.CodeRequired)
}

func TestCorrectionToDone_LeavesReportPendingButOffTheSurface(t *testing.T) {
	// GIVEN: An item reported NotOK
	// WHEN: The day is resubmitted with the item Done
	// THEN: The report still exists as Pending, but is not a pending correction

	e := newMemoryEnv(t, 3)
	ctx := context.Background()
	period := generic.Period{Start: may1, End: may1}

	_, _, err := e.workflow.ReportNonConformance(ctx, checklist.NCRInput{
		ItemID: e.items[0].ID, LineID: lineDISA1, ReportDate: may1, Details: "Leak",
	})
	require.NoError(t, err)

	items := e.allDone()
	items[0].Status = generic.StatusNotOK
	_, err = e.coordinator.SubmitBatch(ctx, e.batch(items))
	require.NoError(t, err)

	pending, err := e.workflow.PendingCorrections(ctx, machineForm, lineDISA1, period)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, e.items[0].ID, pending[0].Item.ID)

	_, err = e.coordinator.SubmitBatch(ctx, e.batch(e.allDone()))
	require.NoError(t, err)

	pending, err = e.workflow.PendingCorrections(ctx, machineForm, lineDISA1, period)
	require.NoError(t, err)
	assert.Empty(t, pending)

	reports, err := e.workflow.ListNCRs(ctx, machineForm, lineDISA1, period)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, generic.NCRPending, reports[0].Status)
}

func TestHolidayCascade_ClearsNotOK(t *testing.T) {
	e := newMemoryEnv(t, 3)
	ctx := context.Background()
	period := generic.Period{Start: may1, End: may1}

	_, _, err := e.workflow.ReportNonConformance(ctx, checklist.NCRInput{
		ItemID: e.items[2].ID, LineID: lineDISA1, ReportDate: may1, Details: "Low pressure",
	})
	require.NoError(t, err)

	b := e.batch([]checklist.BatchItem{{ItemID: e.items[0].ID, Status: generic.StatusHoliday}})
	_, err = e.coordinator.SubmitBatch(ctx, b)
	require.NoError(t, err)

	for _, obs := range e.day(t) {
		assert.Equal(t, generic.StatusHoliday, obs.Status)
	}
	pending, err := e.workflow.PendingCorrections(ctx, machineForm, lineDISA1, period)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestUpdateNCR_ClosesReport(t *testing.T) {
	e := newSQLiteEnv(t, 2)
	ctx := context.Background()

	report, _, err := e.workflow.ReportNonConformance(ctx, checklist.NCRInput{
		ItemID: e.items[0].ID, LineID: lineDISA1, ReportDate: may1, Details: "Leak",
	})
	require.NoError(t, err)

	action := "Replaced seal"
	closed := generic.NCRClosed
	updated, err := e.workflow.UpdateNCR(ctx, report.ID, checklist.NCRUpdate{
		CorrectiveAction: &action,
		Status:           &closed,
	})
	require.NoError(t, err)
	assert.Equal(t, generic.NCRClosed, updated.Status)
	assert.Equal(t, "Replaced seal", updated.CorrectiveAction)
	assert.Equal(t, "Leak", updated.Details)

	bogus := generic.NCRStatus("Archived")
	_, err = e.workflow.UpdateNCR(ctx, report.ID, checklist.NCRUpdate{Status: &bogus})
	requireCode(t, err, generic.CodeInvalidStatus)

	_, err = e.workflow.UpdateNCR(ctx, 9999, checklist.NCRUpdate{})
	assert.ErrorIs(t, err, generic.ErrNCRNotFound)
}

// =============================================================================
// DAY STATE + CATALOG
// =============================================================================

func TestLedgerDay_JoinsObservationsAndReports(t *testing.T) {
	e := newMemoryEnv(t, 3)
	ctx := context.Background()

	_, _, err := e.workflow.ReportNonConformance(ctx, checklist.NCRInput{
		ItemID: e.items[1].ID, LineID: lineDISA1, ReportDate: may1, Details: "Leak",
	})
	require.NoError(t, err)

	state, err := e.ledger.Day(ctx, machineForm, lineDISA1, may1)
	require.NoError(t, err)
	require.Len(t, state.Entries, 3)
	assert.Equal(t, generic.StatusPending, state.Override)
	assert.False(t, state.Complete())

	assert.Equal(t, generic.StatusPending, state.Entries[0].Status)
	assert.Nil(t, state.Entries[0].Observation)
	assert.Equal(t, generic.StatusNotOK, state.Entries[1].Status)
	require.NotNil(t, state.Entries[1].NCR)
	assert.Equal(t, "Leak", state.Entries[1].NCR.Details)

	// No carry-over: the next day starts Pending.
	next, err := e.ledger.Day(ctx, machineForm, lineDISA1, may1.AddDays(1))
	require.NoError(t, err)
	for _, entry := range next.Entries {
		assert.Equal(t, generic.StatusPending, entry.Status)
	}
}

func TestCatalog(t *testing.T) {
	c := checklist.NewCatalog(store.NewMemory())
	ctx := context.Background()

	_, err := c.Add(ctx, generic.ChecklistItem{FormType: machineForm, SlNo: 1})
	requireCode(t, err, generic.CodeRequired)

	item, err := c.Add(ctx, generic.ChecklistItem{FormType: machineForm, SlNo: 1, Description: "Oil level"})
	require.NoError(t, err)

	item.FormType = "other-form"
	_, err = c.Update(ctx, item)
	requireCode(t, err, generic.CodeFormMismatch)

	item.FormType = machineForm
	item.Description = "Hydraulic oil level"
	updated, err := c.Update(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, "Hydraulic oil level", updated.Description)

	require.NoError(t, c.Retire(ctx, item.ID))
	active, err := c.List(ctx, machineForm, false)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := c.List(ctx, machineForm, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].IsDeleted)
}
