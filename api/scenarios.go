/*
scenarios.go - Demo scenario loaders for training and demonstrations

PURPOSE:
  Populates the store with a realistic month so supervisors can try the
  daily form, the NCR workflow and the monthly matrix without touching
  production data.

AVAILABLE SCENARIOS:
  fresh-plant:        Built-in DISA forms, no history
  sand-shot-failure:  A week of checks; the Sand Shot Pressure Check fails
                      on day 6 and carries a report
  holiday-week:       Normal days, a holiday and a vat-cleaning day, plus
                      setting-adjustment values on record 1

HOW SCENARIOS WORK:
  1. Reset the store (every table)
  2. Seed the built-in forms
  3. Replay submissions and reports through the normal services, so every
     rule the shop floor is held to also holds for demo data

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "sand-shot-failure"}

NOTE:
  Scenarios wipe the store. They are mounted only when
  Handler.EnableScenarios is set (server.demo_scenarios in config).
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/audit-engine/checklist"
	"github.com/warp/audit-engine/factory"
	"github.com/warp/audit-engine/generic"
)

// Resetter is implemented by stores that can be wiped.
type Resetter interface {
	Reset(ctx context.Context) error
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

const (
	demoLine    generic.LineID   = "DISA-1"
	demoSignOff                  = "Shift Supervisor"
	machineForm generic.FormType = "disa-machine-checklist"
	settingForm generic.FormType = "disa-setting-adjustment"
)

var scenarios = []ScenarioDTO{
	{ID: "fresh-plant", Name: "Fresh plant", Description: "Built-in DISA forms with no history"},
	{ID: "sand-shot-failure", Name: "Sand shot failure", Description: "Sand Shot Pressure Check fails on day 6 with a non-conformance report"},
	{ID: "holiday-week", Name: "Holiday week", Description: "A holiday, a vat-cleaning day and setting-adjustment values"},
}

// ListScenarios returns all available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario wipes the store and loads a predefined scenario into the
// current month.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}
	if h.Resetter == nil {
		writeError(w, http.StatusNotImplemented, "Store cannot be reset", nil)
		return
	}

	var load func(context.Context, *scenarioRun) error
	switch req.ScenarioID {
	case "fresh-plant":
		load = func(context.Context, *scenarioRun) error { return nil }
	case "sand-shot-failure":
		load = loadSandShotFailure
	case "holiday-week":
		load = loadHolidayWeek
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.Resetter.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	run, err := h.newScenarioRun(ctx)
	if err == nil {
		err = load(ctx, run)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	month := fmt.Sprintf("%04d-%02d", run.today.Year(), int(run.today.Month()))
	h.Logger.Info("scenario loaded", zap.String("scenario_id", req.ScenarioID), zap.String("month", month))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "loaded",
		"scenario_id": req.ScenarioID,
		"month":       month,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// scenarioRun carries the seeded items and the services a loader replays
// through.
type scenarioRun struct {
	h     *Handler
	items []generic.ChecklistItem
	today generic.Date
}

func (h *Handler) newScenarioRun(ctx context.Context) (*scenarioRun, error) {
	defs, err := factory.Builtin()
	if err != nil {
		return nil, err
	}
	if _, err := factory.Seed(ctx, h.Store, defs, h.Logger); err != nil {
		return nil, err
	}
	items, err := h.Catalog.List(ctx, machineForm, false)
	if err != nil {
		return nil, err
	}
	return &scenarioRun{h: h, items: items, today: h.Today()}, nil
}

func (s *scenarioRun) month(day int) generic.Date {
	return generic.NewDate(s.today.Year(), s.today.Month(), day)
}

// submit answers every item Done, except the overrides given by serial
// number. The Sand Shot item always carries a reading.
func (s *scenarioRun) submit(ctx context.Context, day int, status map[int]generic.Status, reading string) error {
	b := checklist.Batch{
		FormType: machineForm,
		LineID:   demoLine,
		LogDate:  s.month(day),
		SignOff:  demoSignOff,
	}
	for _, item := range s.items {
		in := checklist.BatchItem{ItemID: item.ID, Status: generic.StatusDone}
		if st, ok := status[item.SlNo]; ok {
			in.Status = st
		}
		if item.TakesReading() && (in.Status == generic.StatusDone || in.Status == generic.StatusNotOK) {
			in.Reading = reading
		}
		b.Items = append(b.Items, in)
	}
	_, err := s.h.Coordinator.SubmitBatch(ctx, b)
	return err
}

func (s *scenarioRun) itemBySlNo(slNo int) (generic.ChecklistItem, error) {
	for _, item := range s.items {
		if item.SlNo == slNo {
			return item, nil
		}
	}
	return generic.ChecklistItem{}, fmt.Errorf("no item with serial number %d", slNo)
}

func loadSandShotFailure(ctx context.Context, s *scenarioRun) error {
	for day := 1; day <= 5; day++ {
		if err := s.submit(ctx, day, nil, "6.5"); err != nil {
			return err
		}
	}

	sandShot, err := s.itemBySlNo(3)
	if err != nil {
		return err
	}
	target := s.month(8)
	if _, _, err := s.h.Workflow.ReportNonConformance(ctx, checklist.NCRInput{
		ItemID:           sandShot.ID,
		LineID:           demoLine,
		ReportDate:       s.month(6),
		Details:          "Sand shot pressure 4.2 bar, below the 5.5 bar minimum",
		Correction:       "Line stopped, regulator reset",
		RootCause:        "Worn regulator diaphragm",
		CorrectiveAction: "Replace diaphragm, add to weekly PM",
		TargetDate:       &target,
		Responsibility:   "Maintenance",
		SignOff:          demoSignOff,
	}); err != nil {
		return err
	}
	return s.submit(ctx, 6, map[int]generic.Status{3: generic.StatusNotOK}, "4.2")
}

func loadHolidayWeek(ctx context.Context, s *scenarioRun) error {
	for day := 1; day <= 3; day++ {
		if err := s.submit(ctx, day, map[int]generic.Status{18: generic.StatusNA}, "6.4"); err != nil {
			return err
		}
	}
	if err := s.submit(ctx, 4, map[int]generic.Status{1: generic.StatusHoliday}, ""); err != nil {
		return err
	}
	if err := s.submit(ctx, 5, map[int]generic.Status{1: generic.StatusVatCleaning}, ""); err != nil {
		return err
	}

	cols, err := s.h.Registry.ListColumns(ctx, settingForm, false)
	if err != nil {
		return err
	}
	attrs := make(generic.Attributes, len(cols))
	for _, c := range cols {
		attrs[c.ID] = "OK"
	}
	_, err = s.h.Registry.SaveRecord(ctx, settingForm, 1, attrs)
	return err
}
