/*
handlers_test.go - HTTP tests for the audit API

Tests for:
- Daily form load and batch submission (status strings and checkbox flags)
- NCR reporting, NotOK gating and report closure
- Custom columns and record values through the router
- Monthly matrix, demo scenarios, /healthz and /metrics
- Error to status code mapping
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/audit-engine/checklist"
	"github.com/warp/audit-engine/generic"
	"github.com/warp/audit-engine/generic/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	testForm = "disa-machine-checklist"
	testLine = "DISA-1"
	testDay  = "2026-10-05"
)

type testAPI struct {
	t      *testing.T
	router http.Handler
	items  []ItemDTO
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	h := NewHandler(store.NewMemory(), zap.NewNop(), prometheus.NewRegistry())
	h.Today = func() generic.Date { return generic.NewDate(2026, time.October, 18) }
	h.EnableScenarios = true
	return &testAPI{t: t, router: NewRouter(h)}
}

// withItems creates three checkpoints; the second takes a reading in bar.
func (a *testAPI) withItems() *testAPI {
	for i := 1; i <= 3; i++ {
		req := ItemRequest{SlNo: i, Description: fmt.Sprintf("Checkpoint %d", i), CheckMethod: "Visual"}
		if i == 2 {
			req.Description = "Sand Shot Pressure Check"
			req.ReadingUnit = "bar"
		}
		var item ItemDTO
		a.expect(http.MethodPost, "/api/forms/"+testForm+"/items", req, http.StatusCreated, &item)
		a.items = append(a.items, item)
	}
	return a
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// expect performs the request, checks the status and decodes into out.
func (a *testAPI) expect(method, path string, body any, status int, out any) {
	a.t.Helper()
	rec := a.do(method, path, body)
	require.Equal(a.t, status, rec.Code, "body: %s", rec.Body.String())
	if out != nil {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), out))
	}
}

func (a *testAPI) expectError(method, path string, body any, status int, code string) ErrorResponse {
	a.t.Helper()
	var resp ErrorResponse
	a.expect(method, path, body, status, &resp)
	if code != "" {
		assert.Equal(a.t, code, resp.Code, "details: %s", resp.Details)
	}
	return resp
}

func dayPath(suffix string) string {
	return "/api/forms/" + testForm + "/lines/" + testLine + "/days/" + testDay + suffix
}

func (a *testAPI) allDone() SubmissionRequest {
	req := SubmissionRequest{SignOff: "R. Kumar"}
	for _, item := range a.items {
		req.Items = append(req.Items, SubmissionItemRequest{ChecklistItemID: item.ID, Status: "done"})
	}
	return req
}

// =============================================================================
// DAILY FORM
// =============================================================================

func TestGetDay_PendingUntilSubmitted(t *testing.T) {
	// GIVEN: Three items and no observations
	// WHEN: The day is loaded, submitted, and loaded again
	// THEN: Entries go from pending to done, and the reading is returned as text

	a := newTestAPI(t).withItems()

	var day DayDTO
	a.expect(http.MethodGet, dayPath(""), nil, http.StatusOK, &day)
	require.Len(t, day.Entries, 3)
	assert.False(t, day.Complete)
	for _, e := range day.Entries {
		assert.Equal(t, "pending", e.Status)
		assert.Nil(t, e.Observation)
	}

	req := a.allDone()
	req.Items[0] = SubmissionItemRequest{ChecklistItemID: a.items[0].ID, Flags: &checklist.Flags{Done: true}}
	req.Items[1].ReadingValue = "6.50"

	var sub SubmissionDTO
	a.expect(http.MethodPost, dayPath("/submission"), req, http.StatusOK, &sub)
	assert.NotEmpty(t, sub.SubmissionID)
	require.Len(t, sub.Observations, 3)

	a.expect(http.MethodGet, dayPath(""), nil, http.StatusOK, &day)
	assert.True(t, day.Complete)
	assert.Empty(t, day.Override)
	assert.True(t, day.Entries[0].Flags.Done)
	require.NotNil(t, day.Entries[1].Observation)
	require.NotNil(t, day.Entries[1].Observation.ReadingValue)
	assert.Equal(t, "6.5", *day.Entries[1].Observation.ReadingValue)
	assert.Equal(t, sub.SubmissionID, day.Entries[2].Observation.SubmissionID)
}

func TestSubmitDay_Rejections(t *testing.T) {
	a := newTestAPI(t).withItems()

	incomplete := a.allDone()
	incomplete.Items = incomplete.Items[:2]
	a.expectError(http.MethodPost, dayPath("/submission"), incomplete, http.StatusBadRequest, generic.CodeIncompleteBatch)

	unsigned := a.allDone()
	unsigned.SignOff = ""
	a.expectError(http.MethodPost, dayPath("/submission"), unsigned, http.StatusBadRequest, generic.CodeMissingSignOff)

	badStatus := a.allDone()
	badStatus.Items[0].Status = "maybe"
	a.expectError(http.MethodPost, dayPath("/submission"), badStatus, http.StatusBadRequest, generic.CodeInvalidStatus)

	twoBoxes := a.allDone()
	twoBoxes.Items[0].Flags = &checklist.Flags{Done: true, NA: true}
	a.expectError(http.MethodPost, dayPath("/submission"), twoBoxes, http.StatusBadRequest, generic.CodeConflictingStatus)

	notOK := a.allDone()
	notOK.Items[0].Status = "not_ok"
	a.expectError(http.MethodPost, dayPath("/submission"), notOK, http.StatusBadRequest, generic.CodeNCRRequired)

	a.expectError(http.MethodPost, dayPath("/submission"), map[string]any{"sign_off": "x"}, http.StatusBadRequest, generic.CodeRequired)

	// Nothing was written by any of the rejected batches.
	var day DayDTO
	a.expect(http.MethodGet, dayPath(""), nil, http.StatusOK, &day)
	for _, e := range day.Entries {
		assert.Nil(t, e.Observation)
	}
}

func TestSubmitDay_HolidayCascades(t *testing.T) {
	a := newTestAPI(t).withItems()

	req := SubmissionRequest{Items: []SubmissionItemRequest{{ChecklistItemID: a.items[1].ID, Status: "holiday"}}}
	a.expect(http.MethodPost, dayPath("/submission"), req, http.StatusOK, nil)

	var day DayDTO
	a.expect(http.MethodGet, dayPath(""), nil, http.StatusOK, &day)
	assert.Equal(t, "holiday", day.Override)
	for _, e := range day.Entries {
		assert.True(t, e.Flags.Holiday)
	}

	// No report can be raised on a holiday.
	a.expectError(http.MethodPost, dayPath("/ncr"), NCRRequest{ChecklistItemID: a.items[0].ID}, http.StatusBadRequest, generic.CodeDayOverride)
}

func TestGetDay_BadDate(t *testing.T) {
	a := newTestAPI(t)
	a.expectError(http.MethodGet, "/api/forms/"+testForm+"/lines/"+testLine+"/days/05-10-2026", nil, http.StatusBadRequest, generic.CodeRequired)
}

// =============================================================================
// NON-CONFORMANCE REPORTS
// =============================================================================

func TestNCRWorkflow(t *testing.T) {
	// GIVEN: Checkpoint 1 fails on the 5th
	// WHEN: A report is raised, the day submitted with NotOK, and the report closed
	// THEN: NotOK is accepted only after the report, and closing clears the pending list

	a := newTestAPI(t).withItems()

	var rep ReportDTO
	a.expect(http.MethodPost, dayPath("/ncr"), NCRRequest{
		ChecklistItemID:  a.items[0].ID,
		Details:          "Hydraulic leak at swing plate",
		RootCause:        "Seal worn",
		CorrectiveAction: "Replace seal",
		TargetDate:       "2026-10-07",
		Responsibility:   "Maintenance",
		SignOff:          "R. Kumar",
	}, http.StatusOK, &rep)
	assert.Equal(t, "Pending", rep.NCR.Status)
	assert.Equal(t, "2026-10-07", rep.NCR.TargetDate)
	assert.Equal(t, "not_ok", rep.Observation.Status)

	req := a.allDone()
	req.Items[0].Status = "NotOK"
	a.expect(http.MethodPost, dayPath("/submission"), req, http.StatusOK, nil)

	var pending []PendingCorrectionDTO
	a.expect(http.MethodGet, "/api/forms/"+testForm+"/ncrs?line="+testLine+"&pending=true", nil, http.StatusOK, &pending)
	require.Len(t, pending, 1)
	assert.Equal(t, "Hydraulic leak at swing plate", pending[0].NCR.Details)
	assert.Equal(t, a.items[0].ID, pending[0].Item.ID)

	closed := "Closed"
	var updated NCRDTO
	a.expect(http.MethodPut, fmt.Sprintf("/api/ncrs/%d", rep.NCR.ID), NCRUpdateRequest{Status: &closed}, http.StatusOK, &updated)
	assert.Equal(t, "Closed", updated.Status)
	assert.Equal(t, "Seal worn", updated.RootCause)

	a.expect(http.MethodGet, "/api/forms/"+testForm+"/ncrs?line="+testLine+"&pending=true", nil, http.StatusOK, &pending)
	assert.Empty(t, pending)

	var all []NCRDTO
	a.expect(http.MethodGet, "/api/forms/"+testForm+"/ncrs?line="+testLine+"&from=2026-10-01&to=2026-10-31", nil, http.StatusOK, &all)
	assert.Len(t, all, 1)
}

func TestNCR_Errors(t *testing.T) {
	a := newTestAPI(t).withItems()

	a.expectError(http.MethodPost, dayPath("/ncr"), NCRRequest{ChecklistItemID: 999}, http.StatusNotFound, "")
	a.expectError(http.MethodPost, dayPath("/ncr"), NCRRequest{ChecklistItemID: a.items[0].ID, TargetDate: "next week"}, http.StatusBadRequest, generic.CodeRequired)

	bogus := "Reopened"
	a.expectError(http.MethodPut, "/api/ncrs/1", NCRUpdateRequest{Status: &bogus}, http.StatusBadRequest, generic.CodeRequired)
	a.expectError(http.MethodPut, "/api/ncrs/42", NCRUpdateRequest{}, http.StatusNotFound, "")
	a.expectError(http.MethodGet, "/api/forms/"+testForm+"/ncrs", nil, http.StatusBadRequest, "")
	a.expectError(http.MethodGet, "/api/forms/"+testForm+"/ncrs?line="+testLine+"&from=2026-10-31&to=2026-10-01", nil, http.StatusBadRequest, "")
}

// =============================================================================
// ITEMS
// =============================================================================

func TestItems_UpdateAndRetire(t *testing.T) {
	a := newTestAPI(t).withItems()

	var updated ItemDTO
	a.expect(http.MethodPut, fmt.Sprintf("/api/items/%d", a.items[0].ID),
		ItemRequest{SlNo: 1, Description: "Hydraulic Oil Level", CheckMethod: "Sight glass"}, http.StatusOK, &updated)
	assert.Equal(t, "Hydraulic Oil Level", updated.Description)
	assert.Equal(t, testForm, updated.FormType)

	a.expect(http.MethodDelete, fmt.Sprintf("/api/items/%d", a.items[2].ID), nil, http.StatusNoContent, nil)

	var active, all []ItemDTO
	a.expect(http.MethodGet, "/api/forms/"+testForm+"/items", nil, http.StatusOK, &active)
	a.expect(http.MethodGet, "/api/forms/"+testForm+"/items?include_retired=true", nil, http.StatusOK, &all)
	assert.Len(t, active, 2)
	assert.Len(t, all, 3)

	a.expectError(http.MethodPut, "/api/items/999", ItemRequest{SlNo: 1, Description: "x"}, http.StatusNotFound, "")
	a.expectError(http.MethodPost, "/api/forms/"+testForm+"/items", ItemRequest{SlNo: 0, Description: "x"}, http.StatusBadRequest, generic.CodeRequired)
	a.expectError(http.MethodDelete, "/api/items/abc", nil, http.StatusBadRequest, generic.CodeRequired)
}

// =============================================================================
// COLUMNS AND VALUES
// =============================================================================

func TestColumnsAndValues(t *testing.T) {
	// GIVEN: A setting-adjustment form with two columns
	// WHEN: Values are saved, one column is retired, and record 42 is reloaded
	// THEN: The retired column's value is still shown and flagged as retired

	a := newTestAPI(t)
	const form = "/api/forms/disa-setting-adjustment/columns"

	var thickness, remarks ColumnDTO
	a.expect(http.MethodPost, form, ColumnRequest{Name: "Mould Thickness"}, http.StatusCreated, &thickness)
	a.expect(http.MethodPost, form, ColumnRequest{Name: "Supervisor Remarks"}, http.StatusCreated, &remarks)
	assert.Equal(t, 2, remarks.DisplayOrder)

	var saved []RecordValueDTO
	a.expect(http.MethodPut, "/api/records/42/values", map[string]any{
		"form_type": "disa-setting-adjustment",
		"values": map[string]string{
			fmt.Sprint(thickness.ID): "120",
			fmt.Sprint(remarks.ID):   "Checked by shift lead",
		},
	}, http.StatusOK, &saved)
	require.Len(t, saved, 2)
	assert.Equal(t, "Mould Thickness", saved[0].ColumnName)

	a.expect(http.MethodDelete, fmt.Sprintf("/api/columns/%d", remarks.ID), nil, http.StatusNoContent, nil)

	var cols []ColumnDTO
	a.expect(http.MethodGet, form, nil, http.StatusOK, &cols)
	assert.Len(t, cols, 1)

	var values []RecordValueDTO
	a.expect(http.MethodGet, "/api/records/42/values", nil, http.StatusOK, &values)
	require.Len(t, values, 2)
	assert.True(t, values[1].IsDeleted)
	assert.Equal(t, "Checked by shift lead", values[1].Value)

	a.expectError(http.MethodPut, fmt.Sprintf("/api/records/42/values/%d", remarks.ID), SetValueRequest{Value: "late"}, http.StatusBadRequest, generic.CodeRetiredColumn)
	a.expectError(http.MethodPut, "/api/records/42/values/999", SetValueRequest{Value: "x"}, http.StatusNotFound, "")

	var renamed ColumnDTO
	a.expect(http.MethodPut, fmt.Sprintf("/api/columns/%d", thickness.ID), ColumnRequest{Name: "Mould Thickness (mm)"}, http.StatusOK, &renamed)
	assert.Equal(t, 1, renamed.DisplayOrder)

	a.expect(http.MethodPut, fmt.Sprintf("/api/records/43/values/%d", thickness.ID), SetValueRequest{Value: "118"}, http.StatusOK, nil)

	var grouped map[string]map[string]string
	a.expect(http.MethodGet, "/api/records/values?ids=42,43,44", nil, http.StatusOK, &grouped)
	assert.Len(t, grouped, 2)
	assert.Equal(t, "118", grouped["43"][fmt.Sprint(thickness.ID)])

	var deleted map[string]int
	a.expect(http.MethodDelete, "/api/records/42/values", nil, http.StatusOK, &deleted)
	assert.Equal(t, 2, deleted["deleted"])

	a.expectError(http.MethodGet, "/api/records/values?ids=1,x", nil, http.StatusBadRequest, "")
}

// =============================================================================
// MATRIX, SCENARIOS, OPERATIONS
// =============================================================================

func TestGetMatrix(t *testing.T) {
	a := newTestAPI(t).withItems()

	req := a.allDone()
	req.Items[1].ReadingValue = "6.5"
	a.expect(http.MethodPost, dayPath("/submission"), req, http.StatusOK, nil)

	var m MatrixDTO
	a.expect(http.MethodGet, "/api/forms/"+testForm+"/lines/"+testLine+"/matrix?year=2026&month=10", nil, http.StatusOK, &m)
	assert.Equal(t, 31, m.Days)
	require.Len(t, m.Rows, 3)
	assert.Equal(t, "Y", m.Rows[0].Cells[4])
	assert.Equal(t, "6.5", m.Rows[1].Cells[4])
	assert.Empty(t, m.Rows[1].Cells[5])

	a.expectError(http.MethodGet, "/api/forms/"+testForm+"/lines/"+testLine+"/matrix?year=2026&month=13", nil, http.StatusBadRequest, "")
	a.expectError(http.MethodGet, "/api/forms/"+testForm+"/lines/"+testLine+"/matrix?month=ten", nil, http.StatusBadRequest, "")
}

func TestLoadScenario_SandShotFailure(t *testing.T) {
	a := newTestAPI(t)

	var list []ScenarioDTO
	a.expect(http.MethodGet, "/api/scenarios", nil, http.StatusOK, &list)
	assert.Len(t, list, 3)

	a.expect(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "sand-shot-failure"}, http.StatusOK, nil)

	var m MatrixDTO
	a.expect(http.MethodGet, "/api/forms/"+testForm+"/lines/"+testLine+"/matrix", nil, http.StatusOK, &m)
	require.Len(t, m.Rows, 18)
	sandShot := m.Rows[2]
	assert.Equal(t, "Sand Shot Pressure Check", sandShot.Item.Description)
	assert.Equal(t, "6.5", sandShot.Cells[0])
	assert.Equal(t, "N", sandShot.Cells[5])
	assert.Equal(t, "Y", m.Rows[0].Cells[5])
	require.Len(t, m.NCRs, 1)

	// Loading again starts from a clean store.
	a.expect(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "holiday-week"}, http.StatusOK, nil)
	a.expect(http.MethodGet, "/api/forms/"+testForm+"/lines/"+testLine+"/matrix", nil, http.StatusOK, &m)
	assert.Empty(t, m.NCRs)
	assert.Equal(t, "H", m.Rows[0].Cells[3])
	assert.Equal(t, "VC", m.Rows[17].Cells[4])
	assert.Equal(t, "NA", m.Rows[17].Cells[0])

	a.expectError(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "unknown"}, http.StatusBadRequest, "")
}

func TestHealthAndMetrics(t *testing.T) {
	a := newTestAPI(t).withItems()

	a.expect(http.MethodGet, "/healthz", nil, http.StatusOK, nil)
	a.expect(http.MethodPost, dayPath("/submission"), a.allDone(), http.StatusOK, nil)

	rec := a.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `audit_batch_submissions_total{form_type="disa-machine-checklist",outcome="accepted"} 1`)
	assert.Contains(t, body, `audit_observations_written_total{form_type="disa-machine-checklist",status="done"} 3`)
}
