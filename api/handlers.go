/*
handlers.go - HTTP API handlers for the checklist audit engine

PURPOSE:
  Exposes the audit engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the domain packages.

ENDPOINTS:
  Daily form:
    GET    /api/forms/{formType}/lines/{lineID}/days/{date}             Items + observations + NCRs
    POST   /api/forms/{formType}/lines/{lineID}/days/{date}/submission  Submit the whole day
    POST   /api/forms/{formType}/lines/{lineID}/days/{date}/ncr         Report a failed checkpoint

  Reports:
    GET    /api/forms/{formType}/lines/{lineID}/matrix?year=&month=     Monthly matrix
    GET    /api/forms/{formType}/ncrs?line=&from=&to=&pending=          NCR list
    PUT    /api/ncrs/{id}                                               NCR workflow update

  Admin:
    GET    /api/forms/{formType}/items          POST same    PUT/DELETE /api/items/{id}
    GET    /api/forms/{formType}/columns        POST same    PUT/DELETE /api/columns/{id}

  Attribute store:
    GET    /api/records/values?ids=1,2,3
    GET    /api/records/{recordID}/values
    PUT    /api/records/{recordID}/values            Save all values (one transaction)
    PUT    /api/records/{recordID}/values/{columnID} Save one value
    DELETE /api/records/{recordID}/values            Host record deleted

REQUEST FLOW:
  1. Parse URL parameters and body (decode validates DTO tags)
  2. Call the domain service
  3. Serialize response DTO
  4. Map errors with writeDomainError

ERROR HANDLING:
  - 400: Validation errors, invalid input, invalid period
  - 404: Item, column, report or observation not found
  - 409: Unique-key conflict
  - 500: Persistence failures (the transaction was rolled back)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/warp/audit-engine/checklist"
	"github.com/warp/audit-engine/generic"
	"github.com/warp/audit-engine/metrics"
	"github.com/warp/audit-engine/report"
	"github.com/warp/audit-engine/schema"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can check connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       generic.TxStore
	Catalog     *checklist.Catalog
	Ledger      *checklist.Ledger
	Coordinator *checklist.Coordinator
	Workflow    *checklist.Workflow
	Registry    *schema.Registry
	Aggregator  *report.Aggregator

	Logger         *zap.Logger
	Gatherer       prometheus.Gatherer
	Pinger         Pinger
	Resetter       Resetter
	AllowedOrigins []string

	// EnableScenarios mounts the demo loaders that wipe the store.
	EnableScenarios bool

	// Today is overridable in tests.
	Today func() generic.Date
}

// NewHandler wires every service onto one store. With a nil registry no
// metrics are recorded and /metrics is not served.
func NewHandler(store generic.TxStore, logger *zap.Logger, reg *prometheus.Registry) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	var m *metrics.Metrics
	h := &Handler{
		Store:  store,
		Logger: logger,
		Today:  generic.Today,
	}
	if reg != nil {
		m = metrics.New(reg)
		h.Gatherer = reg
	}
	if p, ok := store.(Pinger); ok {
		h.Pinger = p
	}
	if rs, ok := store.(Resetter); ok {
		h.Resetter = rs
	}

	h.Catalog = checklist.NewCatalog(store)
	h.Ledger = checklist.NewLedger(store)
	h.Coordinator = checklist.NewCoordinator(store, logger, m)
	h.Workflow = checklist.NewWorkflow(store, logger, m)
	h.Registry = schema.NewRegistry(store, logger, m)
	h.Aggregator = report.NewAggregator(store)
	return h
}

// Health pings the store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Pinger != nil {
		if err := h.Pinger.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unreachable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// DAILY FORM
// =============================================================================

// GetDay returns the daily form: every active item with its observation
// (Pending when absent) and report.
// GET /api/forms/{formType}/lines/{lineID}/days/{date}
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	formType, lineID, date, err := dayParams(r)
	if err != nil {
		writeDomainError(w, "Invalid day", err)
		return
	}

	day, err := h.Ledger.Day(r.Context(), formType, lineID, date)
	if err != nil {
		writeDomainError(w, "Failed to load day", err)
		return
	}
	writeJSON(w, http.StatusOK, toDayDTO(day))
}

// SubmitDay persists the whole day in one transaction.
// POST /api/forms/{formType}/lines/{lineID}/days/{date}/submission
func (h *Handler) SubmitDay(w http.ResponseWriter, r *http.Request) {
	formType, lineID, date, err := dayParams(r)
	if err != nil {
		writeDomainError(w, "Invalid day", err)
		return
	}

	var req SubmissionRequest
	if err := decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}

	batch := checklist.Batch{
		FormType: formType,
		LineID:   lineID,
		LogDate:  date,
		SignOff:  req.SignOff,
		Items:    make([]checklist.BatchItem, len(req.Items)),
	}
	for i, in := range req.Items {
		status, err := submittedStatus(in)
		if err != nil {
			writeDomainError(w, "Invalid status", err)
			return
		}
		batch.Items[i] = checklist.BatchItem{
			ItemID:  generic.ItemID(in.ChecklistItemID),
			Status:  status,
			Reading: in.ReadingValue,
		}
	}

	saved, err := h.Coordinator.SubmitBatch(r.Context(), batch)
	if err != nil {
		writeDomainError(w, "Failed to submit checklist", err)
		return
	}

	resp := SubmissionDTO{Observations: toObservationDTOs(saved)}
	if len(saved) > 0 {
		resp.SubmissionID = saved[0].SubmissionID
	}
	writeJSON(w, http.StatusOK, resp)
}

func submittedStatus(in SubmissionItemRequest) (generic.Status, error) {
	if in.Flags != nil {
		return checklist.StatusFromFlags(*in.Flags)
	}
	status, ok := generic.ParseStatus(in.Status)
	if !ok {
		return "", generic.Invalid(generic.CodeInvalidStatus, "status",
			"item %d has unknown status %q", in.ChecklistItemID, in.Status)
	}
	return status, nil
}

// ReportNCR creates or overwrites the report for the day and forces the
// item to NotOK.
// POST /api/forms/{formType}/lines/{lineID}/days/{date}/ncr
func (h *Handler) ReportNCR(w http.ResponseWriter, r *http.Request) {
	_, lineID, date, err := dayParams(r)
	if err != nil {
		writeDomainError(w, "Invalid day", err)
		return
	}

	var req NCRRequest
	if err := decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}

	in := checklist.NCRInput{
		ItemID:           generic.ItemID(req.ChecklistItemID),
		LineID:           lineID,
		ReportDate:       date,
		Details:          req.Details,
		Correction:       req.Correction,
		RootCause:        req.RootCause,
		CorrectiveAction: req.CorrectiveAction,
		Responsibility:   req.Responsibility,
		SignOff:          req.SignOff,
	}
	if req.TargetDate != "" {
		target, err := generic.ParseDate(req.TargetDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid target_date format (use YYYY-MM-DD)", err)
			return
		}
		in.TargetDate = &target
	}

	ncr, obs, err := h.Workflow.ReportNonConformance(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to report non-conformance", err)
		return
	}
	writeJSON(w, http.StatusOK, ReportDTO{NCR: toNCRDTO(ncr), Observation: toObservationDTO(obs)})
}

// =============================================================================
// REPORTS
// =============================================================================

// GetMatrix returns the item x day grid for a month.
// GET /api/forms/{formType}/lines/{lineID}/matrix?year=2026&month=10
func (h *Handler) GetMatrix(w http.ResponseWriter, r *http.Request) {
	formType := generic.FormType(chi.URLParam(r, "formType"))
	lineID := generic.LineID(chi.URLParam(r, "lineID"))

	today := h.Today()
	year, err := intQuery(r, "year", today.Year())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	month, err := intQuery(r, "month", int(today.Month()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	m, err := h.Aggregator.BuildMonthlyMatrix(r.Context(), formType, lineID, time.Month(month), year)
	if err != nil {
		writeDomainError(w, "Failed to build matrix", err)
		return
	}
	writeJSON(w, http.StatusOK, toMatrixDTO(m))
}

// ListNCRs lists reports for a line. Without from/to the current month is
// used; pending=true lists only reports still waiting for correction.
// GET /api/forms/{formType}/ncrs?line=DISA-1&from=2026-10-01&to=2026-10-31
func (h *Handler) ListNCRs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	formType := generic.FormType(chi.URLParam(r, "formType"))
	lineID := generic.LineID(r.URL.Query().Get("line"))
	if lineID == "" {
		writeError(w, http.StatusBadRequest, "line is required", nil)
		return
	}
	period, err := h.periodQuery(r)
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return
	}

	if r.URL.Query().Get("pending") == "true" {
		pending, err := h.Workflow.PendingCorrections(ctx, formType, lineID, period)
		if err != nil {
			writeDomainError(w, "Failed to list pending corrections", err)
			return
		}
		dtos := make([]PendingCorrectionDTO, len(pending))
		for i, p := range pending {
			dtos[i] = PendingCorrectionDTO{
				NCR:         toNCRDTO(p.Report),
				Item:        toItemDTO(p.Item),
				Observation: toObservationDTO(p.Observation),
			}
		}
		writeJSON(w, http.StatusOK, dtos)
		return
	}

	reports, err := h.Workflow.ListNCRs(ctx, formType, lineID, period)
	if err != nil {
		writeDomainError(w, "Failed to list reports", err)
		return
	}
	writeJSON(w, http.StatusOK, toNCRDTOs(reports))
}

// UpdateNCR applies a partial workflow update, such as closing a report.
// PUT /api/ncrs/{id}
func (h *Handler) UpdateNCR(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeDomainError(w, "Invalid report id", err)
		return
	}
	var req NCRUpdateRequest
	if err := decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}

	u := checklist.NCRUpdate{
		Details:          req.Details,
		Correction:       req.Correction,
		RootCause:        req.RootCause,
		CorrectiveAction: req.CorrectiveAction,
		Responsibility:   req.Responsibility,
		SignOff:          req.SignOff,
	}
	if req.TargetDate != nil {
		target, err := generic.ParseDate(*req.TargetDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid target_date format (use YYYY-MM-DD)", err)
			return
		}
		u.TargetDate = &target
	}
	if req.Status != nil {
		status := generic.NCRStatus(*req.Status)
		u.Status = &status
	}

	saved, err := h.Workflow.UpdateNCR(r.Context(), generic.NCRID(id), u)
	if err != nil {
		writeDomainError(w, "Failed to update report", err)
		return
	}
	writeJSON(w, http.StatusOK, toNCRDTO(saved))
}

// =============================================================================
// CHECKLIST ITEMS
// =============================================================================

// ListItems returns the form's items; include_retired=true adds retired ones.
// GET /api/forms/{formType}/items
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	formType := generic.FormType(chi.URLParam(r, "formType"))
	items, err := h.Catalog.List(r.Context(), formType, r.URL.Query().Get("include_retired") == "true")
	if err != nil {
		writeDomainError(w, "Failed to list items", err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTOs(items))
}

// CreateItem adds a checkpoint to the form.
// POST /api/forms/{formType}/items
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if err := decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}

	item, err := h.Catalog.Add(r.Context(), generic.ChecklistItem{
		FormType:    generic.FormType(chi.URLParam(r, "formType")),
		SlNo:        req.SlNo,
		Description: req.Description,
		CheckMethod: req.CheckMethod,
		ReadingUnit: req.ReadingUnit,
	})
	if err != nil {
		writeDomainError(w, "Failed to create item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(item))
}

// UpdateItem edits a checkpoint's wording. Its form stays the same.
// PUT /api/items/{id}
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := idParam(r, "id")
	if err != nil {
		writeDomainError(w, "Invalid item id", err)
		return
	}
	var req ItemRequest
	if err := decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}

	existing, err := h.Catalog.Get(ctx, generic.ItemID(id))
	if err != nil {
		writeDomainError(w, "Failed to get item", err)
		return
	}
	existing.SlNo = req.SlNo
	existing.Description = req.Description
	existing.CheckMethod = req.CheckMethod
	existing.ReadingUnit = req.ReadingUnit

	item, err := h.Catalog.Update(ctx, existing)
	if err != nil {
		writeDomainError(w, "Failed to update item", err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item))
}

// RetireItem soft-deletes a checkpoint. Its history is kept.
// DELETE /api/items/{id}
func (h *Handler) RetireItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeDomainError(w, "Invalid item id", err)
		return
	}
	if err := h.Catalog.Retire(r.Context(), generic.ItemID(id)); err != nil {
		writeDomainError(w, "Failed to retire item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SCHEMA REGISTRY
// =============================================================================

// ListColumns returns the form's custom columns in display order.
// GET /api/forms/{formType}/columns?include_retired=true
func (h *Handler) ListColumns(w http.ResponseWriter, r *http.Request) {
	formType := generic.FormType(chi.URLParam(r, "formType"))
	cols, err := h.Registry.ListColumns(r.Context(), formType, r.URL.Query().Get("include_retired") == "true")
	if err != nil {
		writeDomainError(w, "Failed to list columns", err)
		return
	}
	dtos := make([]ColumnDTO, len(cols))
	for i, c := range cols {
		dtos[i] = toColumnDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateColumn appends a custom column to the form.
// POST /api/forms/{formType}/columns
func (h *Handler) CreateColumn(w http.ResponseWriter, r *http.Request) {
	var req ColumnRequest
	if err := decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}
	col, err := h.Registry.AddColumn(r.Context(), generic.FormType(chi.URLParam(r, "formType")), req.Name)
	if err != nil {
		writeDomainError(w, "Failed to add column", err)
		return
	}
	writeJSON(w, http.StatusCreated, toColumnDTO(col))
}

// RenameColumn changes a column's display name.
// PUT /api/columns/{id}
func (h *Handler) RenameColumn(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeDomainError(w, "Invalid column id", err)
		return
	}
	var req ColumnRequest
	if err := decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}
	col, err := h.Registry.RenameColumn(r.Context(), generic.ColumnID(id), req.Name)
	if err != nil {
		writeDomainError(w, "Failed to rename column", err)
		return
	}
	writeJSON(w, http.StatusOK, toColumnDTO(col))
}

// RemoveColumn retires a column. Stored values are kept.
// DELETE /api/columns/{id}
func (h *Handler) RemoveColumn(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeDomainError(w, "Invalid column id", err)
		return
	}
	if err := h.Registry.RemoveColumn(r.Context(), generic.ColumnID(id)); err != nil {
		writeDomainError(w, "Failed to remove column", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ATTRIBUTE STORE
// =============================================================================

// GetRecordValues returns a record's values joined with their columns,
// retired columns included.
// GET /api/records/{recordID}/values
func (h *Handler) GetRecordValues(w http.ResponseWriter, r *http.Request) {
	record, err := idParam(r, "recordID")
	if err != nil {
		writeDomainError(w, "Invalid record id", err)
		return
	}
	values, err := h.Registry.RecordValues(r.Context(), generic.RecordID(record))
	if err != nil {
		writeDomainError(w, "Failed to load values", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordValueDTOs(values))
}

// SaveRecord writes every value of a record in one transaction.
// PUT /api/records/{recordID}/values
func (h *Handler) SaveRecord(w http.ResponseWriter, r *http.Request) {
	record, err := idParam(r, "recordID")
	if err != nil {
		writeDomainError(w, "Invalid record id", err)
		return
	}
	var req SaveRecordRequest
	if err := decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}

	values, err := h.Registry.SaveRecord(r.Context(), generic.FormType(req.FormType), generic.RecordID(record), generic.Attributes(req.Values))
	if err != nil {
		writeDomainError(w, "Failed to save values", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordValueDTOs(values))
}

// SetValue upserts a single value.
// PUT /api/records/{recordID}/values/{columnID}
func (h *Handler) SetValue(w http.ResponseWriter, r *http.Request) {
	record, err := idParam(r, "recordID")
	if err != nil {
		writeDomainError(w, "Invalid record id", err)
		return
	}
	column, err := idParam(r, "columnID")
	if err != nil {
		writeDomainError(w, "Invalid column id", err)
		return
	}
	var req SetValueRequest
	if err := decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}

	v, err := h.Registry.SetValue(r.Context(), generic.RecordID(record), generic.ColumnID(column), req.Value)
	if err != nil {
		writeDomainError(w, "Failed to save value", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"record_id":  int64(v.RecordID),
		"column_id":  int64(v.ColumnID),
		"value":      v.Value,
		"updated_at": v.UpdatedAt.Format(time.RFC3339),
	})
}

// DeleteRecordValues removes a record's values after the record itself was
// deleted.
// DELETE /api/records/{recordID}/values
func (h *Handler) DeleteRecordValues(w http.ResponseWriter, r *http.Request) {
	record, err := idParam(r, "recordID")
	if err != nil {
		writeDomainError(w, "Invalid record id", err)
		return
	}
	n, err := h.Registry.DeleteRecordValues(r.Context(), generic.RecordID(record))
	if err != nil {
		writeDomainError(w, "Failed to delete values", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// ValuesFor returns the values of many records keyed by record and column.
// GET /api/records/values?ids=1,2,3
func (h *Handler) ValuesFor(w http.ResponseWriter, r *http.Request) {
	var records []generic.RecordID
	for _, raw := range strings.Split(r.URL.Query().Get("ids"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid ids", err)
			return
		}
		records = append(records, generic.RecordID(id))
	}

	attrs, err := h.Registry.ValuesFor(r.Context(), records)
	if err != nil {
		writeDomainError(w, "Failed to load values", err)
		return
	}
	writeJSON(w, http.StatusOK, attrs)
}

// =============================================================================
// HELPERS
// =============================================================================

var validate = validator.New(validator.WithRequiredStructEnabled())

// decode reads a JSON body and checks its validate tags.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return generic.Invalid(generic.CodeRequired, "body", "malformed JSON: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return generic.Invalid(generic.CodeRequired, fe.Field(), "%s failed %q", fe.Field(), fe.Tag())
		}
		return err
	}
	return nil
}

func dayParams(r *http.Request) (generic.FormType, generic.LineID, generic.Date, error) {
	formType := generic.FormType(chi.URLParam(r, "formType"))
	lineID := generic.LineID(chi.URLParam(r, "lineID"))
	date, err := generic.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		return "", "", generic.Date{}, generic.Invalid(generic.CodeRequired, "date", "date must be YYYY-MM-DD")
	}
	return formType, lineID, date, nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, generic.Invalid(generic.CodeRequired, name, "%s must be a positive integer", name)
	}
	return id, nil
}

func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return v, nil
}

// periodQuery reads from/to, defaulting to the current month.
func (h *Handler) periodQuery(r *http.Request) (generic.Period, error) {
	q := r.URL.Query()
	if q.Get("from") == "" && q.Get("to") == "" {
		today := h.Today()
		return generic.MonthPeriod(today.Year(), today.Month())
	}
	from, err := generic.ParseDate(q.Get("from"))
	if err != nil {
		return generic.Period{}, generic.Invalid(generic.CodeRequired, "from", "from must be YYYY-MM-DD")
	}
	to, err := generic.ParseDate(q.Get("to"))
	if err != nil {
		return generic.Period{}, generic.Invalid(generic.CodeRequired, "to", "to must be YYYY-MM-DD")
	}
	p := generic.Period{Start: from, End: to}
	return p, p.Validate()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case generic.IsClientError(err):
		status = http.StatusBadRequest
	case generic.IsNotFound(err):
		status = http.StatusNotFound
	case generic.IsConflict(err):
		status = http.StatusConflict
	}

	resp := ErrorResponse{Error: message, Details: err.Error()}
	var verr *generic.ValidationError
	if errors.As(err, &verr) {
		resp.Code = verr.Code
		resp.Field = verr.Field
	}
	writeJSON(w, status, resp)
}
