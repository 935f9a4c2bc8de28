/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types in
  generic/ carry no JSON tags; these types are the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Items:        ItemDTO, ItemRequest
  Daily form:   DayDTO, DayEntryDTO, ObservationDTO
  Submission:   SubmissionRequest, SubmissionItemRequest, SubmissionDTO
  NCR:          NCRDTO, NCRRequest, NCRUpdateRequest, ReportDTO, PendingCorrectionDTO
  Columns:      ColumnDTO, ColumnRequest
  Values:       RecordValueDTO, SaveRecordRequest, SetValueRequest
  Matrix:       MatrixDTO, MatrixRowDTO

VALIDATION:
  Shape rules live in `validate` tags (go-playground/validator) and are
  checked by decode(). Business rules stay in the domain packages.

DATES:
  Calendar dates are "YYYY-MM-DD"; timestamps are RFC 3339.
*/
package api

import (
	"time"

	"github.com/warp/audit-engine/checklist"
	"github.com/warp/audit-engine/generic"
	"github.com/warp/audit-engine/report"
	"github.com/warp/audit-engine/schema"
)

// =============================================================================
// CHECKLIST ITEMS
// =============================================================================

// ItemDTO represents a checklist item in API responses.
type ItemDTO struct {
	ID          int64  `json:"id"`
	FormType    string `json:"form_type"`
	SlNo        int    `json:"sl_no"`
	Description string `json:"description"`
	CheckMethod string `json:"check_method,omitempty"`
	ReadingUnit string `json:"reading_unit,omitempty"`
	IsDeleted   bool   `json:"is_deleted"`
}

// ItemRequest creates or edits a checklist item.
type ItemRequest struct {
	SlNo        int    `json:"sl_no" validate:"gt=0"`
	Description string `json:"description" validate:"required"`
	CheckMethod string `json:"check_method"`
	ReadingUnit string `json:"reading_unit"`
}

// =============================================================================
// DAILY FORM
// =============================================================================

// ObservationDTO represents one ledger row.
type ObservationDTO struct {
	ID              int64   `json:"id"`
	ChecklistItemID int64   `json:"checklist_item_id"`
	LineID          string  `json:"line_id"`
	LogDate         string  `json:"log_date"`
	Status          string  `json:"status"`
	ReadingValue    *string `json:"reading_value,omitempty"`
	SignOff         string  `json:"sign_off,omitempty"`
	SubmissionID    string  `json:"submission_id,omitempty"`
	LastUpdated     string  `json:"last_updated"`
}

// DayEntryDTO is one row of the daily form.
type DayEntryDTO struct {
	Item        ItemDTO         `json:"item"`
	Status      string          `json:"status"`
	Flags       checklist.Flags `json:"flags"`
	Observation *ObservationDTO `json:"observation,omitempty"`
	NCR         *NCRDTO         `json:"ncr,omitempty"`
}

// DayDTO is the daily form for one form, line and date.
type DayDTO struct {
	FormType string        `json:"form_type"`
	LineID   string        `json:"line_id"`
	Date     string        `json:"date"`
	Override string        `json:"override,omitempty"`
	Complete bool          `json:"complete"`
	Entries  []DayEntryDTO `json:"entries"`
}

// SubmissionItemRequest is one checkpoint answer. Either Status or Flags
// must be given; Flags mirrors the checkbox row of the paper form.
type SubmissionItemRequest struct {
	ChecklistItemID int64            `json:"checklist_item_id" validate:"gt=0"`
	Status          string           `json:"status"`
	Flags           *checklist.Flags `json:"flags,omitempty"`
	ReadingValue    string           `json:"reading_value,omitempty"`
}

// SubmissionRequest submits a full day.
type SubmissionRequest struct {
	SignOff string                  `json:"sign_off"`
	Items   []SubmissionItemRequest `json:"items" validate:"required,dive"`
}

// SubmissionDTO is the result of a batch submission.
type SubmissionDTO struct {
	SubmissionID string           `json:"submission_id"`
	Observations []ObservationDTO `json:"observations"`
}

// =============================================================================
// NON-CONFORMANCE REPORTS
// =============================================================================

// NCRDTO represents a non-conformance report.
type NCRDTO struct {
	ID               int64  `json:"id"`
	ChecklistItemID  int64  `json:"checklist_item_id"`
	LineID           string `json:"line_id"`
	ReportDate       string `json:"report_date"`
	Details          string `json:"details,omitempty"`
	Correction       string `json:"correction,omitempty"`
	RootCause        string `json:"root_cause,omitempty"`
	CorrectiveAction string `json:"corrective_action,omitempty"`
	TargetDate       string `json:"target_date,omitempty"`
	Responsibility   string `json:"responsibility,omitempty"`
	SignOff          string `json:"sign_off,omitempty"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// NCRRequest reports a failed checkpoint for the day in the URL.
type NCRRequest struct {
	ChecklistItemID  int64  `json:"checklist_item_id" validate:"gt=0"`
	Details          string `json:"details"`
	Correction       string `json:"correction"`
	RootCause        string `json:"root_cause"`
	CorrectiveAction string `json:"corrective_action"`
	TargetDate       string `json:"target_date" validate:"omitempty,datetime=2006-01-02"`
	Responsibility   string `json:"responsibility"`
	SignOff          string `json:"sign_off"`
}

// NCRUpdateRequest is a partial update. Absent fields are unchanged.
type NCRUpdateRequest struct {
	Details          *string `json:"details"`
	Correction       *string `json:"correction"`
	RootCause        *string `json:"root_cause"`
	CorrectiveAction *string `json:"corrective_action"`
	TargetDate       *string `json:"target_date" validate:"omitempty,datetime=2006-01-02"`
	Responsibility   *string `json:"responsibility"`
	SignOff          *string `json:"sign_off"`
	Status           *string `json:"status" validate:"omitempty,oneof=Pending Closed"`
}

// ReportDTO is the result of ReportNonConformance: both persisted rows.
type ReportDTO struct {
	NCR         NCRDTO         `json:"ncr"`
	Observation ObservationDTO `json:"observation"`
}

// PendingCorrectionDTO is a report still waiting for its corrective action.
type PendingCorrectionDTO struct {
	NCR         NCRDTO         `json:"ncr"`
	Item        ItemDTO        `json:"item"`
	Observation ObservationDTO `json:"observation"`
}

// =============================================================================
// CUSTOM COLUMNS
// =============================================================================

// ColumnDTO represents a custom column definition.
type ColumnDTO struct {
	ID           int64  `json:"id"`
	FormType     string `json:"form_type"`
	Name         string `json:"name"`
	DisplayOrder int    `json:"display_order"`
	IsDeleted    bool   `json:"is_deleted"`
}

// ColumnRequest adds or renames a column.
type ColumnRequest struct {
	Name string `json:"name" validate:"required"`
}

// RecordValueDTO is a value joined with its column.
type RecordValueDTO struct {
	ColumnID     int64  `json:"column_id"`
	ColumnName   string `json:"column_name"`
	DisplayOrder int    `json:"display_order"`
	IsDeleted    bool   `json:"is_deleted"`
	Value        string `json:"value"`
	UpdatedAt    string `json:"updated_at"`
}

// SaveRecordRequest writes all custom values of a record at once. Values
// are keyed by column id.
type SaveRecordRequest struct {
	FormType string                      `json:"form_type" validate:"required"`
	Values   map[generic.ColumnID]string `json:"values" validate:"required"`
}

// SetValueRequest writes a single value.
type SetValueRequest struct {
	Value string `json:"value"`
}

// =============================================================================
// MONTHLY MATRIX
// =============================================================================

// MatrixRowDTO is one item's row; Cells[0] is day 1.
type MatrixRowDTO struct {
	Item  ItemDTO  `json:"item"`
	Cells []string `json:"cells"`
}

// MatrixDTO is the item x day grid for the monthly export.
type MatrixDTO struct {
	FormType     string         `json:"form_type"`
	LineID       string         `json:"line_id"`
	Year         int            `json:"year"`
	Month        int            `json:"month"`
	Days         int            `json:"days"`
	Rows         []MatrixRowDTO `json:"rows"`
	DayOverrides map[int]string `json:"day_overrides"`
	NCRs         []NCRDTO       `json:"ncrs"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toItemDTO(i generic.ChecklistItem) ItemDTO {
	return ItemDTO{
		ID:          int64(i.ID),
		FormType:    string(i.FormType),
		SlNo:        i.SlNo,
		Description: i.Description,
		CheckMethod: i.CheckMethod,
		ReadingUnit: i.ReadingUnit,
		IsDeleted:   i.IsDeleted,
	}
}

func toItemDTOs(items []generic.ChecklistItem) []ItemDTO {
	out := make([]ItemDTO, len(items))
	for i, item := range items {
		out[i] = toItemDTO(item)
	}
	return out
}

func toObservationDTO(o generic.DailyObservation) ObservationDTO {
	dto := ObservationDTO{
		ID:              int64(o.ID),
		ChecklistItemID: int64(o.ItemID),
		LineID:          string(o.LineID),
		LogDate:         o.LogDate.String(),
		Status:          string(o.Status),
		SignOff:         o.SignOff,
		SubmissionID:    o.SubmissionID,
		LastUpdated:     o.LastUpdated.Format(time.RFC3339),
	}
	if o.Reading != nil {
		v := o.Reading.String()
		dto.ReadingValue = &v
	}
	return dto
}

func toObservationDTOs(rows []generic.DailyObservation) []ObservationDTO {
	out := make([]ObservationDTO, len(rows))
	for i, o := range rows {
		out[i] = toObservationDTO(o)
	}
	return out
}

func toNCRDTO(n generic.NonConformanceReport) NCRDTO {
	dto := NCRDTO{
		ID:               int64(n.ID),
		ChecklistItemID:  int64(n.ItemID),
		LineID:           string(n.LineID),
		ReportDate:       n.ReportDate.String(),
		Details:          n.Details,
		Correction:       n.Correction,
		RootCause:        n.RootCause,
		CorrectiveAction: n.CorrectiveAction,
		Responsibility:   n.Responsibility,
		SignOff:          n.SignOff,
		Status:           string(n.Status),
		CreatedAt:        n.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        n.UpdatedAt.Format(time.RFC3339),
	}
	if n.TargetDate != nil {
		dto.TargetDate = n.TargetDate.String()
	}
	return dto
}

func toNCRDTOs(reports []generic.NonConformanceReport) []NCRDTO {
	out := make([]NCRDTO, len(reports))
	for i, r := range reports {
		out[i] = toNCRDTO(r)
	}
	return out
}

func toDayDTO(d checklist.DayState) DayDTO {
	dto := DayDTO{
		FormType: string(d.FormType),
		LineID:   string(d.LineID),
		Date:     d.Date.String(),
		Complete: d.Complete(),
		Entries:  make([]DayEntryDTO, len(d.Entries)),
	}
	if d.Override != generic.StatusPending {
		dto.Override = string(d.Override)
	}
	for i, e := range d.Entries {
		entry := DayEntryDTO{
			Item:   toItemDTO(e.Item),
			Status: string(e.Status),
			Flags:  checklist.FlagsOf(e.Status),
		}
		if e.Observation != nil {
			o := toObservationDTO(*e.Observation)
			entry.Observation = &o
		}
		if e.NCR != nil {
			n := toNCRDTO(*e.NCR)
			entry.NCR = &n
		}
		dto.Entries[i] = entry
	}
	return dto
}

func toColumnDTO(c generic.CustomColumnDefinition) ColumnDTO {
	return ColumnDTO{
		ID:           int64(c.ID),
		FormType:     string(c.FormType),
		Name:         c.Name,
		DisplayOrder: c.DisplayOrder,
		IsDeleted:    c.IsDeleted,
	}
}

func toRecordValueDTOs(values []schema.RecordValue) []RecordValueDTO {
	out := make([]RecordValueDTO, len(values))
	for i, v := range values {
		out[i] = RecordValueDTO{
			ColumnID:     int64(v.Column.ID),
			ColumnName:   v.Column.Name,
			DisplayOrder: v.Column.DisplayOrder,
			IsDeleted:    v.Column.IsDeleted,
			Value:        v.Value,
			UpdatedAt:    v.UpdatedAt.Format(time.RFC3339),
		}
	}
	return out
}

func toMatrixDTO(m *report.MonthlyMatrix) MatrixDTO {
	dto := MatrixDTO{
		FormType:     string(m.FormType),
		LineID:       string(m.LineID),
		Year:         m.Year,
		Month:        int(m.Month),
		Days:         m.Days,
		Rows:         make([]MatrixRowDTO, len(m.Items)),
		DayOverrides: make(map[int]string, len(m.DayOverrides)),
		NCRs:         toNCRDTOs(m.NCRs),
	}
	for i, item := range m.Items {
		dto.Rows[i] = MatrixRowDTO{Item: toItemDTO(item), Cells: m.Row(item.ID)}
	}
	for day, status := range m.DayOverrides {
		dto.DayOverrides[day] = string(status)
	}
	return dto
}
