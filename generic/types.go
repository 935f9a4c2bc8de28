/*
Package generic provides the core types shared by the checklist audit engine.

PURPOSE:
  This package contains the form-agnostic building blocks: identifiers, the
  daily observation status set, the master checklist item, the ledger row,
  the non-conformance report and the custom column (EAV) records. Domain
  packages (checklist, schema, report) build their rules on top of these.

KEY CONCEPTS IN THIS FILE (types.go):
  - ChecklistItem: A checkpoint on a form, soft-deleted, never tied to a day
  - DailyObservation: One ledger row per (item, line, date)
  - NonConformanceReport: One row per failed observation
  - CustomColumnDefinition / CustomColumnValue: Runtime-extensible fields

DESIGN PRINCIPLES:
  1. One live row per key: observations and NCRs are upserted, never duplicated
  2. Soft delete: items and columns are hidden, never removed while referenced
  3. Type Safety: Distinct ID types prevent mixing item/column/record IDs
  4. Precision: Readings use decimal.Decimal to avoid floating-point drift

SEE ALSO:
  - store.go: Persistence interfaces
  - ledger.go: Daily transaction ledger
  - errors.go: Validation and persistence errors
*/
package generic

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID int64
type ObservationID int64
type NCRID int64
type ColumnID int64
type RecordID int64

// LineID identifies a production line (e.g. "DISA-I").
type LineID string

// FormType identifies a form (e.g. "disa-machine-checklist").
type FormType string

// =============================================================================
// STATUS - Daily observation state
// =============================================================================

// Status is the persisted state of a checklist item for one day.
// Exactly one status is held per observation; there are no flag combinations.
type Status string

const (
	// StatusPending means no answer yet. It is never persisted.
	StatusPending     Status = "pending"
	StatusDone        Status = "done"
	StatusNotOK       Status = "not_ok"
	StatusNA          Status = "na"
	StatusHoliday     Status = "holiday"
	StatusVatCleaning Status = "vat_cleaning"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{StatusPending, StatusDone, StatusNotOK, StatusNA, StatusHoliday, StatusVatCleaning}

// ParseStatus accepts the canonical value and a few spellings the shop-floor
// UI has used over time ("OK", "NotOK", "N/A", "VAT").
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending":
		return StatusPending, true
	case "done", "ok", "y":
		return StatusDone, true
	case "not_ok", "notok", "not-ok", "n":
		return StatusNotOK, true
	case "na", "n/a":
		return StatusNA, true
	case "holiday":
		return StatusHoliday, true
	case "vat_cleaning", "vatcleaning", "vat-cleaning", "vat":
		return StatusVatCleaning, true
	}
	return "", false
}

// IsTerminal reports whether the status answers the item for the day.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusNotOK, StatusNA, StatusHoliday, StatusVatCleaning:
		return true
	}
	return false
}

// IsDayOverride reports whether the status applies to the whole day.
func (s Status) IsDayOverride() bool {
	return s == StatusHoliday || s == StatusVatCleaning
}

func (s Status) Valid() bool {
	return s == StatusPending || s.IsTerminal()
}

// NCRStatus is the workflow state of a non-conformance report.
type NCRStatus string

const (
	NCRPending NCRStatus = "Pending"
	NCRClosed  NCRStatus = "Closed"
)

func (s NCRStatus) Valid() bool { return s == NCRPending || s == NCRClosed }

// =============================================================================
// CHECKLIST ITEM - Master list entry
// =============================================================================

// ChecklistItem is a checkpoint on a form. Its identity is immutable once any
// observation references it; retiring it is a soft delete.
type ChecklistItem struct {
	ID          ItemID
	FormType    FormType
	SlNo        int
	Description string
	CheckMethod string
	// ReadingUnit is set for items that record a numeric reading instead of
	// plain pass/fail (e.g. "bar").
	ReadingUnit string
	IsDeleted   bool
}

// TakesReading reports whether the item records a numeric value.
func (i ChecklistItem) TakesReading() bool { return i.ReadingUnit != "" }

// =============================================================================
// DAILY OBSERVATION - Ledger row
// =============================================================================

// ObservationKey is the uniqueness key of the daily ledger.
type ObservationKey struct {
	ItemID  ItemID
	LineID  LineID
	LogDate Date
}

// DailyObservation is the state of one checklist item on one line for one day.
type DailyObservation struct {
	ID           ObservationID
	ItemID       ItemID
	LineID       LineID
	LogDate      Date
	Status       Status
	Reading      *decimal.Decimal
	SignOff      string
	SubmissionID string
	LastUpdated  time.Time
}

func (o DailyObservation) Key() ObservationKey {
	return ObservationKey{ItemID: o.ItemID, LineID: o.LineID, LogDate: o.LogDate}
}

// =============================================================================
// NON-CONFORMANCE REPORT
// =============================================================================

// NonConformanceReport records a failed checkpoint and its corrective workflow.
// At most one exists per (item, line, report date).
type NonConformanceReport struct {
	ID               NCRID
	ItemID           ItemID
	LineID           LineID
	ReportDate       Date
	Details          string
	Correction       string
	RootCause        string
	CorrectiveAction string
	TargetDate       *Date
	Responsibility   string
	SignOff          string
	Status           NCRStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (n NonConformanceReport) Key() ObservationKey {
	return ObservationKey{ItemID: n.ItemID, LineID: n.LineID, LogDate: n.ReportDate}
}

// =============================================================================
// CUSTOM COLUMNS (EAV)
// =============================================================================

// CustomColumnDefinition is an administrator-defined extra field on a form.
type CustomColumnDefinition struct {
	ID           ColumnID
	FormType     FormType
	Name         string
	DisplayOrder int
	IsDeleted    bool
}

// CustomColumnValue is the value of one custom column on one host record.
type CustomColumnValue struct {
	RecordID  RecordID
	ColumnID  ColumnID
	Value     string
	UpdatedAt time.Time
}

// Attributes is the typed view of a record's custom values, keyed by column.
// Callers build and read these instead of assembling column names by hand.
type Attributes map[ColumnID]string

// Columns returns the column IDs in ascending order.
func (a Attributes) Columns() []ColumnID {
	ids := make([]ColumnID, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AttributesFromValues groups value rows by record.
func AttributesFromValues(values []CustomColumnValue) map[RecordID]Attributes {
	out := make(map[RecordID]Attributes)
	for _, v := range values {
		attrs, ok := out[v.RecordID]
		if !ok {
			attrs = make(Attributes)
			out[v.RecordID] = attrs
		}
		attrs[v.ColumnID] = v.Value
	}
	return out
}
