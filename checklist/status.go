/*
status.go - Daily observation state machine

PURPOSE:
  The shop-floor UI renders five checkboxes per checkpoint (Done, NA,
  NotOK, Holiday, VAT cleaning). The persisted model is a single Status,
  so the boxes are collapsed here and re-validated before anything is
  written.

STATES:
  Pending ──► Done | NA | NotOK | Holiday | VatCleaning
  Any terminal state can be replaced by another on resubmission.
  Every date starts at Pending; nothing carries over from yesterday.

RULES:
  1. Done and NA are mutually exclusive (Toggle clears the other)
  2. Holiday and VatCleaning are day-wide and exclude each other
  3. NotOK exists only through a linked non-conformance report
  4. More than one set checkbox is a validation error, never resolved

SEE ALSO:
  - batch.go: Applies the day-wide override to a whole batch
  - ncr.go: The only path into NotOK without a prior report
*/
package checklist

import (
	"github.com/warp/audit-engine/generic"
)

// Flags mirrors the checkbox row of the daily form.
type Flags struct {
	Done        bool `json:"done"`
	NA          bool `json:"na"`
	NotOK       bool `json:"not_ok"`
	Holiday     bool `json:"holiday"`
	VatCleaning bool `json:"vat_cleaning"`
}

// StatusFromFlags collapses the checkbox row into one Status. No box set is
// Pending. Two or more set boxes are rejected.
func StatusFromFlags(f Flags) (generic.Status, error) {
	var set []generic.Status
	if f.Done {
		set = append(set, generic.StatusDone)
	}
	if f.NA {
		set = append(set, generic.StatusNA)
	}
	if f.NotOK {
		set = append(set, generic.StatusNotOK)
	}
	if f.Holiday {
		set = append(set, generic.StatusHoliday)
	}
	if f.VatCleaning {
		set = append(set, generic.StatusVatCleaning)
	}

	switch len(set) {
	case 0:
		return generic.StatusPending, nil
	case 1:
		return set[0], nil
	}
	return "", generic.Invalid(generic.CodeConflictingStatus, "status",
		"states %v are mutually exclusive", set)
}

// FlagsOf is the inverse of StatusFromFlags.
func FlagsOf(s generic.Status) Flags {
	return Flags{
		Done:        s == generic.StatusDone,
		NA:          s == generic.StatusNA,
		NotOK:       s == generic.StatusNotOK,
		Holiday:     s == generic.StatusHoliday,
		VatCleaning: s == generic.StatusVatCleaning,
	}
}

// Toggle applies a checkbox click. Clicking the current state clears it
// back to Pending; clicking another state replaces it.
func Toggle(current, selected generic.Status) generic.Status {
	if current == selected {
		return generic.StatusPending
	}
	return selected
}

// dayOverride returns the Holiday/VatCleaning status shared by a day's rows.
// Rows disagreeing on the override are reported as a conflict.
func dayOverride(rows []generic.DailyObservation) (generic.Status, error) {
	override := generic.StatusPending
	for _, o := range rows {
		if !o.Status.IsDayOverride() {
			continue
		}
		if override != generic.StatusPending && override != o.Status {
			return "", generic.Invalid(generic.CodeConflictingStatus, "status",
				"day holds both %s and %s", override, o.Status)
		}
		override = o.Status
	}
	return override, nil
}
