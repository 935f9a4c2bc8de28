/*
Package schema implements the runtime-extensible part of the forms: the
custom column registry and the attribute (EAV) store behind it.

PURPOSE:
  Administrators add, rename and retire extra fields on otherwise fixed
  forms without a schema migration. Values live in one table keyed by
  (record, column).

RULES:
  1. New columns get displayOrder = max+1 within the form type
  2. Names must be non-empty; duplicates are allowed
  3. Retiring a column hides it from entry screens; its values stay
  4. Values are upserted by (record, column), last writer wins
  5. A retired column accepts no new writes
  6. Values are deleted only when their host record is deleted

TRANSACTIONS:
  SaveRecord writes every column of one record inside a single WithTx.
  SetValue is a single-row upsert and needs none.

SEE ALSO:
  - generic/types.go: CustomColumnDefinition, CustomColumnValue, Attributes
  - store/sqlstore/columns.go: ON CONFLICT upsert
*/
package schema

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/audit-engine/generic"
	"github.com/warp/audit-engine/metrics"
)

// Registry is the schema editor and attribute store for every form type.
type Registry struct {
	store   generic.TxStore
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewRegistry(store generic.TxStore, logger *zap.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, logger: logger, metrics: m}
}

// RecordValue is a value joined with its column definition. The column may
// be retired.
type RecordValue struct {
	Column    generic.CustomColumnDefinition
	Value     string
	UpdatedAt time.Time
}

// =============================================================================
// SCHEMA REGISTRY
// =============================================================================

// AddColumn appends a column to the form.
func (r *Registry) AddColumn(ctx context.Context, formType generic.FormType, name string) (generic.CustomColumnDefinition, error) {
	if strings.TrimSpace(string(formType)) == "" {
		return generic.CustomColumnDefinition{}, generic.Invalid(generic.CodeRequired, "formType", "form type is required")
	}
	name, err := columnName(name)
	if err != nil {
		return generic.CustomColumnDefinition{}, err
	}

	col, err := r.store.InsertColumn(ctx, formType, name)
	if err != nil {
		return generic.CustomColumnDefinition{}, generic.Persist("add column", err)
	}
	r.metrics.Schema("added")
	r.logger.Info("custom column added",
		zap.String("form_type", string(formType)),
		zap.Int64("column_id", int64(col.ID)),
		zap.String("name", col.Name),
		zap.Int("display_order", col.DisplayOrder))
	return col, nil
}

// RemoveColumn retires a column. Its values are untouched.
func (r *Registry) RemoveColumn(ctx context.Context, id generic.ColumnID) error {
	if err := r.store.SoftDeleteColumn(ctx, id); err != nil {
		return generic.Persist("remove column", err)
	}
	r.metrics.Schema("removed")
	r.logger.Info("custom column retired", zap.Int64("column_id", int64(id)))
	return nil
}

// RenameColumn changes the display name. Existing values follow the column.
func (r *Registry) RenameColumn(ctx context.Context, id generic.ColumnID, name string) (generic.CustomColumnDefinition, error) {
	name, err := columnName(name)
	if err != nil {
		return generic.CustomColumnDefinition{}, err
	}
	col, err := r.store.RenameColumn(ctx, id, name)
	if err != nil {
		return generic.CustomColumnDefinition{}, generic.Persist("rename column", err)
	}
	r.metrics.Schema("renamed")
	return col, nil
}

// ListColumns returns the form's columns in display order. Entry screens
// pass includeRetired=false.
func (r *Registry) ListColumns(ctx context.Context, formType generic.FormType, includeRetired bool) ([]generic.CustomColumnDefinition, error) {
	cols, err := r.store.ListColumns(ctx, formType, includeRetired)
	return cols, generic.Persist("list columns", err)
}

func columnName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", generic.Invalid(generic.CodeRequired, "columnName", "column name is required")
	}
	return name, nil
}

// =============================================================================
// ATTRIBUTE STORE
// =============================================================================

// SetValue upserts one value.
func (r *Registry) SetValue(ctx context.Context, record generic.RecordID, column generic.ColumnID, value string) (generic.CustomColumnValue, error) {
	if record <= 0 {
		return generic.CustomColumnValue{}, generic.Invalid(generic.CodeRequired, "recordId", "record id is required")
	}
	v, err := setValue(ctx, r.store, "", record, column, value)
	if err != nil {
		return generic.CustomColumnValue{}, err
	}
	r.metrics.Values(1)
	return v, nil
}

// SaveRecord writes every attribute of a record in one transaction. Columns
// must belong to formType. Returns the record's full value set afterwards.
func (r *Registry) SaveRecord(ctx context.Context, formType generic.FormType, record generic.RecordID, attrs generic.Attributes) ([]RecordValue, error) {
	if record <= 0 {
		return nil, generic.Invalid(generic.CodeRequired, "recordId", "record id is required")
	}

	var out []RecordValue
	err := r.store.WithTx(ctx, func(tx generic.Store) error {
		for _, column := range attrs.Columns() {
			if _, err := setValue(ctx, tx, formType, record, column, attrs[column]); err != nil {
				return err
			}
		}
		var err error
		out, err = recordValues(ctx, tx, record)
		return err
	})
	if err != nil {
		return nil, generic.Persist("save record", err)
	}

	r.metrics.Values(len(attrs))
	r.logger.Info("record attributes saved",
		zap.String("form_type", string(formType)),
		zap.Int64("record_id", int64(record)),
		zap.Int("columns", len(attrs)))
	return out, nil
}

func setValue(ctx context.Context, s generic.Store, formType generic.FormType, record generic.RecordID, column generic.ColumnID, value string) (generic.CustomColumnValue, error) {
	col, err := s.GetColumn(ctx, column)
	if err != nil {
		return generic.CustomColumnValue{}, generic.Persist("get column", err)
	}
	if col.IsDeleted {
		return generic.CustomColumnValue{}, generic.Invalid(generic.CodeRetiredColumn, "columnId",
			"column %q is retired", col.Name)
	}
	if formType != "" && col.FormType != formType {
		return generic.CustomColumnValue{}, generic.Invalid(generic.CodeFormMismatch, "columnId",
			"column %d belongs to %s", col.ID, col.FormType)
	}
	v, err := s.UpsertValue(ctx, generic.CustomColumnValue{RecordID: record, ColumnID: column, Value: value})
	return v, generic.Persist("upsert value", err)
}

// RecordValues returns a record's values joined with their definitions,
// retired columns included, in display order.
func (r *Registry) RecordValues(ctx context.Context, record generic.RecordID) ([]RecordValue, error) {
	out, err := recordValues(ctx, r.store, record)
	return out, generic.Persist("record values", err)
}

func recordValues(ctx context.Context, s generic.Store, record generic.RecordID) ([]RecordValue, error) {
	values, err := s.ListValues(ctx, []generic.RecordID{record})
	if err != nil {
		return nil, err
	}
	out := make([]RecordValue, 0, len(values))
	for _, v := range values {
		col, err := s.GetColumn(ctx, v.ColumnID)
		if err != nil {
			return nil, err
		}
		out = append(out, RecordValue{Column: col, Value: v.Value, UpdatedAt: v.UpdatedAt})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Column, out[j].Column
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		return a.ID < b.ID
	})
	return out, nil
}

// ValuesFor fetches the values of many records in one query and groups them
// by record. Records without values are absent from the map.
func (r *Registry) ValuesFor(ctx context.Context, records []generic.RecordID) (map[generic.RecordID]generic.Attributes, error) {
	if len(records) == 0 {
		return map[generic.RecordID]generic.Attributes{}, nil
	}
	values, err := r.store.ListValues(ctx, records)
	if err != nil {
		return nil, generic.Persist("list values", err)
	}
	return generic.AttributesFromValues(values), nil
}

// DeleteRecordValues removes a record's values when the record is deleted.
func (r *Registry) DeleteRecordValues(ctx context.Context, record generic.RecordID) (int, error) {
	n, err := r.store.DeleteRecordValues(ctx, record)
	if err != nil {
		return 0, generic.Persist("delete record values", err)
	}
	r.logger.Info("record attributes deleted", zap.Int64("record_id", int64(record)), zap.Int("values", n))
	return n, nil
}
