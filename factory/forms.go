/*
Package factory provides YAML/JSON to Go form conversion.

PURPOSE:
  Converts form definitions into checklist items and default custom
  columns. New plants or forms are configured in a file instead of code;
  the built-in DISA forms ship embedded in the binary.

SCHEMA (YAML, or the equivalent JSON):
  forms:
    - form_type: disa-machine-checklist
      name: DISA Machine Daily Checklist
      items:
        - sl_no: 3
          description: Sand Shot Pressure Check
          check_method: Gauge
          reading_unit: bar
    - form_type: disa-setting-adjustment
      columns: [Mould Thickness, Squeeze Pressure, Remarks]

SEEDING:
  Seed is idempotent per form type and per kind: items are only created for
  a form that has none (retired ones count), and likewise for columns. An
  administrator's later edits are never overwritten by a restart.

USAGE:
  defs, err := factory.Builtin()
  res, err := factory.Seed(ctx, store, defs, logger)

SEE ALSO:
  - forms.yaml: Built-in definitions
  - schema/registry.go: Runtime column edits after seeding
*/
package factory

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/warp/audit-engine/generic"
)

//go:embed forms.yaml
var builtinForms []byte

// =============================================================================
// SCHEMA TYPES
// =============================================================================

// File is the top level of a definitions file.
type File struct {
	Forms []FormDefinition `yaml:"forms" json:"forms" validate:"dive"`
}

// FormDefinition describes one form type.
type FormDefinition struct {
	FormType string           `yaml:"form_type" json:"form_type" validate:"required"`
	Name     string           `yaml:"name,omitempty" json:"name,omitempty"`
	Items    []ItemDefinition `yaml:"items,omitempty" json:"items,omitempty" validate:"dive"`
	Columns  []string         `yaml:"columns,omitempty" json:"columns,omitempty" validate:"dive,required"`
}

// ItemDefinition is one checkpoint of a fixed checklist.
type ItemDefinition struct {
	SlNo        int    `yaml:"sl_no" json:"sl_no" validate:"gt=0"`
	Description string `yaml:"description" json:"description" validate:"required"`
	CheckMethod string `yaml:"check_method,omitempty" json:"check_method,omitempty"`
	ReadingUnit string `yaml:"reading_unit,omitempty" json:"reading_unit,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse decodes and validates a definitions file. JSON input is accepted as
// YAML.
func Parse(data []byte) ([]FormDefinition, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse form definitions: %w", err)
	}
	if err := Validate(f.Forms); err != nil {
		return nil, err
	}
	return f.Forms, nil
}

// Load reads a definitions file from disk.
func Load(path string) ([]FormDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read form definitions: %w", err)
	}
	return Parse(data)
}

// Builtin returns the embedded DISA forms.
func Builtin() ([]FormDefinition, error) {
	return Parse(builtinForms)
}

// Validate checks field rules, then uniqueness of form types and serial
// numbers.
func Validate(defs []FormDefinition) error {
	if err := validate.Struct(File{Forms: defs}); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			fe := errs[0]
			return generic.Invalid(generic.CodeRequired, fe.Namespace(), "%s failed %q", fe.Namespace(), fe.Tag())
		}
		return err
	}

	forms := make(map[string]bool, len(defs))
	for _, def := range defs {
		if forms[def.FormType] {
			return generic.Invalid(generic.CodeDuplicateItem, "form_type", "form %s defined twice", def.FormType)
		}
		forms[def.FormType] = true

		slNos := make(map[int]bool, len(def.Items))
		for _, item := range def.Items {
			if slNos[item.SlNo] {
				return generic.Invalid(generic.CodeDuplicateItem, "sl_no", "form %s: serial number %d used twice", def.FormType, item.SlNo)
			}
			slNos[item.SlNo] = true
		}
	}
	return nil
}

// =============================================================================
// SEEDING
// =============================================================================

// SeedResult counts what Seed created.
type SeedResult struct {
	Items   int
	Columns int
	Skipped []generic.FormType
}

// Seed creates the items and columns of every definition whose form type
// has none yet. Each form is seeded in its own transaction.
func Seed(ctx context.Context, s generic.TxStore, defs []FormDefinition, logger *zap.Logger) (SeedResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := Validate(defs); err != nil {
		return SeedResult{}, err
	}

	var res SeedResult
	for _, def := range defs {
		formType := generic.FormType(def.FormType)
		var items, columns int
		err := s.WithTx(ctx, func(tx generic.Store) error {
			var err error
			items, err = seedItems(ctx, tx, formType, def.Items)
			if err != nil {
				return err
			}
			columns, err = seedColumns(ctx, tx, formType, def.Columns)
			return err
		})
		if err != nil {
			return res, generic.Persist("seed "+def.FormType, err)
		}

		if items == 0 && columns == 0 {
			res.Skipped = append(res.Skipped, formType)
			continue
		}
		res.Items += items
		res.Columns += columns
		logger.Info("form seeded",
			zap.String("form_type", def.FormType),
			zap.Int("items", items),
			zap.Int("columns", columns))
	}
	return res, nil
}

func seedItems(ctx context.Context, tx generic.Store, formType generic.FormType, defs []ItemDefinition) (int, error) {
	if len(defs) == 0 {
		return 0, nil
	}
	existing, err := tx.ListItems(ctx, formType, true)
	if err != nil || len(existing) > 0 {
		return 0, err
	}
	for _, d := range defs {
		_, err := tx.SaveItem(ctx, generic.ChecklistItem{
			FormType:    formType,
			SlNo:        d.SlNo,
			Description: d.Description,
			CheckMethod: d.CheckMethod,
			ReadingUnit: d.ReadingUnit,
		})
		if err != nil {
			return 0, err
		}
	}
	return len(defs), nil
}

func seedColumns(ctx context.Context, tx generic.Store, formType generic.FormType, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	existing, err := tx.ListColumns(ctx, formType, true)
	if err != nil || len(existing) > 0 {
		return 0, err
	}
	for _, name := range names {
		if _, err := tx.InsertColumn(ctx, formType, name); err != nil {
			return 0, err
		}
	}
	return len(names), nil
}
