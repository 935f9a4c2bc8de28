package checklist

import (
	"context"
	"strings"

	"github.com/warp/audit-engine/generic"
)

// =============================================================================
// CATALOG - Checklist item master list
// =============================================================================

// Catalog maintains the fixed list of checkpoints per form type. Items are
// never hard-deleted: retiring one hides it from new days while its
// observations stay readable.
type Catalog struct {
	store generic.ItemStore
}

func NewCatalog(store generic.ItemStore) *Catalog {
	return &Catalog{store: store}
}

// Add creates a new checkpoint.
func (c *Catalog) Add(ctx context.Context, item generic.ChecklistItem) (generic.ChecklistItem, error) {
	item.ID = 0
	item.IsDeleted = false
	if err := validateItem(item); err != nil {
		return generic.ChecklistItem{}, err
	}
	saved, err := c.store.SaveItem(ctx, item)
	return saved, generic.Persist("save item", err)
}

// Update edits the wording of a checkpoint. The form type is part of the
// item's identity and cannot change.
func (c *Catalog) Update(ctx context.Context, item generic.ChecklistItem) (generic.ChecklistItem, error) {
	if err := validateItem(item); err != nil {
		return generic.ChecklistItem{}, err
	}
	existing, err := c.store.GetItem(ctx, item.ID)
	if err != nil {
		return generic.ChecklistItem{}, generic.Persist("get item", err)
	}
	if existing.FormType != item.FormType {
		return generic.ChecklistItem{}, generic.Invalid(generic.CodeFormMismatch, "formType",
			"item %d belongs to %s", item.ID, existing.FormType)
	}
	item.IsDeleted = existing.IsDeleted
	saved, err := c.store.SaveItem(ctx, item)
	return saved, generic.Persist("save item", err)
}

// Retire soft-deletes a checkpoint.
func (c *Catalog) Retire(ctx context.Context, id generic.ItemID) error {
	return generic.Persist("retire item", c.store.SoftDeleteItem(ctx, id))
}

func (c *Catalog) Get(ctx context.Context, id generic.ItemID) (generic.ChecklistItem, error) {
	item, err := c.store.GetItem(ctx, id)
	return item, generic.Persist("get item", err)
}

func (c *Catalog) List(ctx context.Context, formType generic.FormType, includeRetired bool) ([]generic.ChecklistItem, error) {
	items, err := c.store.ListItems(ctx, formType, includeRetired)
	return items, generic.Persist("list items", err)
}

func validateItem(item generic.ChecklistItem) error {
	if strings.TrimSpace(string(item.FormType)) == "" {
		return generic.Invalid(generic.CodeRequired, "formType", "form type is required")
	}
	if strings.TrimSpace(item.Description) == "" {
		return generic.Invalid(generic.CodeRequired, "description", "description is required")
	}
	if item.SlNo <= 0 {
		return generic.Invalid(generic.CodeRequired, "slNo", "serial number must be positive")
	}
	return nil
}
