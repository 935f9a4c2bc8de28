/*
store.go - Persistence interfaces for the audit engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  ItemStore:        Checklist item master list (soft delete)
  ObservationStore: Daily transaction ledger rows
  NCRStore:         Non-conformance reports
  ColumnStore:      Custom column definitions (schema registry)
  ValueStore:       Custom column values (attribute store)
  TxStore:          All of the above plus WithTx for atomic multi-row writes

UPSERT CONTRACT:
  Observation, NCR and value rows each have a natural key with a UNIQUE
  index behind it. Callers look up by key and update in place, or insert;
  a blind second insert for the same key fails with ErrDuplicateKey.
  UpsertValue performs the lookup-and-write in a single statement.

READ-YOUR-WRITE:
  Every write returns the canonical persisted row (with its ID and
  timestamps) so callers never reload to reconcile their own state.

ATOMIC BATCHES:
  WithTx ensures all-or-nothing semantics. When a day's 18 checkpoints are
  submitted, either all 18 rows are written or none are.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite (mattn or modernc driver) and PostgreSQL (pgx)
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level ledger using ObservationStore
  - store/sqlstore/sqlstore.go: Concrete implementation
*/
package generic

import "context"

// =============================================================================
// CHECKLIST ITEMS
// =============================================================================

type ItemStore interface {
	// SaveItem inserts an item when ID is zero, otherwise updates it.
	SaveItem(ctx context.Context, item ChecklistItem) (ChecklistItem, error)

	// GetItem returns ErrItemNotFound if the ID is unknown. Deleted items are returned.
	GetItem(ctx context.Context, id ItemID) (ChecklistItem, error)

	// ListItems returns items ordered by SlNo, then ID.
	ListItems(ctx context.Context, formType FormType, includeDeleted bool) ([]ChecklistItem, error)

	// SoftDeleteItem hides an item from new checklists. Its observations remain.
	SoftDeleteItem(ctx context.Context, id ItemID) error
}

// =============================================================================
// DAILY LEDGER
// =============================================================================

type ObservationStore interface {
	// FindObservation returns (nil, nil) when no row exists for the key.
	FindObservation(ctx context.Context, key ObservationKey) (*DailyObservation, error)

	// InsertObservation fails with ErrDuplicateKey if the key exists.
	InsertObservation(ctx context.Context, obs DailyObservation) (DailyObservation, error)

	// UpdateObservation overwrites status, reading, sign-off, submission and
	// refreshes LastUpdated. Returns ErrObservationNotFound for an unknown ID.
	UpdateObservation(ctx context.Context, obs DailyObservation) (DailyObservation, error)

	// ListObservations returns rows for a line in [period.Start, period.End],
	// optionally restricted to the given items.
	ListObservations(ctx context.Context, lineID LineID, period Period, items []ItemID) ([]DailyObservation, error)
}

// =============================================================================
// NON-CONFORMANCE REPORTS
// =============================================================================

type NCRStore interface {
	// FindNCR returns (nil, nil) when no report exists for the key.
	FindNCR(ctx context.Context, key ObservationKey) (*NonConformanceReport, error)

	GetNCR(ctx context.Context, id NCRID) (NonConformanceReport, error)

	// InsertNCR fails with ErrDuplicateKey if a report exists for the key.
	InsertNCR(ctx context.Context, ncr NonConformanceReport) (NonConformanceReport, error)

	// UpdateNCR overwrites the workflow fields and status.
	UpdateNCR(ctx context.Context, ncr NonConformanceReport) (NonConformanceReport, error)

	// ListNCRs returns reports for a line whose report date is in the period,
	// optionally restricted to the given items.
	ListNCRs(ctx context.Context, lineID LineID, period Period, items []ItemID) ([]NonConformanceReport, error)
}

// =============================================================================
// SCHEMA REGISTRY + ATTRIBUTE STORE
// =============================================================================

type ColumnStore interface {
	// InsertColumn appends a column with DisplayOrder = max(DisplayOrder)+1
	// for the form type, counting soft-deleted columns.
	InsertColumn(ctx context.Context, formType FormType, name string) (CustomColumnDefinition, error)

	GetColumn(ctx context.Context, id ColumnID) (CustomColumnDefinition, error)

	RenameColumn(ctx context.Context, id ColumnID, name string) (CustomColumnDefinition, error)

	// SoftDeleteColumn hides the column. Its values are never touched.
	SoftDeleteColumn(ctx context.Context, id ColumnID) error

	// ListColumns returns columns ordered by DisplayOrder.
	ListColumns(ctx context.Context, formType FormType, includeDeleted bool) ([]CustomColumnDefinition, error)
}

type ValueStore interface {
	// UpsertValue writes the value for (RecordID, ColumnID): update if the
	// row exists, else insert. Concurrent writers converge to last-writer-wins.
	UpsertValue(ctx context.Context, v CustomColumnValue) (CustomColumnValue, error)

	// ListValues fetches every value for the given records in one query.
	ListValues(ctx context.Context, records []RecordID) ([]CustomColumnValue, error)

	// DeleteRecordValues removes every value of a host record. Called when the
	// host record itself is deleted.
	DeleteRecordValues(ctx context.Context, record RecordID) (int, error)
}

// =============================================================================
// AGGREGATE + TRANSACTIONAL STORE
// =============================================================================

// Store is the full persistence surface of the engine.
type Store interface {
	ItemStore
	ObservationStore
	NCRStore
	ColumnStore
	ValueStore
}

// TxStore wraps Store with transaction support.
// Use this when you need atomic operations (e.g., submitting a day).
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
