// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/audit-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.TxStore. WithTx is simulated with a snapshot and
// a restore on error.
type Memory struct {
	mu sync.RWMutex
	state
	now func() time.Time
}

type state struct {
	items        map[generic.ItemID]generic.ChecklistItem
	observations map[generic.ObservationID]generic.DailyObservation
	obsByKey     map[generic.ObservationKey]generic.ObservationID
	ncrs         map[generic.NCRID]generic.NonConformanceReport
	ncrByKey     map[generic.ObservationKey]generic.NCRID
	columns      map[generic.ColumnID]generic.CustomColumnDefinition
	values       map[valueKey]generic.CustomColumnValue

	nextItem, nextObs, nextNCR, nextColumn int64
}

type valueKey struct {
	RecordID generic.RecordID
	ColumnID generic.ColumnID
}

var _ generic.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		state: state{
			items:        make(map[generic.ItemID]generic.ChecklistItem),
			observations: make(map[generic.ObservationID]generic.DailyObservation),
			obsByKey:     make(map[generic.ObservationKey]generic.ObservationID),
			ncrs:         make(map[generic.NCRID]generic.NonConformanceReport),
			ncrByKey:     make(map[generic.ObservationKey]generic.NCRID),
			columns:      make(map[generic.ColumnID]generic.CustomColumnDefinition),
			values:       make(map[valueKey]generic.CustomColumnValue),
		},
		now: time.Now,
	}
}

// Reset drops every row. IDs keep counting up.
func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fresh := NewMemory().state
	fresh.nextItem, fresh.nextObs, fresh.nextNCR, fresh.nextColumn = m.nextItem, m.nextObs, m.nextNCR, m.nextColumn
	m.state = fresh
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&txView{m: m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (s state) clone() state {
	c := s
	c.items = make(map[generic.ItemID]generic.ChecklistItem, len(s.items))
	for k, v := range s.items {
		c.items[k] = v
	}
	c.observations = make(map[generic.ObservationID]generic.DailyObservation, len(s.observations))
	for k, v := range s.observations {
		c.observations[k] = v
	}
	c.obsByKey = make(map[generic.ObservationKey]generic.ObservationID, len(s.obsByKey))
	for k, v := range s.obsByKey {
		c.obsByKey[k] = v
	}
	c.ncrs = make(map[generic.NCRID]generic.NonConformanceReport, len(s.ncrs))
	for k, v := range s.ncrs {
		c.ncrs[k] = v
	}
	c.ncrByKey = make(map[generic.ObservationKey]generic.NCRID, len(s.ncrByKey))
	for k, v := range s.ncrByKey {
		c.ncrByKey[k] = v
	}
	c.columns = make(map[generic.ColumnID]generic.CustomColumnDefinition, len(s.columns))
	for k, v := range s.columns {
		c.columns[k] = v
	}
	c.values = make(map[valueKey]generic.CustomColumnValue, len(s.values))
	for k, v := range s.values {
		c.values[k] = v
	}
	return c
}

// txView runs against the parent's state while the parent lock is held.
type txView struct {
	m *Memory
}

// write and read guard the public methods; txView skips them because
// WithTx already holds the write lock.
func (m *Memory) write(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

func (m *Memory) read(fn func()) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn()
}

// =============================================================================
// ITEMS
// =============================================================================

func (m *Memory) SaveItem(ctx context.Context, item generic.ChecklistItem) (out generic.ChecklistItem, err error) {
	m.write(func() { out, err = m.saveItem(item) })
	return
}

func (m *Memory) saveItem(item generic.ChecklistItem) (generic.ChecklistItem, error) {
	if item.ID == 0 {
		m.nextItem++
		item.ID = generic.ItemID(m.nextItem)
	} else if _, ok := m.items[item.ID]; !ok {
		return generic.ChecklistItem{}, generic.ErrItemNotFound
	}
	m.items[item.ID] = item
	return item, nil
}

func (m *Memory) GetItem(ctx context.Context, id generic.ItemID) (out generic.ChecklistItem, err error) {
	m.read(func() { out, err = m.getItem(id) })
	return
}

func (m *Memory) getItem(id generic.ItemID) (generic.ChecklistItem, error) {
	item, ok := m.items[id]
	if !ok {
		return generic.ChecklistItem{}, generic.ErrItemNotFound
	}
	return item, nil
}

func (m *Memory) ListItems(ctx context.Context, formType generic.FormType, includeDeleted bool) (out []generic.ChecklistItem, err error) {
	m.read(func() { out = m.listItems(formType, includeDeleted) })
	return
}

func (m *Memory) listItems(formType generic.FormType, includeDeleted bool) []generic.ChecklistItem {
	var out []generic.ChecklistItem
	for _, item := range m.items {
		if item.FormType != formType || (item.IsDeleted && !includeDeleted) {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SlNo != out[j].SlNo {
			return out[i].SlNo < out[j].SlNo
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) SoftDeleteItem(ctx context.Context, id generic.ItemID) (err error) {
	m.write(func() { err = m.softDeleteItem(id) })
	return
}

func (m *Memory) softDeleteItem(id generic.ItemID) error {
	item, ok := m.items[id]
	if !ok {
		return generic.ErrItemNotFound
	}
	item.IsDeleted = true
	m.items[id] = item
	return nil
}

// =============================================================================
// OBSERVATIONS
// =============================================================================

func (m *Memory) FindObservation(ctx context.Context, key generic.ObservationKey) (out *generic.DailyObservation, err error) {
	m.read(func() { out = m.findObservation(key) })
	return
}

func (m *Memory) findObservation(key generic.ObservationKey) *generic.DailyObservation {
	id, ok := m.obsByKey[key]
	if !ok {
		return nil
	}
	obs := m.observations[id]
	return &obs
}

func (m *Memory) InsertObservation(ctx context.Context, obs generic.DailyObservation) (out generic.DailyObservation, err error) {
	m.write(func() { out, err = m.insertObservation(obs) })
	return
}

func (m *Memory) insertObservation(obs generic.DailyObservation) (generic.DailyObservation, error) {
	if _, ok := m.obsByKey[obs.Key()]; ok {
		return generic.DailyObservation{}, generic.ErrDuplicateKey
	}
	m.nextObs++
	obs.ID = generic.ObservationID(m.nextObs)
	if obs.LastUpdated.IsZero() {
		obs.LastUpdated = m.now().UTC()
	}
	m.observations[obs.ID] = obs
	m.obsByKey[obs.Key()] = obs.ID
	return obs, nil
}

func (m *Memory) UpdateObservation(ctx context.Context, obs generic.DailyObservation) (out generic.DailyObservation, err error) {
	m.write(func() { out, err = m.updateObservation(obs) })
	return
}

func (m *Memory) updateObservation(obs generic.DailyObservation) (generic.DailyObservation, error) {
	existing, ok := m.observations[obs.ID]
	if !ok {
		return generic.DailyObservation{}, generic.ErrObservationNotFound
	}
	existing.Status = obs.Status
	existing.Reading = obs.Reading
	existing.SignOff = obs.SignOff
	existing.SubmissionID = obs.SubmissionID
	existing.LastUpdated = obs.LastUpdated
	if existing.LastUpdated.IsZero() {
		existing.LastUpdated = m.now().UTC()
	}
	m.observations[obs.ID] = existing
	return existing, nil
}

func (m *Memory) ListObservations(ctx context.Context, lineID generic.LineID, period generic.Period, items []generic.ItemID) (out []generic.DailyObservation, err error) {
	m.read(func() { out = m.listObservations(lineID, period, items) })
	return
}

func (m *Memory) listObservations(lineID generic.LineID, period generic.Period, items []generic.ItemID) []generic.DailyObservation {
	filter := itemFilter(items)
	var out []generic.DailyObservation
	for _, obs := range m.observations {
		if obs.LineID != lineID || !period.Contains(obs.LogDate) || !filter(obs.ItemID) {
			continue
		}
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LogDate.Equal(out[j].LogDate) {
			return out[i].LogDate.Before(out[j].LogDate)
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}

// =============================================================================
// NON-CONFORMANCE REPORTS
// =============================================================================

func (m *Memory) FindNCR(ctx context.Context, key generic.ObservationKey) (out *generic.NonConformanceReport, err error) {
	m.read(func() { out = m.findNCR(key) })
	return
}

func (m *Memory) findNCR(key generic.ObservationKey) *generic.NonConformanceReport {
	id, ok := m.ncrByKey[key]
	if !ok {
		return nil
	}
	ncr := m.ncrs[id]
	return &ncr
}

func (m *Memory) GetNCR(ctx context.Context, id generic.NCRID) (out generic.NonConformanceReport, err error) {
	m.read(func() { out, err = m.getNCR(id) })
	return
}

func (m *Memory) getNCR(id generic.NCRID) (generic.NonConformanceReport, error) {
	ncr, ok := m.ncrs[id]
	if !ok {
		return generic.NonConformanceReport{}, generic.ErrNCRNotFound
	}
	return ncr, nil
}

func (m *Memory) InsertNCR(ctx context.Context, ncr generic.NonConformanceReport) (out generic.NonConformanceReport, err error) {
	m.write(func() { out, err = m.insertNCR(ncr) })
	return
}

func (m *Memory) insertNCR(ncr generic.NonConformanceReport) (generic.NonConformanceReport, error) {
	if _, ok := m.ncrByKey[ncr.Key()]; ok {
		return generic.NonConformanceReport{}, generic.ErrDuplicateKey
	}
	m.nextNCR++
	ncr.ID = generic.NCRID(m.nextNCR)
	if ncr.Status == "" {
		ncr.Status = generic.NCRPending
	}
	now := m.now().UTC()
	ncr.CreatedAt, ncr.UpdatedAt = now, now
	m.ncrs[ncr.ID] = ncr
	m.ncrByKey[ncr.Key()] = ncr.ID
	return ncr, nil
}

func (m *Memory) UpdateNCR(ctx context.Context, ncr generic.NonConformanceReport) (out generic.NonConformanceReport, err error) {
	m.write(func() { out, err = m.updateNCR(ncr) })
	return
}

func (m *Memory) updateNCR(ncr generic.NonConformanceReport) (generic.NonConformanceReport, error) {
	existing, ok := m.ncrs[ncr.ID]
	if !ok {
		return generic.NonConformanceReport{}, generic.ErrNCRNotFound
	}
	// Key fields are immutable.
	ncr.ItemID, ncr.LineID, ncr.ReportDate = existing.ItemID, existing.LineID, existing.ReportDate
	ncr.CreatedAt = existing.CreatedAt
	ncr.UpdatedAt = m.now().UTC()
	m.ncrs[ncr.ID] = ncr
	return ncr, nil
}

func (m *Memory) ListNCRs(ctx context.Context, lineID generic.LineID, period generic.Period, items []generic.ItemID) (out []generic.NonConformanceReport, err error) {
	m.read(func() { out = m.listNCRs(lineID, period, items) })
	return
}

func (m *Memory) listNCRs(lineID generic.LineID, period generic.Period, items []generic.ItemID) []generic.NonConformanceReport {
	filter := itemFilter(items)
	var out []generic.NonConformanceReport
	for _, ncr := range m.ncrs {
		if ncr.LineID != lineID || !period.Contains(ncr.ReportDate) || !filter(ncr.ItemID) {
			continue
		}
		out = append(out, ncr)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReportDate.Equal(out[j].ReportDate) {
			return out[i].ReportDate.Before(out[j].ReportDate)
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}

// =============================================================================
// CUSTOM COLUMNS
// =============================================================================

func (m *Memory) InsertColumn(ctx context.Context, formType generic.FormType, name string) (out generic.CustomColumnDefinition, err error) {
	m.write(func() { out = m.insertColumn(formType, name) })
	return
}

func (m *Memory) insertColumn(formType generic.FormType, name string) generic.CustomColumnDefinition {
	maxOrder := 0
	for _, c := range m.columns {
		if c.FormType == formType && c.DisplayOrder > maxOrder {
			maxOrder = c.DisplayOrder
		}
	}
	m.nextColumn++
	col := generic.CustomColumnDefinition{
		ID:           generic.ColumnID(m.nextColumn),
		FormType:     formType,
		Name:         name,
		DisplayOrder: maxOrder + 1,
	}
	m.columns[col.ID] = col
	return col
}

func (m *Memory) GetColumn(ctx context.Context, id generic.ColumnID) (out generic.CustomColumnDefinition, err error) {
	m.read(func() { out, err = m.getColumn(id) })
	return
}

func (m *Memory) getColumn(id generic.ColumnID) (generic.CustomColumnDefinition, error) {
	col, ok := m.columns[id]
	if !ok {
		return generic.CustomColumnDefinition{}, generic.ErrColumnNotFound
	}
	return col, nil
}

func (m *Memory) RenameColumn(ctx context.Context, id generic.ColumnID, name string) (out generic.CustomColumnDefinition, err error) {
	m.write(func() { out, err = m.renameColumn(id, name) })
	return
}

func (m *Memory) renameColumn(id generic.ColumnID, name string) (generic.CustomColumnDefinition, error) {
	col, ok := m.columns[id]
	if !ok {
		return generic.CustomColumnDefinition{}, generic.ErrColumnNotFound
	}
	col.Name = name
	m.columns[id] = col
	return col, nil
}

func (m *Memory) SoftDeleteColumn(ctx context.Context, id generic.ColumnID) (err error) {
	m.write(func() { err = m.softDeleteColumn(id) })
	return
}

func (m *Memory) softDeleteColumn(id generic.ColumnID) error {
	col, ok := m.columns[id]
	if !ok {
		return generic.ErrColumnNotFound
	}
	col.IsDeleted = true
	m.columns[id] = col
	return nil
}

func (m *Memory) ListColumns(ctx context.Context, formType generic.FormType, includeDeleted bool) (out []generic.CustomColumnDefinition, err error) {
	m.read(func() { out = m.listColumns(formType, includeDeleted) })
	return
}

func (m *Memory) listColumns(formType generic.FormType, includeDeleted bool) []generic.CustomColumnDefinition {
	var out []generic.CustomColumnDefinition
	for _, c := range m.columns {
		if c.FormType != formType || (c.IsDeleted && !includeDeleted) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// CUSTOM VALUES
// =============================================================================

func (m *Memory) UpsertValue(ctx context.Context, v generic.CustomColumnValue) (out generic.CustomColumnValue, err error) {
	m.write(func() { out, err = m.upsertValue(v) })
	return
}

func (m *Memory) upsertValue(v generic.CustomColumnValue) (generic.CustomColumnValue, error) {
	if _, ok := m.columns[v.ColumnID]; !ok {
		return generic.CustomColumnValue{}, generic.ErrColumnNotFound
	}
	v.UpdatedAt = m.now().UTC()
	m.values[valueKey{RecordID: v.RecordID, ColumnID: v.ColumnID}] = v
	return v, nil
}

func (m *Memory) ListValues(ctx context.Context, records []generic.RecordID) (out []generic.CustomColumnValue, err error) {
	m.read(func() { out = m.listValues(records) })
	return
}

func (m *Memory) listValues(records []generic.RecordID) []generic.CustomColumnValue {
	want := make(map[generic.RecordID]bool, len(records))
	for _, r := range records {
		want[r] = true
	}
	var out []generic.CustomColumnValue
	for k, v := range m.values {
		if want[k.RecordID] {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RecordID != out[j].RecordID {
			return out[i].RecordID < out[j].RecordID
		}
		return out[i].ColumnID < out[j].ColumnID
	})
	return out
}

func (m *Memory) DeleteRecordValues(ctx context.Context, record generic.RecordID) (n int, err error) {
	m.write(func() { n = m.deleteRecordValues(record) })
	return
}

func (m *Memory) deleteRecordValues(record generic.RecordID) int {
	n := 0
	for k := range m.values {
		if k.RecordID == record {
			delete(m.values, k)
			n++
		}
	}
	return n
}

// =============================================================================
// TRANSACTIONAL VIEW - Same operations, parent lock already held
// =============================================================================

func (tv *txView) SaveItem(_ context.Context, item generic.ChecklistItem) (generic.ChecklistItem, error) {
	return tv.m.saveItem(item)
}

func (tv *txView) GetItem(_ context.Context, id generic.ItemID) (generic.ChecklistItem, error) {
	return tv.m.getItem(id)
}

func (tv *txView) ListItems(_ context.Context, formType generic.FormType, includeDeleted bool) ([]generic.ChecklistItem, error) {
	return tv.m.listItems(formType, includeDeleted), nil
}

func (tv *txView) SoftDeleteItem(_ context.Context, id generic.ItemID) error {
	return tv.m.softDeleteItem(id)
}

func (tv *txView) FindObservation(_ context.Context, key generic.ObservationKey) (*generic.DailyObservation, error) {
	return tv.m.findObservation(key), nil
}

func (tv *txView) InsertObservation(_ context.Context, obs generic.DailyObservation) (generic.DailyObservation, error) {
	return tv.m.insertObservation(obs)
}

func (tv *txView) UpdateObservation(_ context.Context, obs generic.DailyObservation) (generic.DailyObservation, error) {
	return tv.m.updateObservation(obs)
}

func (tv *txView) ListObservations(_ context.Context, lineID generic.LineID, period generic.Period, items []generic.ItemID) ([]generic.DailyObservation, error) {
	return tv.m.listObservations(lineID, period, items), nil
}

func (tv *txView) FindNCR(_ context.Context, key generic.ObservationKey) (*generic.NonConformanceReport, error) {
	return tv.m.findNCR(key), nil
}

func (tv *txView) GetNCR(_ context.Context, id generic.NCRID) (generic.NonConformanceReport, error) {
	return tv.m.getNCR(id)
}

func (tv *txView) InsertNCR(_ context.Context, ncr generic.NonConformanceReport) (generic.NonConformanceReport, error) {
	return tv.m.insertNCR(ncr)
}

func (tv *txView) UpdateNCR(_ context.Context, ncr generic.NonConformanceReport) (generic.NonConformanceReport, error) {
	return tv.m.updateNCR(ncr)
}

func (tv *txView) ListNCRs(_ context.Context, lineID generic.LineID, period generic.Period, items []generic.ItemID) ([]generic.NonConformanceReport, error) {
	return tv.m.listNCRs(lineID, period, items), nil
}

func (tv *txView) InsertColumn(_ context.Context, formType generic.FormType, name string) (generic.CustomColumnDefinition, error) {
	return tv.m.insertColumn(formType, name), nil
}

func (tv *txView) GetColumn(_ context.Context, id generic.ColumnID) (generic.CustomColumnDefinition, error) {
	return tv.m.getColumn(id)
}

func (tv *txView) RenameColumn(_ context.Context, id generic.ColumnID, name string) (generic.CustomColumnDefinition, error) {
	return tv.m.renameColumn(id, name)
}

func (tv *txView) SoftDeleteColumn(_ context.Context, id generic.ColumnID) error {
	return tv.m.softDeleteColumn(id)
}

func (tv *txView) ListColumns(_ context.Context, formType generic.FormType, includeDeleted bool) ([]generic.CustomColumnDefinition, error) {
	return tv.m.listColumns(formType, includeDeleted), nil
}

func (tv *txView) UpsertValue(_ context.Context, v generic.CustomColumnValue) (generic.CustomColumnValue, error) {
	return tv.m.upsertValue(v)
}

func (tv *txView) ListValues(_ context.Context, records []generic.RecordID) ([]generic.CustomColumnValue, error) {
	return tv.m.listValues(records), nil
}

func (tv *txView) DeleteRecordValues(_ context.Context, record generic.RecordID) (int, error) {
	return tv.m.deleteRecordValues(record), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func itemFilter(items []generic.ItemID) func(generic.ItemID) bool {
	if len(items) == 0 {
		return func(generic.ItemID) bool { return true }
	}
	set := make(map[generic.ItemID]bool, len(items))
	for _, id := range items {
		set[id] = true
	}
	return func(id generic.ItemID) bool { return set[id] }
}
