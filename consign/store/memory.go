// Package store provides the in-memory Store implementation used by
// tests and local development. Transactions are simulated with a
// snapshot taken before fn runs and restored on error.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lapak/consignment-engine/consign"
)

// Memory implements consign.TxStore in process memory.
type Memory struct {
	mu sync.RWMutex

	items        map[int]consign.Item
	sellers      map[int]consign.Seller
	admins       map[int]consign.Admin
	batches      map[int]consign.StockBatch
	acquisitions map[int]consign.Acquisition // Lines kept empty; see lines map
	lines        map[int]consign.LineItem
	entries      []consign.LedgerEntry
	balance      *consign.CashBalance

	nextItem, nextSeller, nextAdmin, nextBatch, nextAcq, nextLine, nextEntry int
}

func NewMemory() *Memory {
	return &Memory{
		items:        make(map[int]consign.Item),
		sellers:      make(map[int]consign.Seller),
		admins:       make(map[int]consign.Admin),
		batches:      make(map[int]consign.StockBatch),
		acquisitions: make(map[int]consign.Acquisition),
		lines:        make(map[int]consign.LineItem),
	}
}

// =============================================================================
// TRANSACTIONS - snapshot + restore
// =============================================================================

// WithTx serializes on the store mutex, snapshots state, and restores it
// when fn fails. The view handed to fn writes straight into the parent.
func (m *Memory) WithTx(ctx context.Context, fn func(consign.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	items        map[int]consign.Item
	sellers      map[int]consign.Seller
	admins       map[int]consign.Admin
	batches      map[int]consign.StockBatch
	acquisitions map[int]consign.Acquisition
	lines        map[int]consign.LineItem
	entries      []consign.LedgerEntry
	balance      *consign.CashBalance

	nextItem, nextSeller, nextAdmin, nextBatch, nextAcq, nextLine, nextEntry int
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		items:        make(map[int]consign.Item, len(m.items)),
		sellers:      make(map[int]consign.Seller, len(m.sellers)),
		admins:       make(map[int]consign.Admin, len(m.admins)),
		batches:      make(map[int]consign.StockBatch, len(m.batches)),
		acquisitions: make(map[int]consign.Acquisition, len(m.acquisitions)),
		lines:        make(map[int]consign.LineItem, len(m.lines)),
		entries:      append([]consign.LedgerEntry{}, m.entries...),
		nextItem:     m.nextItem, nextSeller: m.nextSeller, nextAdmin: m.nextAdmin,
		nextBatch: m.nextBatch, nextAcq: m.nextAcq, nextLine: m.nextLine, nextEntry: m.nextEntry,
	}
	for k, v := range m.items {
		s.items[k] = v
	}
	for k, v := range m.sellers {
		s.sellers[k] = v
	}
	for k, v := range m.admins {
		s.admins[k] = v
	}
	for k, v := range m.batches {
		s.batches[k] = v
	}
	for k, v := range m.acquisitions {
		s.acquisitions[k] = v
	}
	for k, v := range m.lines {
		s.lines[k] = v
	}
	if m.balance != nil {
		b := *m.balance
		s.balance = &b
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.items, m.sellers, m.admins = s.items, s.sellers, s.admins
	m.batches, m.acquisitions, m.lines = s.batches, s.acquisitions, s.lines
	m.entries, m.balance = s.entries, s.balance
	m.nextItem, m.nextSeller, m.nextAdmin = s.nextItem, s.nextSeller, s.nextAdmin
	m.nextBatch, m.nextAcq, m.nextLine, m.nextEntry = s.nextBatch, s.nextAcq, s.nextLine, s.nextEntry
}

// txView delegates to the parent's unlocked internals; the parent mutex
// is already held for the duration of WithTx.
type txView struct {
	m *Memory
}

// =============================================================================
// ITEM CATALOG
// =============================================================================

func (m *Memory) CreateItem(ctx context.Context, name string) (consign.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createItemLocked(name)
}

func (m *Memory) createItemLocked(name string) (consign.Item, error) {
	m.nextItem++
	it := consign.Item{ID: m.nextItem, Name: name, CreatedAt: time.Now().UTC()}
	m.items[it.ID] = it
	return it, nil
}

func (m *Memory) GetItem(ctx context.Context, id int) (*consign.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getItemLocked(id)
}

func (m *Memory) getItemLocked(id int) (*consign.Item, error) {
	if it, ok := m.items[id]; ok {
		return &it, nil
	}
	return nil, nil
}

func (m *Memory) ListItems(ctx context.Context) ([]consign.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]consign.Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *txView) CreateItem(ctx context.Context, name string) (consign.Item, error) {
	return v.m.createItemLocked(name)
}
func (v *txView) GetItem(ctx context.Context, id int) (*consign.Item, error) {
	return v.m.getItemLocked(id)
}
func (v *txView) ListItems(ctx context.Context) ([]consign.Item, error) {
	out := make([]consign.Item, 0, len(v.m.items))
	for _, it := range v.m.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// IDENTITY
// =============================================================================

func (m *Memory) CreateSeller(ctx context.Context, name string) (consign.Seller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createSellerLocked(name)
}

func (m *Memory) createSellerLocked(name string) (consign.Seller, error) {
	m.nextSeller++
	s := consign.Seller{ID: m.nextSeller, Name: name, CreatedAt: time.Now().UTC()}
	m.sellers[s.ID] = s
	return s, nil
}

func (m *Memory) CreateAdmin(ctx context.Context, name string) (consign.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createAdminLocked(name)
}

func (m *Memory) createAdminLocked(name string) (consign.Admin, error) {
	m.nextAdmin++
	a := consign.Admin{ID: m.nextAdmin, Name: name, CreatedAt: time.Now().UTC()}
	m.admins[a.ID] = a
	return a, nil
}

func (m *Memory) ListSellers(ctx context.Context) ([]consign.Seller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]consign.Seller, 0, len(m.sellers))
	for _, s := range m.sellers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListAdmins(ctx context.Context) ([]consign.Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]consign.Admin, 0, len(m.admins))
	for _, a := range m.admins {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SellerExists(ctx context.Context, id int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sellers[id]
	return ok, nil
}

func (m *Memory) AdminExists(ctx context.Context, id int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.admins[id]
	return ok, nil
}

func (v *txView) CreateSeller(ctx context.Context, name string) (consign.Seller, error) {
	return v.m.createSellerLocked(name)
}
func (v *txView) CreateAdmin(ctx context.Context, name string) (consign.Admin, error) {
	return v.m.createAdminLocked(name)
}
func (v *txView) ListSellers(ctx context.Context) ([]consign.Seller, error) {
	out := make([]consign.Seller, 0, len(v.m.sellers))
	for _, s := range v.m.sellers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
func (v *txView) ListAdmins(ctx context.Context) ([]consign.Admin, error) {
	out := make([]consign.Admin, 0, len(v.m.admins))
	for _, a := range v.m.admins {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
func (v *txView) SellerExists(ctx context.Context, id int) (bool, error) {
	_, ok := v.m.sellers[id]
	return ok, nil
}
func (v *txView) AdminExists(ctx context.Context, id int) (bool, error) {
	_, ok := v.m.admins[id]
	return ok, nil
}

// =============================================================================
// STOCK BATCHES
// =============================================================================

func (m *Memory) CreateBatch(ctx context.Context, b consign.StockBatch) (consign.StockBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createBatchLocked(b)
}

func (m *Memory) createBatchLocked(b consign.StockBatch) (consign.StockBatch, error) {
	m.nextBatch++
	b.ID = m.nextBatch
	m.batches[b.ID] = b
	return b, nil
}

func (m *Memory) GetBatch(ctx context.Context, id int) (*consign.StockBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBatchLocked(id)
}

func (m *Memory) getBatchLocked(id int) (*consign.StockBatch, error) {
	if b, ok := m.batches[id]; ok {
		return &b, nil
	}
	return nil, nil
}

func (m *Memory) UpdateBatchPricing(ctx context.Context, id int, price, cost decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateBatchPricingLocked(id, price, cost)
}

func (m *Memory) updateBatchPricingLocked(id int, price, cost decimal.Decimal) error {
	b, ok := m.batches[id]
	if !ok {
		return &consign.NotFoundError{Entity: "stock batch", IDs: []int{id}}
	}
	b.Price, b.Cost = price, cost
	m.batches[id] = b
	return nil
}

func (m *Memory) AdjustBatchRemaining(ctx context.Context, id int, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustBatchRemainingLocked(id, delta)
}

func (m *Memory) adjustBatchRemainingLocked(id, delta int) error {
	b, ok := m.batches[id]
	if !ok {
		return &consign.NotFoundError{Entity: "stock batch", IDs: []int{id}}
	}
	if b.Remaining+delta < 0 {
		return &consign.InsufficientStockError{BatchID: id, Remaining: b.Remaining, Requested: -delta}
	}
	b.Remaining += delta
	m.batches[id] = b
	return nil
}

func (m *Memory) DeleteBatch(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteBatchLocked(id)
}

func (m *Memory) deleteBatchLocked(id int) error {
	if _, ok := m.batches[id]; !ok {
		return &consign.NotFoundError{Entity: "stock batch", IDs: []int{id}}
	}
	delete(m.batches, id)
	return nil
}

func (m *Memory) ListBatchesByDate(ctx context.Context, day time.Time) ([]consign.StockBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listBatchesByDateLocked(day)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (m *Memory) listBatchesByDateLocked(day time.Time) ([]consign.StockBatch, error) {
	var out []consign.StockBatch
	for _, b := range m.batches {
		if sameDay(b.Date, day) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListBatchesInRange(ctx context.Context, from, to time.Time) ([]consign.StockBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listBatchesInRangeLocked(from, to)
}

func (m *Memory) listBatchesInRangeLocked(from, to time.Time) ([]consign.StockBatch, error) {
	var out []consign.StockBatch
	for _, b := range m.batches {
		d := b.Date.UTC()
		if !d.Before(from.UTC()) && !d.After(to.UTC()) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) BatchHasLineItems(ctx context.Context, id int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.batchHasLineItemsLocked(id)
}

func (m *Memory) batchHasLineItemsLocked(id int) (bool, error) {
	for _, li := range m.lines {
		if li.BatchID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) BatchAllocationStats(ctx context.Context, id int) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.batchAllocationStatsLocked(id)
}

func (m *Memory) batchAllocationStatsLocked(id int) (int, int, error) {
	taken := 0
	depositors := make(map[int]bool)
	for _, li := range m.lines {
		if li.BatchID != id {
			continue
		}
		taken += li.Qty
		if li.Deposited() {
			if acq, ok := m.acquisitions[li.AcquisitionID]; ok {
				depositors[acq.SellerID] = true
			}
		}
	}
	return taken, len(depositors), nil
}

func (v *txView) CreateBatch(ctx context.Context, b consign.StockBatch) (consign.StockBatch, error) {
	return v.m.createBatchLocked(b)
}
func (v *txView) GetBatch(ctx context.Context, id int) (*consign.StockBatch, error) {
	return v.m.getBatchLocked(id)
}
func (v *txView) UpdateBatchPricing(ctx context.Context, id int, price, cost decimal.Decimal) error {
	return v.m.updateBatchPricingLocked(id, price, cost)
}
func (v *txView) AdjustBatchRemaining(ctx context.Context, id int, delta int) error {
	return v.m.adjustBatchRemainingLocked(id, delta)
}
func (v *txView) DeleteBatch(ctx context.Context, id int) error {
	return v.m.deleteBatchLocked(id)
}
func (v *txView) ListBatchesByDate(ctx context.Context, day time.Time) ([]consign.StockBatch, error) {
	return v.m.listBatchesByDateLocked(day)
}
func (v *txView) ListBatchesInRange(ctx context.Context, from, to time.Time) ([]consign.StockBatch, error) {
	return v.m.listBatchesInRangeLocked(from, to)
}
func (v *txView) BatchHasLineItems(ctx context.Context, id int) (bool, error) {
	return v.m.batchHasLineItemsLocked(id)
}
func (v *txView) BatchAllocationStats(ctx context.Context, id int) (int, int, error) {
	return v.m.batchAllocationStatsLocked(id)
}

// =============================================================================
// ACQUISITIONS
// =============================================================================

func (m *Memory) CreateAcquisition(ctx context.Context, a consign.Acquisition, lines []consign.LineItem) (consign.Acquisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createAcquisitionLocked(a, lines)
}

func (m *Memory) createAcquisitionLocked(a consign.Acquisition, lines []consign.LineItem) (consign.Acquisition, error) {
	m.nextAcq++
	a.ID = m.nextAcq
	a.Lines = nil
	m.acquisitions[a.ID] = a

	created := a
	for _, li := range lines {
		m.nextLine++
		li.ID = m.nextLine
		li.AcquisitionID = a.ID
		m.lines[li.ID] = li
		created.Lines = append(created.Lines, li)
	}
	return created, nil
}

func (m *Memory) GetAcquisition(ctx context.Context, id int) (*consign.Acquisition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAcquisitionLocked(id)
}

func (m *Memory) getAcquisitionLocked(id int) (*consign.Acquisition, error) {
	a, ok := m.acquisitions[id]
	if !ok {
		return nil, nil
	}
	a.Lines, _ = m.listLinesByAcquisitionLocked(id)
	return &a, nil
}

func (m *Memory) ListAcquisitionsBySeller(ctx context.Context, sellerID int) ([]consign.Acquisition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []consign.Acquisition
	for id, a := range m.acquisitions {
		if a.SellerID != sellerID {
			continue
		}
		a.Lines, _ = m.listLinesByAcquisitionLocked(id)
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListPendingAcquisitions(ctx context.Context) ([]consign.Acquisition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPendingAcquisitionsLocked()
}

func (m *Memory) listPendingAcquisitionsLocked() ([]consign.Acquisition, error) {
	var out []consign.Acquisition
	for id, a := range m.acquisitions {
		if a.Status == consign.StatusFullyDeposited {
			continue
		}
		all, _ := m.listLinesByAcquisitionLocked(id)
		var pending []consign.LineItem
		for _, li := range all {
			if !li.Deposited() {
				pending = append(pending, li)
			}
		}
		a.Lines = pending
		out = append(out, a)
	}
	// Oldest first: FIFO reconciliation order.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SetAcquisitionStatus(ctx context.Context, id int, status consign.DepositStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setAcquisitionStatusLocked(id, status)
}

func (m *Memory) setAcquisitionStatusLocked(id int, status consign.DepositStatus) error {
	a, ok := m.acquisitions[id]
	if !ok {
		return &consign.NotFoundError{Entity: "acquisition", IDs: []int{id}}
	}
	a.Status = status
	m.acquisitions[id] = a
	return nil
}

func (m *Memory) DeleteAcquisition(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteAcquisitionLocked(id)
}

func (m *Memory) deleteAcquisitionLocked(id int) error {
	if _, ok := m.acquisitions[id]; !ok {
		return &consign.NotFoundError{Entity: "acquisition", IDs: []int{id}}
	}
	delete(m.acquisitions, id)
	return nil
}

func (v *txView) CreateAcquisition(ctx context.Context, a consign.Acquisition, lines []consign.LineItem) (consign.Acquisition, error) {
	return v.m.createAcquisitionLocked(a, lines)
}
func (v *txView) GetAcquisition(ctx context.Context, id int) (*consign.Acquisition, error) {
	return v.m.getAcquisitionLocked(id)
}
func (v *txView) ListAcquisitionsBySeller(ctx context.Context, sellerID int) ([]consign.Acquisition, error) {
	var out []consign.Acquisition
	for id, a := range v.m.acquisitions {
		if a.SellerID != sellerID {
			continue
		}
		a.Lines, _ = v.m.listLinesByAcquisitionLocked(id)
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
func (v *txView) ListPendingAcquisitions(ctx context.Context) ([]consign.Acquisition, error) {
	return v.m.listPendingAcquisitionsLocked()
}
func (v *txView) SetAcquisitionStatus(ctx context.Context, id int, status consign.DepositStatus) error {
	return v.m.setAcquisitionStatusLocked(id, status)
}
func (v *txView) DeleteAcquisition(ctx context.Context, id int) error {
	return v.m.deleteAcquisitionLocked(id)
}

// =============================================================================
// LINE ITEMS
// =============================================================================

func (m *Memory) GetLineItem(ctx context.Context, id int) (*consign.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLineItemLocked(id)
}

func (m *Memory) getLineItemLocked(id int) (*consign.LineItem, error) {
	if li, ok := m.lines[id]; ok {
		return &li, nil
	}
	return nil, nil
}

func (m *Memory) GetLineItems(ctx context.Context, ids []int) ([]consign.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLineItemsLocked(ids)
}

func (m *Memory) getLineItemsLocked(ids []int) ([]consign.LineItem, error) {
	var out []consign.LineItem
	for _, id := range ids {
		if li, ok := m.lines[id]; ok {
			out = append(out, li)
		}
	}
	return out, nil
}

func (m *Memory) ListLineItemsByAcquisition(ctx context.Context, acquisitionID int) ([]consign.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLinesByAcquisitionLocked(acquisitionID)
}

func (m *Memory) listLinesByAcquisitionLocked(acquisitionID int) ([]consign.LineItem, error) {
	var out []consign.LineItem
	for _, li := range m.lines {
		if li.AcquisitionID == acquisitionID {
			out = append(out, li)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) LatestLineItemID(ctx context.Context, sellerID, batchID int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestLineItemIDLocked(sellerID, batchID)
}

func (m *Memory) latestLineItemIDLocked(sellerID, batchID int) (int, error) {
	latest := 0
	for _, li := range m.lines {
		if li.BatchID != batchID {
			continue
		}
		acq, ok := m.acquisitions[li.AcquisitionID]
		if !ok || acq.SellerID != sellerID {
			continue
		}
		if li.ID > latest {
			latest = li.ID
		}
	}
	return latest, nil
}

func (m *Memory) MarkLineItemDeposited(ctx context.Context, id int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markLineItemDepositedLocked(id, at)
}

func (m *Memory) markLineItemDepositedLocked(id int, at time.Time) error {
	li, ok := m.lines[id]
	if !ok {
		return &consign.NotFoundError{Entity: "line item", IDs: []int{id}}
	}
	if li.Deposited() {
		return &consign.ConflictError{Msg: "line items already deposited", IDs: []int{id}}
	}
	t := at.UTC()
	li.DepositedAt = &t
	m.lines[id] = li
	return nil
}

func (m *Memory) UpdateLineItemQty(ctx context.Context, id int, qty int, total decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLineItemQtyLocked(id, qty, total)
}

func (m *Memory) updateLineItemQtyLocked(id, qty int, total decimal.Decimal) error {
	li, ok := m.lines[id]
	if !ok {
		return &consign.NotFoundError{Entity: "line item", IDs: []int{id}}
	}
	li.Qty = qty
	li.Total = total
	m.lines[id] = li
	return nil
}

func (m *Memory) DeleteLineItem(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLineItemLocked(id)
}

func (m *Memory) deleteLineItemLocked(id int) error {
	if _, ok := m.lines[id]; !ok {
		return &consign.NotFoundError{Entity: "line item", IDs: []int{id}}
	}
	delete(m.lines, id)
	return nil
}

func (v *txView) GetLineItem(ctx context.Context, id int) (*consign.LineItem, error) {
	return v.m.getLineItemLocked(id)
}
func (v *txView) GetLineItems(ctx context.Context, ids []int) ([]consign.LineItem, error) {
	return v.m.getLineItemsLocked(ids)
}
func (v *txView) ListLineItemsByAcquisition(ctx context.Context, acquisitionID int) ([]consign.LineItem, error) {
	return v.m.listLinesByAcquisitionLocked(acquisitionID)
}
func (v *txView) LatestLineItemID(ctx context.Context, sellerID, batchID int) (int, error) {
	return v.m.latestLineItemIDLocked(sellerID, batchID)
}
func (v *txView) MarkLineItemDeposited(ctx context.Context, id int, at time.Time) error {
	return v.m.markLineItemDepositedLocked(id, at)
}
func (v *txView) UpdateLineItemQty(ctx context.Context, id int, qty int, total decimal.Decimal) error {
	return v.m.updateLineItemQtyLocked(id, qty, total)
}
func (v *txView) DeleteLineItem(ctx context.Context, id int) error {
	return v.m.deleteLineItemLocked(id)
}

// =============================================================================
// LEDGER
// =============================================================================

func (m *Memory) AppendEntry(ctx context.Context, e consign.LedgerEntry) (consign.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEntryLocked(e)
}

func (m *Memory) appendEntryLocked(e consign.LedgerEntry) (consign.LedgerEntry, error) {
	m.nextEntry++
	e.ID = m.nextEntry
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *Memory) GetEntry(ctx context.Context, id int) (*consign.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEntryLocked(id)
}

func (m *Memory) getEntryLocked(id int) (*consign.LedgerEntry, error) {
	for _, e := range m.entries {
		if e.ID == id {
			entry := e
			return &entry, nil
		}
	}
	return nil, nil
}

func (m *Memory) LatestEntry(ctx context.Context) (*consign.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestEntryLocked()
}

func (m *Memory) latestEntryLocked() (*consign.LedgerEntry, error) {
	if len(m.entries) == 0 {
		return nil, nil
	}
	e := m.entries[len(m.entries)-1]
	return &e, nil
}

func (m *Memory) ListEntries(ctx context.Context, page, pageSize int) ([]consign.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEntriesLocked(page, pageSize)
}

func (m *Memory) listEntriesLocked(page, pageSize int) ([]consign.LedgerEntry, error) {
	// Newest first.
	n := len(m.entries)
	start := (page - 1) * pageSize
	if start >= n {
		return nil, nil
	}
	out := make([]consign.LedgerEntry, 0, pageSize)
	for i := n - 1 - start; i >= 0 && len(out) < pageSize; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *Memory) ListEntriesInRange(ctx context.Context, from, to time.Time) ([]consign.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEntriesInRangeLocked(from, to)
}

func (m *Memory) listEntriesInRangeLocked(from, to time.Time) ([]consign.LedgerEntry, error) {
	var out []consign.LedgerEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if !e.CreatedAt.Before(from) && !e.CreatedAt.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) DeleteEntry(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteEntryLocked(id)
}

func (m *Memory) deleteEntryLocked(id int) error {
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return &consign.NotFoundError{Entity: "ledger entry", IDs: []int{id}}
}

func (v *txView) AppendEntry(ctx context.Context, e consign.LedgerEntry) (consign.LedgerEntry, error) {
	return v.m.appendEntryLocked(e)
}
func (v *txView) GetEntry(ctx context.Context, id int) (*consign.LedgerEntry, error) {
	return v.m.getEntryLocked(id)
}
func (v *txView) LatestEntry(ctx context.Context) (*consign.LedgerEntry, error) {
	return v.m.latestEntryLocked()
}
func (v *txView) ListEntries(ctx context.Context, page, pageSize int) ([]consign.LedgerEntry, error) {
	return v.m.listEntriesLocked(page, pageSize)
}
func (v *txView) ListEntriesInRange(ctx context.Context, from, to time.Time) ([]consign.LedgerEntry, error) {
	return v.m.listEntriesInRangeLocked(from, to)
}
func (v *txView) DeleteEntry(ctx context.Context, id int) error {
	return v.m.deleteEntryLocked(id)
}

// =============================================================================
// CASH BALANCE
// =============================================================================

func (m *Memory) GetBalance(ctx context.Context) (consign.CashBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getBalanceLocked()
}

func (m *Memory) getBalanceLocked() (consign.CashBalance, error) {
	if m.balance == nil {
		m.balance = &consign.CashBalance{Balance: decimal.Zero, UpdatedAt: time.Now().UTC()}
	}
	return *m.balance, nil
}

func (m *Memory) AddToBalance(ctx context.Context, delta decimal.Decimal) (consign.CashBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addToBalanceLocked(delta)
}

func (m *Memory) addToBalanceLocked(delta decimal.Decimal) (consign.CashBalance, error) {
	if m.balance == nil {
		m.balance = &consign.CashBalance{Balance: decimal.Zero}
	}
	m.balance.Balance = m.balance.Balance.Add(delta)
	m.balance.UpdatedAt = time.Now().UTC()
	return *m.balance, nil
}

func (v *txView) GetBalance(ctx context.Context) (consign.CashBalance, error) {
	return v.m.getBalanceLocked()
}
func (v *txView) AddToBalance(ctx context.Context, delta decimal.Decimal) (consign.CashBalance, error) {
	return v.m.addToBalanceLocked(delta)
}
