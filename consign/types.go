/*
Package consign provides the consignment and cash-ledger engine.

PURPOSE:
  This package contains the transactional core of the system: daily stock
  batches ("stok harian") handed out to sellers ("ambil barang"), later
  reconciled as deposits ("setor") that post income into a running cash
  balance ("saldo"). Everything that mutates stock quantities, deposit
  status, and the ledger together lives here.

KEY CONCEPTS IN THIS FILE (types.go):
  - StockBatch:  One day's release of an item at a snapshot price/cost
  - Acquisition: A seller's basket taken on one occasion
  - LineItem:    One batch allocation inside an Acquisition, deposited
                 independently
  - LedgerEntry: An immutable financial event (INCOME/EXPENSE)
  - CashBalance: Singleton running balance; always the signed sum of
                 ledger entries

DESIGN PRINCIPLES:
  1. Money is decimal.Decimal - never floats
  2. Prices are snapshotted at allocation time; later batch edits do not
     rewrite existing line items
  3. Derived state (Acquisition status) is persisted but always recomputed
     transactionally, never trusted from a stale read

SEE ALSO:
  - store.go:   Persistence collaborator interfaces
  - ledger.go:  Ledger Store component
  - deposit.go: The critical atomic deposit workflow
*/
package consign

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENUMS
// =============================================================================

// DepositStatus is the derived aggregate state of an Acquisition.
// It is recomputed after every deposit, never set directly by clients.
type DepositStatus string

const (
	StatusNoneDeposited      DepositStatus = "NONE_DEPOSITED"
	StatusPartiallyDeposited DepositStatus = "PARTIALLY_DEPOSITED"
	StatusFullyDeposited     DepositStatus = "FULLY_DEPOSITED"
)

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	EntryIncome  EntryKind = "INCOME"
	EntryExpense EntryKind = "EXPENSE"
)

// =============================================================================
// CATALOG & IDENTITY
// =============================================================================

// Item is a product type ("barang"). Batches reference it; receipts
// report its name.
type Item struct {
	ID        int
	Name      string
	CreatedAt time.Time
}

// Seller takes stock on consignment and deposits the proceeds.
type Seller struct {
	ID        int
	Name      string
	CreatedAt time.Time
}

// Admin receives deposits. Authentication is out of scope; only
// id-existence matters to the engine.
type Admin struct {
	ID        int
	Name      string
	CreatedAt time.Time
}

// =============================================================================
// INVENTORY
// =============================================================================

// StockBatch is one day's stocked quantity of one item ("stok harian").
//
// INVARIANTS:
//   - Remaining >= 0 at all times; any operation that would drive it
//     negative fails with InsufficientStockError and changes nothing
//   - Remaining decreases via acquisitions/deposits and increases only
//     via compensating reconciliation edits
//   - Deletable only while no LineItem references it
type StockBatch struct {
	ID        int
	ItemID    int
	Price     decimal.Decimal // unit sale price
	Cost      decimal.Decimal // total acquisition cost for the batch ("modal"), may be zero
	Remaining int
	Date      time.Time // release date (day granularity)
	CreatedAt time.Time
}

// =============================================================================
// ACQUISITION & LINE ITEMS
// =============================================================================

// Acquisition is a seller's basket taken on one occasion ("ambil barang").
// Status is derived from its line items.
type Acquisition struct {
	ID        int
	SellerID  int
	AdminID   int // recipient admin the seller will deposit to
	Note      string
	Status    DepositStatus
	CreatedAt time.Time

	// Lines is populated by reads that return the full basket. Writes go
	// through the store line-item operations, never through this slice.
	Lines []LineItem
}

// LineItem is one allocation of a StockBatch to a seller within an
// Acquisition ("detail setor").
//
// INVARIANTS:
//   - Total == Qty x UnitPrice, where UnitPrice was snapshotted when the
//     batch was read at allocation time
//   - DepositedAt transitions nil -> non-nil exactly once and never back
//   - Qty/Total are mutable only while pending and only for the most
//     recently created line of its (seller, batch) pair
type LineItem struct {
	ID            int
	AcquisitionID int
	BatchID       int
	Qty           int
	UnitPrice     decimal.Decimal // price snapshot at allocation time
	Total         decimal.Decimal
	DepositedAt   *time.Time // nil = pending
	CreatedAt     time.Time
}

// Deposited reports whether the line has been settled.
func (li LineItem) Deposited() bool { return li.DepositedAt != nil }

// =============================================================================
// LEDGER
// =============================================================================

// LedgerEntry is an immutable financial event ("detail keuangan").
// Entries are never updated after creation. A manual entry (no line-item
// reference) is deletable only while it is the single most recent entry.
type LedgerEntry struct {
	ID         int
	LineItemID *int // nil for manual entries
	Title      string
	Kind       EntryKind
	Amount     decimal.Decimal // always > 0; sign comes from Kind
	Note       string
	CreatedAt  time.Time
}

// Manual reports whether the entry was recorded by hand rather than
// generated from a deposit line.
func (e LedgerEntry) Manual() bool { return e.LineItemID == nil }

// Signed returns the entry amount with its ledger sign applied:
// INCOME positive, EXPENSE negative.
func (e LedgerEntry) Signed() decimal.Decimal {
	if e.Kind == EntryExpense {
		return e.Amount.Neg()
	}
	return e.Amount
}

// CashBalance is the singleton running balance ("saldo").
// Invariant: Balance == sum of signed entry amounts in creation order,
// starting from zero at system initialization.
type CashBalance struct {
	Balance   decimal.Decimal
	UpdatedAt time.Time
}

// =============================================================================
// PROJECTIONS
// =============================================================================

// BatchSummary is the read-only aggregation returned by FindToday and
// FindHistory. Taken and Depositors are derived, not stored.
type BatchSummary struct {
	Batch      StockBatch
	ItemName   string
	Taken      int // sum of line-item quantities against the batch
	Depositors int // distinct sellers with at least one deposited line
}
