/*
store.go - Persistence collaborator interfaces

PURPOSE:
  Defines the boundary between the engine and the database. Workflows open
  one transaction per logical operation via TxStore.WithTx and pass the
  transactional Store handle down to every call inside it - there is no
  global database client.

KEY INTERFACES:
  Store:   Row-level operations for every entity. Numeric mutations that
           race (batch remaining, cash balance) are expressed as relative
           adjustments so implementations can avoid read-modify-write.
  TxStore: Store plus the WithTx unit-of-work primitive.

TRANSACTION CONTRACT:
  Every cross-entity mutation in the workflows runs inside a single WithTx
  scope with at least read-committed + row-locking-on-write semantics.
  An error from fn rolls the whole unit back; nil commits. There is no
  application-level retry - conflicts surface to the caller.

IMPLEMENTATIONS:
  - consign/store: in-memory (tests/dev), snapshot + rollback
  - store/sqlite:  production, database/sql + SQLite

SEE ALSO:
  - consign/store/memory.go
  - store/sqlite/sqlite.go
*/
package consign

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the row-level persistence contract. Implementations must be
// usable both directly (auto-commit reads) and as the handle passed into
// a WithTx scope.
type Store interface {
	// --- item catalog ---

	CreateItem(ctx context.Context, name string) (Item, error)
	GetItem(ctx context.Context, id int) (*Item, error)
	ListItems(ctx context.Context) ([]Item, error)

	// --- identity (sellers / admins) ---

	CreateSeller(ctx context.Context, name string) (Seller, error)
	CreateAdmin(ctx context.Context, name string) (Admin, error)
	ListSellers(ctx context.Context) ([]Seller, error)
	ListAdmins(ctx context.Context) ([]Admin, error)
	SellerExists(ctx context.Context, id int) (bool, error)
	AdminExists(ctx context.Context, id int) (bool, error)

	// --- stock batches ---

	CreateBatch(ctx context.Context, b StockBatch) (StockBatch, error)
	GetBatch(ctx context.Context, id int) (*StockBatch, error)
	// UpdateBatchPricing rewrites price and cost. Quantities move only
	// through AdjustBatchRemaining.
	UpdateBatchPricing(ctx context.Context, id int, price, cost decimal.Decimal) error
	// AdjustBatchRemaining applies remaining += delta atomically and fails
	// with InsufficientStockError if the result would be negative.
	AdjustBatchRemaining(ctx context.Context, id int, delta int) error
	DeleteBatch(ctx context.Context, id int) error
	ListBatchesByDate(ctx context.Context, day time.Time) ([]StockBatch, error)
	ListBatchesInRange(ctx context.Context, from, to time.Time) ([]StockBatch, error)
	BatchHasLineItems(ctx context.Context, id int) (bool, error)
	// BatchAllocationStats derives the projection counters: total quantity
	// taken and distinct sellers with at least one deposited line.
	BatchAllocationStats(ctx context.Context, id int) (taken int, depositors int, err error)

	// --- acquisitions ---

	// CreateAcquisition persists the acquisition and its lines together.
	// Line UnitPrice/Total are taken as given (snapshotted by the caller).
	CreateAcquisition(ctx context.Context, a Acquisition, lines []LineItem) (Acquisition, error)
	GetAcquisition(ctx context.Context, id int) (*Acquisition, error)
	ListAcquisitionsBySeller(ctx context.Context, sellerID int) ([]Acquisition, error)
	// ListPendingAcquisitions returns acquisitions that still have pending
	// lines, oldest first, with Lines filtered to the pending ones.
	ListPendingAcquisitions(ctx context.Context) ([]Acquisition, error)
	SetAcquisitionStatus(ctx context.Context, id int, status DepositStatus) error
	DeleteAcquisition(ctx context.Context, id int) error

	// --- line items ---

	GetLineItem(ctx context.Context, id int) (*LineItem, error)
	// GetLineItems returns the lines whose ids were found; callers compare
	// lengths to detect missing ids.
	GetLineItems(ctx context.Context, ids []int) ([]LineItem, error)
	ListLineItemsByAcquisition(ctx context.Context, acquisitionID int) ([]LineItem, error)
	// LatestLineItemID returns the highest line-item id for the
	// (seller, batch) pair, or 0 when none exists.
	LatestLineItemID(ctx context.Context, sellerID, batchID int) (int, error)
	MarkLineItemDeposited(ctx context.Context, id int, at time.Time) error
	UpdateLineItemQty(ctx context.Context, id int, qty int, total decimal.Decimal) error
	DeleteLineItem(ctx context.Context, id int) error

	// --- ledger ---

	// AppendEntry persists an entry. Entries are append-only; the only
	// delete path is DeleteEntry under the Ledger Store's guard.
	AppendEntry(ctx context.Context, e LedgerEntry) (LedgerEntry, error)
	GetEntry(ctx context.Context, id int) (*LedgerEntry, error)
	// LatestEntry returns the most recently created entry, or nil when the
	// ledger is empty.
	LatestEntry(ctx context.Context) (*LedgerEntry, error)
	// ListEntries pages newest-first. Page is 1-based.
	ListEntries(ctx context.Context, page, pageSize int) ([]LedgerEntry, error)
	ListEntriesInRange(ctx context.Context, from, to time.Time) ([]LedgerEntry, error)
	DeleteEntry(ctx context.Context, id int) error

	// --- cash balance ---

	// GetBalance lazily initializes the singleton to zero on first access.
	GetBalance(ctx context.Context) (CashBalance, error)
	// AddToBalance applies balance += delta atomically (singleton upsert)
	// and returns the new balance.
	AddToBalance(ctx context.Context, delta decimal.Decimal) (CashBalance, error)
}

// TxStore wraps Store with the unit-of-work primitive.
type TxStore interface {
	Store

	// WithTx executes fn within one transaction. If fn returns an error the
	// transaction is rolled back and the error is returned unchanged.
	WithTx(ctx context.Context, fn func(Store) error) error
}
