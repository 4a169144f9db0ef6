/*
inventory.go - Inventory Store component

PURPOSE:
  Owns per-day stock batches and their quantity accounting. Decrements and
  increments are expressed as relative adjustments executed inside the
  caller's transaction, so two acquisitions racing for the same batch
  cannot both win the last units.

BATCH COST COUPLING ("modal"):
  A batch's cost is the money paid up front for the whole day's release.
  Creating a batch with a cost, editing that cost, or deleting the batch
  moves real money, so those paths post ledger entries and adjust the
  balance in the same transaction:
    - create with cost > 0: EXPENSE, balance must cover it
    - cost increase:        EXPENSE for the delta, balance must cover it
    - cost decrease:        INCOME refund for the delta
    - delete with cost > 0: INCOME refund for the full cost

SEE ALSO:
  - ledger.go:      PostEntry used by the cost paths
  - acquisition.go: Decrement at allocation time
  - deposit.go:     the second decrement at deposit time
*/
package consign

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Inventory is the Inventory Store component.
type Inventory struct {
	store  TxStore
	ledger *Ledger
	clock  Clock
}

func NewInventory(store TxStore, ledger *Ledger, clock Clock) *Inventory {
	return &Inventory{store: store, ledger: ledger, clock: clock}
}

// CreateBatch releases one day's stock of an item. A positive cost is
// paid out of the cash balance immediately: the batch creation and the
// EXPENSE entry commit together.
func (inv *Inventory) CreateBatch(ctx context.Context, itemID int, price, cost decimal.Decimal, qty int, date time.Time) (StockBatch, error) {
	if !price.IsPositive() {
		return StockBatch{}, Validationf("batch price must be positive, got %s", price)
	}
	if cost.IsNegative() {
		return StockBatch{}, Validationf("batch cost must not be negative, got %s", cost)
	}
	if qty <= 0 {
		return StockBatch{}, Validationf("batch quantity must be positive, got %d", qty)
	}
	item, err := inv.store.GetItem(ctx, itemID)
	if err != nil {
		return StockBatch{}, err
	}
	if item == nil {
		return StockBatch{}, &NotFoundError{Entity: "item", IDs: []int{itemID}}
	}

	if cost.IsPositive() {
		bal, err := inv.store.GetBalance(ctx)
		if err != nil {
			return StockBatch{}, err
		}
		if bal.Balance.LessThan(cost) {
			return StockBatch{}, Validationf("insufficient balance for batch cost: have %s, need %s", bal.Balance, cost)
		}
	}

	var created StockBatch
	err = inv.store.WithTx(ctx, func(s Store) error {
		var err error
		created, err = s.CreateBatch(ctx, StockBatch{
			ItemID:    itemID,
			Price:     price,
			Cost:      cost,
			Remaining: qty,
			Date:      date,
			CreatedAt: inv.clock.Now(),
		})
		if err != nil {
			return err
		}
		if cost.IsPositive() {
			_, err = inv.ledger.PostEntry(ctx, s, LedgerEntry{
				Title:  "Modal: " + item.Name,
				Kind:   EntryExpense,
				Amount: cost,
			})
		}
		return err
	})
	if err != nil {
		return StockBatch{}, err
	}
	return created, nil
}

// UpdateBatch rewrites a batch's price and cost. Cost changes settle
// against the balance: an increase posts an EXPENSE for the delta (and
// must be covered), a decrease posts an INCOME refund. Quantities are not
// editable here - they move only through acquisitions, deposits, and
// reconciliation.
func (inv *Inventory) UpdateBatch(ctx context.Context, id int, price, cost decimal.Decimal) (StockBatch, error) {
	if !price.IsPositive() {
		return StockBatch{}, Validationf("batch price must be positive, got %s", price)
	}
	if cost.IsNegative() {
		return StockBatch{}, Validationf("batch cost must not be negative, got %s", cost)
	}
	batch, err := inv.store.GetBatch(ctx, id)
	if err != nil {
		return StockBatch{}, err
	}
	if batch == nil {
		return StockBatch{}, &NotFoundError{Entity: "stock batch", IDs: []int{id}}
	}
	item, err := inv.store.GetItem(ctx, batch.ItemID)
	if err != nil {
		return StockBatch{}, err
	}

	diff := cost.Sub(batch.Cost)
	if diff.IsPositive() {
		bal, err := inv.store.GetBalance(ctx)
		if err != nil {
			return StockBatch{}, err
		}
		if bal.Balance.LessThan(diff) {
			return StockBatch{}, Validationf("insufficient balance for cost increase: have %s, need %s", bal.Balance, diff)
		}
	}

	err = inv.store.WithTx(ctx, func(s Store) error {
		if err := s.UpdateBatchPricing(ctx, id, price, cost); err != nil {
			return err
		}
		switch {
		case diff.IsPositive():
			_, err := inv.ledger.PostEntry(ctx, s, LedgerEntry{
				Title:  "Modal: " + item.Name,
				Kind:   EntryExpense,
				Amount: diff,
			})
			return err
		case diff.IsNegative():
			_, err := inv.ledger.PostEntry(ctx, s, LedgerEntry{
				Title:  "Refund modal: " + item.Name,
				Kind:   EntryIncome,
				Amount: diff.Neg(),
			})
			return err
		}
		return nil
	})
	if err != nil {
		return StockBatch{}, err
	}
	updated, err := inv.store.GetBatch(ctx, id)
	if err != nil {
		return StockBatch{}, err
	}
	return *updated, nil
}

// DeleteBatch removes a batch that has no allocations. If the batch
// carried a recorded cost, the full cost comes back as an INCOME refund
// in the same transaction.
func (inv *Inventory) DeleteBatch(ctx context.Context, id int) error {
	batch, err := inv.store.GetBatch(ctx, id)
	if err != nil {
		return err
	}
	if batch == nil {
		return &NotFoundError{Entity: "stock batch", IDs: []int{id}}
	}
	allocated, err := inv.store.BatchHasLineItems(ctx, id)
	if err != nil {
		return err
	}
	if allocated {
		return Validationf("stock batch %d has allocations and cannot be deleted", id)
	}
	item, err := inv.store.GetItem(ctx, batch.ItemID)
	if err != nil {
		return err
	}

	refund := batch.Cost
	return inv.store.WithTx(ctx, func(s Store) error {
		if err := s.DeleteBatch(ctx, id); err != nil {
			return err
		}
		if refund.IsPositive() {
			_, err := inv.ledger.PostEntry(ctx, s, LedgerEntry{
				Title:  "Refund modal: " + item.Name,
				Kind:   EntryIncome,
				Amount: refund,
			})
			return err
		}
		return nil
	})
}

// Decrement reduces a batch's remaining quantity inside the caller's
// transaction. The store-level guard is authoritative: even if a caller
// pre-checked, a concurrent allocation loses here, not after commit.
func (inv *Inventory) Decrement(ctx context.Context, s Store, batchID, qty int) error {
	if qty <= 0 {
		return Validationf("decrement quantity must be positive, got %d", qty)
	}
	return s.AdjustBatchRemaining(ctx, batchID, -qty)
}

// Increment returns stock to a batch (compensating operation used by the
// reconciliation edit/delete paths).
func (inv *Inventory) Increment(ctx context.Context, s Store, batchID, qty int) error {
	if qty <= 0 {
		return Validationf("increment quantity must be positive, got %d", qty)
	}
	return s.AdjustBatchRemaining(ctx, batchID, qty)
}

// HasAllocations reports whether any line item references the batch.
func (inv *Inventory) HasAllocations(ctx context.Context, batchID int) (bool, error) {
	return inv.store.BatchHasLineItems(ctx, batchID)
}

// FindToday returns the projection for batches released today. Reads are
// not linearized with concurrent writes and may be stale.
func (inv *Inventory) FindToday(ctx context.Context) ([]BatchSummary, error) {
	batches, err := inv.store.ListBatchesByDate(ctx, inv.clock.Now())
	if err != nil {
		return nil, err
	}
	return inv.summarize(ctx, batches)
}

// FindHistory returns the projection for batches released in [from, to].
func (inv *Inventory) FindHistory(ctx context.Context, from, to time.Time) ([]BatchSummary, error) {
	if to.Before(from) {
		return nil, Validationf("invalid range: end before start")
	}
	batches, err := inv.store.ListBatchesInRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return inv.summarize(ctx, batches)
}

func (inv *Inventory) summarize(ctx context.Context, batches []StockBatch) ([]BatchSummary, error) {
	summaries := make([]BatchSummary, 0, len(batches))
	for _, b := range batches {
		item, err := inv.store.GetItem(ctx, b.ItemID)
		if err != nil {
			return nil, err
		}
		name := ""
		if item != nil {
			name = item.Name
		}
		taken, depositors, err := inv.store.BatchAllocationStats(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, BatchSummary{
			Batch:      b,
			ItemName:   name,
			Taken:      taken,
			Depositors: depositors,
		})
	}
	return summaries, nil
}
