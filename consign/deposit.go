/*
deposit.go - Deposit Workflow ("setor")

PURPOSE:
  The critical path of the whole engine. A seller returns proceeds for
  previously acquired lines; each selected line is stamped deposited, the
  batch is decremented, an INCOME entry is appended, and the parent
  acquisition status is recomputed - all in one transaction, with a single
  balance adjustment for the accumulated total at the end.

ATOMICITY:
  The whole id set succeeds or none of it does. One bad id anywhere
  aborts the entire transaction; stock, line statuses, acquisition status,
  and the balance stay exactly as they were.

INPUT SHAPES:
  Callers may submit either structured {lineItemId, qty} items or the
  legacy bare id list (which implies the full quantity of each line).
  NewDepositCommand normalizes both to one canonical command before any
  validation; mixing shapes in one call is rejected.
*/
package consign

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// COMMAND NORMALIZATION
// =============================================================================

// DepositItem is the structured request shape.
type DepositItem struct {
	LineItemID int
	Qty        int
}

// DepositCommand is the canonical internal shape both request forms
// converge on.
type DepositCommand struct {
	// items in request order; Qty 0 means "full line quantity" (legacy).
	items   []DepositItem
	AdminID int // optional recipient admin, 0 when unset
}

// NewDepositCommand normalizes the two accepted request shapes.
// Exactly one of legacyIDs / items must be provided.
func NewDepositCommand(legacyIDs []int, items []DepositItem, adminID int) (DepositCommand, error) {
	if len(legacyIDs) > 0 && len(items) > 0 {
		return DepositCommand{}, Validationf("mixed deposit payload: submit either line item ids or structured items, not both")
	}
	if len(legacyIDs) == 0 && len(items) == 0 {
		return DepositCommand{}, Validationf("deposit requires at least one line item")
	}

	cmd := DepositCommand{AdminID: adminID}
	seen := make(map[int]bool)
	add := func(it DepositItem) error {
		if it.LineItemID <= 0 {
			return Validationf("invalid line item id %d", it.LineItemID)
		}
		if seen[it.LineItemID] {
			return Validationf("duplicate line item id %d in deposit", it.LineItemID)
		}
		seen[it.LineItemID] = true
		cmd.items = append(cmd.items, it)
		return nil
	}

	for _, id := range legacyIDs {
		if err := add(DepositItem{LineItemID: id}); err != nil {
			return DepositCommand{}, err
		}
	}
	for _, it := range items {
		if it.Qty <= 0 {
			return DepositCommand{}, Validationf("item quantity must be positive, got %d for line item %d", it.Qty, it.LineItemID)
		}
		if err := add(it); err != nil {
			return DepositCommand{}, err
		}
	}
	return cmd, nil
}

// LineItemIDs returns the normalized id list in request order.
func (c DepositCommand) LineItemIDs() []int {
	ids := make([]int, len(c.items))
	for i, it := range c.items {
		ids[i] = it.LineItemID
	}
	return ids
}

// =============================================================================
// RECEIPT
// =============================================================================

// ReceiptLine is one settled line in a deposit receipt.
type ReceiptLine struct {
	LineItemID int
	ItemName   string
	Qty        int
	Total      decimal.Decimal
}

// DepositReceipt is the success payload of Process.
type DepositReceipt struct {
	Reference string // generated receipt number
	Total     decimal.Decimal
	Balance   decimal.Decimal
	Lines     []ReceiptLine
}

// =============================================================================
// WORKFLOW
// =============================================================================

// Deposits is the Deposit Workflow component.
type Deposits struct {
	store     TxStore
	inventory *Inventory
	ledger    *Ledger
	clock     Clock
}

func NewDeposits(store TxStore, inventory *Inventory, ledger *Ledger, clock Clock) *Deposits {
	return &Deposits{store: store, inventory: inventory, ledger: ledger, clock: clock}
}

// Process settles the selected line items atomically.
//
// Pre-transaction checks fast-fail on missing ids, already-deposited
// lines, and quantity mismatches; the same conditions are re-enforced by
// the row operations inside the transaction, which stay authoritative.
func (d *Deposits) Process(ctx context.Context, cmd DepositCommand) (DepositReceipt, error) {
	ids := cmd.LineItemIDs()
	if len(ids) == 0 {
		return DepositReceipt{}, Validationf("deposit requires at least one line item")
	}
	if cmd.AdminID != 0 {
		ok, err := d.store.AdminExists(ctx, cmd.AdminID)
		if err != nil {
			return DepositReceipt{}, err
		}
		if !ok {
			return DepositReceipt{}, &NotFoundError{Entity: "admin", IDs: []int{cmd.AdminID}}
		}
	}

	lines, err := d.store.GetLineItems(ctx, ids)
	if err != nil {
		return DepositReceipt{}, err
	}
	if len(lines) != len(ids) {
		found := make(map[int]bool, len(lines))
		for _, li := range lines {
			found[li.ID] = true
		}
		var missing []int
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return DepositReceipt{}, &NotFoundError{Entity: "line item", IDs: missing}
	}

	byID := make(map[int]LineItem, len(lines))
	var alreadyDeposited []int
	for _, li := range lines {
		byID[li.ID] = li
		if li.Deposited() {
			alreadyDeposited = append(alreadyDeposited, li.ID)
		}
	}
	if len(alreadyDeposited) > 0 {
		return DepositReceipt{}, &ConflictError{Msg: "line items already deposited", IDs: alreadyDeposited}
	}
	// Structured items carry a quantity for forward compatibility, but a
	// deposit always settles the whole line: the quantity must match.
	for _, it := range cmd.items {
		if it.Qty != 0 && it.Qty != byID[it.LineItemID].Qty {
			return DepositReceipt{}, Validationf("line item %d has quantity %d, cannot deposit %d", it.LineItemID, byID[it.LineItemID].Qty, it.Qty)
		}
	}

	// Make sure the balance singleton exists before the mutating
	// transaction relies on relative adjustments.
	if _, err := d.store.GetBalance(ctx); err != nil {
		return DepositReceipt{}, err
	}

	now := d.clock.Now()
	receipt := DepositReceipt{Reference: newReceiptReference()}
	err = d.store.WithTx(ctx, func(s Store) error {
		total := decimal.Zero
		touched := make(map[int]bool) // acquisitions needing recompute
		for _, id := range ids {
			li, err := s.GetLineItem(ctx, id)
			if err != nil {
				return err
			}
			if li == nil {
				return &NotFoundError{Entity: "line item", IDs: []int{id}}
			}
			if li.Deposited() {
				return &ConflictError{Msg: "line items already deposited", IDs: []int{id}}
			}

			if err := s.MarkLineItemDeposited(ctx, li.ID, now); err != nil {
				return err
			}
			// Preserved source behavior: the batch was already decremented
			// at acquisition time, and the deposit decrements it AGAIN to
			// account for confirmed consumption. Looks like double
			// counting; do not "fix" without product clarification.
			if err := d.inventory.Decrement(ctx, s, li.BatchID, li.Qty); err != nil {
				return err
			}

			batch, err := s.GetBatch(ctx, li.BatchID)
			if err != nil {
				return err
			}
			itemName := ""
			if batch != nil {
				if item, err := s.GetItem(ctx, batch.ItemID); err != nil {
					return err
				} else if item != nil {
					itemName = item.Name
				}
			}

			lineID := li.ID
			if _, err := d.ledger.Append(ctx, s, LedgerEntry{
				LineItemID: &lineID,
				Title:      fmt.Sprintf("Setoran: %s x%d", itemName, li.Qty),
				Kind:       EntryIncome,
				Amount:     li.Total,
				Note:       "receipt " + receipt.Reference,
			}); err != nil {
				return err
			}

			total = total.Add(li.Total)
			touched[li.AcquisitionID] = true
			receipt.Lines = append(receipt.Lines, ReceiptLine{
				LineItemID: li.ID,
				ItemName:   itemName,
				Qty:        li.Qty,
				Total:      li.Total,
			})
		}

		for acqID := range touched {
			if err := recomputeStatus(ctx, s, acqID); err != nil {
				return err
			}
		}

		bal, err := s.AddToBalance(ctx, total)
		if err != nil {
			return err
		}
		receipt.Total = total
		receipt.Balance = bal.Balance
		return nil
	})
	if err != nil {
		return DepositReceipt{}, err
	}
	return receipt, nil
}

// recomputeStatus re-reads every line of the acquisition inside the
// current transaction and persists the derived status. The stored status
// is a cache; this is the only writer.
func recomputeStatus(ctx context.Context, s Store, acquisitionID int) error {
	lines, err := s.ListLineItemsByAcquisition(ctx, acquisitionID)
	if err != nil {
		return err
	}
	deposited := 0
	for _, li := range lines {
		if li.Deposited() {
			deposited++
		}
	}
	status := StatusNoneDeposited
	switch {
	case len(lines) > 0 && deposited == len(lines):
		status = StatusFullyDeposited
	case deposited > 0:
		status = StatusPartiallyDeposited
	}
	return s.SetAcquisitionStatus(ctx, acquisitionID, status)
}

func newReceiptReference() string {
	return "STR-" + strings.ToUpper(uuid.NewString()[:8])
}
