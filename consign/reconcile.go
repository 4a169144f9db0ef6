/*
reconcile.go - Reconciliation Workflow

PURPOSE:
  Supports correcting the most recent pending allocation: editing its
  quantity or deleting it outright, with compensating stock adjustments.
  Only the LAST line item for a (seller, batch) pair may be touched, and
  only while pending - older lines are settled history.

CASCADE:
  Deleting the last remaining line of an acquisition deletes the
  acquisition too; an empty basket has no meaning.
*/
package consign

import (
	"context"

	"github.com/shopspring/decimal"
)

// Reconciliation is the Reconciliation Workflow component.
type Reconciliation struct {
	store     TxStore
	inventory *Inventory
	clock     Clock
}

func NewReconciliation(store TxStore, inventory *Inventory, clock Clock) *Reconciliation {
	return &Reconciliation{store: store, inventory: inventory, clock: clock}
}

// UpdateLineItemQty changes a pending line's quantity, moving the
// difference against the batch and recomputing the total from the
// snapshotted allocation price.
func (r *Reconciliation) UpdateLineItemQty(ctx context.Context, id, newQty int) (LineItem, error) {
	if newQty <= 0 {
		return LineItem{}, Validationf("quantity must be positive, got %d", newQty)
	}
	li, err := r.editable(ctx, id)
	if err != nil {
		return LineItem{}, err
	}

	diff := newQty - li.Qty
	if diff > 0 {
		batch, err := r.store.GetBatch(ctx, li.BatchID)
		if err != nil {
			return LineItem{}, err
		}
		if batch == nil {
			return LineItem{}, &NotFoundError{Entity: "stock batch", IDs: []int{li.BatchID}}
		}
		if batch.Remaining < diff {
			return LineItem{}, Validationf("batch %d has %d remaining, cannot add %d", batch.ID, batch.Remaining, diff)
		}
	}

	total := li.UnitPrice.Mul(decimal.NewFromInt(int64(newQty)))
	err = r.store.WithTx(ctx, func(s Store) error {
		switch {
		case diff > 0:
			if err := r.inventory.Decrement(ctx, s, li.BatchID, diff); err != nil {
				return err
			}
		case diff < 0:
			if err := r.inventory.Increment(ctx, s, li.BatchID, -diff); err != nil {
				return err
			}
		}
		return s.UpdateLineItemQty(ctx, id, newQty, total)
	})
	if err != nil {
		return LineItem{}, err
	}

	updated, err := r.store.GetLineItem(ctx, id)
	if err != nil {
		return LineItem{}, err
	}
	return *updated, nil
}

// DeleteLineItem removes a pending line, refunds its full quantity to the
// batch, and cascades to the parent acquisition when it becomes empty.
func (r *Reconciliation) DeleteLineItem(ctx context.Context, id int) error {
	li, err := r.editable(ctx, id)
	if err != nil {
		return err
	}

	return r.store.WithTx(ctx, func(s Store) error {
		if err := r.inventory.Increment(ctx, s, li.BatchID, li.Qty); err != nil {
			return err
		}
		if err := s.DeleteLineItem(ctx, id); err != nil {
			return err
		}
		rest, err := s.ListLineItemsByAcquisition(ctx, li.AcquisitionID)
		if err != nil {
			return err
		}
		if len(rest) == 0 {
			return s.DeleteAcquisition(ctx, li.AcquisitionID)
		}
		return nil
	})
}

// editable enforces the "last + pending" gate shared by both operations.
func (r *Reconciliation) editable(ctx context.Context, id int) (LineItem, error) {
	li, err := r.store.GetLineItem(ctx, id)
	if err != nil {
		return LineItem{}, err
	}
	if li == nil {
		return LineItem{}, &NotFoundError{Entity: "line item", IDs: []int{id}}
	}
	if li.Deposited() {
		return LineItem{}, Validationf("line item %d is already deposited and cannot be changed", id)
	}
	acq, err := r.store.GetAcquisition(ctx, li.AcquisitionID)
	if err != nil {
		return LineItem{}, err
	}
	if acq == nil {
		return LineItem{}, &NotFoundError{Entity: "acquisition", IDs: []int{li.AcquisitionID}}
	}
	latest, err := r.store.LatestLineItemID(ctx, acq.SellerID, li.BatchID)
	if err != nil {
		return LineItem{}, err
	}
	if latest != li.ID {
		return LineItem{}, Validationf("line item %d is not the most recent for this seller and batch", id)
	}
	return *li, nil
}
