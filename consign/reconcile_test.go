package consign_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lapak/consignment-engine/consign"
)

// =============================================================================
// QUANTITY EDITS
// =============================================================================

func TestReconciliation_UpdateQty_Increase(t *testing.T) {
	// GIVEN: A pending line of 3 against a batch with 7 remaining
	// WHEN: Raising the quantity to 5
	// THEN: The batch drops to 5 and the total is recomputed at the
	//       snapshotted price

	f := newFixture(t)
	ctx := context.Background()

	acq := f.acquire(t, 3)

	li, err := f.engine.Reconciliation.UpdateLineItemQty(ctx, acq.Lines[0].ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, li.Qty)
	assert.True(t, li.Total.Equal(d(5000)))
	assert.Equal(t, 5, f.remaining(t))
}

func TestReconciliation_UpdateQty_Decrease_ReturnsStock(t *testing.T) {
	// GIVEN: A pending line of 3 (remaining 7)
	// WHEN: Lowering the quantity to 1
	// THEN: Two units return to the batch (remaining 9)

	f := newFixture(t)
	ctx := context.Background()

	acq := f.acquire(t, 3)

	li, err := f.engine.Reconciliation.UpdateLineItemQty(ctx, acq.Lines[0].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, li.Qty)
	assert.True(t, li.Total.Equal(d(1000)))
	assert.Equal(t, 9, f.remaining(t))
}

func TestReconciliation_UpdateQty_IncreaseBeyondStock(t *testing.T) {
	// GIVEN: A pending line of 3 with only 7 remaining
	// WHEN: Raising the quantity to 11 (diff 8 > 7)
	// THEN: Rejected; line and batch unchanged

	f := newFixture(t)
	ctx := context.Background()

	acq := f.acquire(t, 3)

	_, err := f.engine.Reconciliation.UpdateLineItemQty(ctx, acq.Lines[0].ID, 11)
	assert.True(t, consign.IsValidation(err))
	assert.Equal(t, 7, f.remaining(t))

	got, err := f.engine.Acquisitions.ByID(ctx, acq.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Lines[0].Qty)
}

func TestReconciliation_UpdateQty_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acq := f.acquire(t, 3)

	_, err := f.engine.Reconciliation.UpdateLineItemQty(ctx, acq.Lines[0].ID, 0)
	assert.True(t, consign.IsValidation(err), "zero qty")

	_, err = f.engine.Reconciliation.UpdateLineItemQty(ctx, 999, 2)
	assert.True(t, consign.IsNotFound(err), "missing line")
}

// =============================================================================
// LAST + PENDING GATE
// =============================================================================

func TestReconciliation_DepositedLine_NotEditable(t *testing.T) {
	// GIVEN: A deposited line
	// WHEN: Editing or deleting it
	// THEN: Both are rejected

	f := newFixture(t)
	ctx := context.Background()

	acq := f.acquire(t, 3)
	cmd, err := consign.NewDepositCommand([]int{acq.Lines[0].ID}, nil, 0)
	require.NoError(t, err)
	_, err = f.engine.Deposits.Process(ctx, cmd)
	require.NoError(t, err)

	_, err = f.engine.Reconciliation.UpdateLineItemQty(ctx, acq.Lines[0].ID, 2)
	assert.True(t, consign.IsValidation(err))

	err = f.engine.Reconciliation.DeleteLineItem(ctx, acq.Lines[0].ID)
	assert.True(t, consign.IsValidation(err))
}

func TestReconciliation_OnlyLatestLineEditable(t *testing.T) {
	// GIVEN: Two pending lines by the same seller against the same batch
	// WHEN: Editing the older one
	// THEN: Rejected; the newer one is editable

	f := newFixture(t)
	ctx := context.Background()

	older := f.acquire(t, 2)
	newer := f.acquire(t, 3)

	_, err := f.engine.Reconciliation.UpdateLineItemQty(ctx, older.Lines[0].ID, 1)
	assert.True(t, consign.IsValidation(err), "older line must be frozen")

	_, err = f.engine.Reconciliation.UpdateLineItemQty(ctx, newer.Lines[0].ID, 1)
	assert.NoError(t, err)
}

// =============================================================================
// DELETION AND CASCADE
// =============================================================================

func TestReconciliation_DeleteLine_ReturnsStock(t *testing.T) {
	// GIVEN: An acquisition whose only line took 3 units (remaining 7)
	// WHEN: Deleting the line
	// THEN: Stock returns to 10 and the empty acquisition is removed

	f := newFixture(t)
	ctx := context.Background()

	acq := f.acquire(t, 3)

	require.NoError(t, f.engine.Reconciliation.DeleteLineItem(ctx, acq.Lines[0].ID))
	assert.Equal(t, 10, f.remaining(t))

	_, err := f.engine.Acquisitions.ByID(ctx, acq.ID)
	assert.True(t, consign.IsNotFound(err), "empty acquisition must cascade")
}

func TestReconciliation_DeleteLine_KeepsNonEmptyAcquisition(t *testing.T) {
	// GIVEN: An acquisition with two lines on different batches
	// WHEN: Deleting one line
	// THEN: The acquisition survives with the other line

	f := newFixture(t)
	ctx := context.Background()

	second, err := f.engine.Inventory.CreateBatch(ctx, f.item.ID, d(500), d(0), 10, testStart)
	require.NoError(t, err)

	acq, err := f.engine.Acquisitions.Create(ctx, consign.AcquisitionRequest{
		SellerID: f.seller.ID,
		AdminID:  f.admin.ID,
		Items: []consign.AcquisitionItem{
			{BatchID: f.batch.ID, Qty: 2},
			{BatchID: second.ID, Qty: 4},
		},
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.Reconciliation.DeleteLineItem(ctx, acq.Lines[1].ID))

	got, err := f.engine.Acquisitions.ByID(ctx, acq.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, f.batch.ID, got.Lines[0].BatchID)

	b, err := f.mem.GetBatch(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, b.Remaining, "deleted line's units returned")
}
