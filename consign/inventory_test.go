package consign_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lapak/consignment-engine/consign"
	"github.com/lapak/consignment-engine/consign/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func seedItem(t *testing.T, mem *store.Memory, name string) consign.Item {
	t.Helper()
	item, err := mem.CreateItem(context.Background(), name)
	require.NoError(t, err)
	return item
}

// =============================================================================
// BATCH CREATION AND COST COUPLING
// =============================================================================

func TestInventory_CreateBatch_NoCost(t *testing.T) {
	// GIVEN: An item and an empty ledger
	// WHEN: Releasing a batch with zero cost
	// THEN: The batch exists and no ledger entry is posted

	e, mem, _ := newTestEngine(t)
	ctx := context.Background()
	item := seedItem(t, mem, "Donat")

	batch, err := e.Inventory.CreateBatch(ctx, item.ID, d(1000), decimal.Zero, 10, testStart)
	require.NoError(t, err)
	assert.Equal(t, 10, batch.Remaining)
	assert.True(t, batch.Price.Equal(d(1000)))

	entries, err := e.Ledger.Entries(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, entries, "zero cost posts no entry")
}

func TestInventory_CreateBatch_CostPostsExpense(t *testing.T) {
	// GIVEN: A balance of 10000
	// WHEN: Releasing a batch with a total cost of 5000
	// THEN: One EXPENSE entry is posted and the balance drops to 5000

	e, mem, _ := newTestEngine(t)
	ctx := context.Background()
	item := seedItem(t, mem, "Donat")
	fundBalance(t, e, 10000)

	_, err := e.Inventory.CreateBatch(ctx, item.ID, d(1000), d(5000), 10, testStart)
	require.NoError(t, err)

	bal, err := e.Ledger.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(d(5000)))

	entries, err := e.Ledger.Entries(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, consign.EntryExpense, entries[0].Kind)
	assert.Equal(t, "Modal: Donat", entries[0].Title)
	assert.True(t, entries[0].Amount.Equal(d(5000)))
}

func TestInventory_CreateBatch_CostRequiresBalance(t *testing.T) {
	// GIVEN: A balance of 1000
	// WHEN: Releasing a batch with cost 5000
	// THEN: Rejected, no batch and no entry exist

	e, mem, _ := newTestEngine(t)
	ctx := context.Background()
	item := seedItem(t, mem, "Donat")
	fundBalance(t, e, 1000)

	_, err := e.Inventory.CreateBatch(ctx, item.ID, d(1000), d(5000), 10, testStart)
	assert.True(t, consign.IsValidation(err), "expected validation error, got %v", err)

	today, err := e.Inventory.FindToday(ctx)
	require.NoError(t, err)
	assert.Empty(t, today)
}

func TestInventory_CreateBatch_Validation(t *testing.T) {
	e, mem, _ := newTestEngine(t)
	ctx := context.Background()
	item := seedItem(t, mem, "Donat")

	_, err := e.Inventory.CreateBatch(ctx, item.ID, d(0), decimal.Zero, 10, testStart)
	assert.True(t, consign.IsValidation(err), "zero price")

	_, err = e.Inventory.CreateBatch(ctx, item.ID, d(1000), d(-1), 10, testStart)
	assert.True(t, consign.IsValidation(err), "negative cost")

	_, err = e.Inventory.CreateBatch(ctx, item.ID, d(1000), decimal.Zero, 0, testStart)
	assert.True(t, consign.IsValidation(err), "zero qty")

	_, err = e.Inventory.CreateBatch(ctx, 999, d(1000), decimal.Zero, 10, testStart)
	assert.True(t, consign.IsNotFound(err), "missing item")
}

// =============================================================================
// BATCH UPDATE - COST DELTA SETTLEMENT
// =============================================================================

func TestInventory_UpdateBatch_CostIncrease(t *testing.T) {
	// GIVEN: A batch with cost 5000 and balance 5000 remaining
	// WHEN: Raising the cost to 8000
	// THEN: An EXPENSE of 3000 is posted; balance drops to 2000

	e, mem, _ := newTestEngine(t)
	ctx := context.Background()
	item := seedItem(t, mem, "Donat")
	fundBalance(t, e, 10000)

	batch, err := e.Inventory.CreateBatch(ctx, item.ID, d(1000), d(5000), 10, testStart)
	require.NoError(t, err)

	updated, err := e.Inventory.UpdateBatch(ctx, batch.ID, d(1200), d(8000))
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(d(1200)))
	assert.True(t, updated.Cost.Equal(d(8000)))

	bal, err := e.Ledger.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(d(2000)), "10000 - 5000 - 3000")
}

func TestInventory_UpdateBatch_CostDecrease_Refunds(t *testing.T) {
	// GIVEN: A batch with cost 5000
	// WHEN: Lowering the cost to 2000
	// THEN: An INCOME refund of 3000 is posted

	e, mem, _ := newTestEngine(t)
	ctx := context.Background()
	item := seedItem(t, mem, "Donat")
	fundBalance(t, e, 10000)

	batch, err := e.Inventory.CreateBatch(ctx, item.ID, d(1000), d(5000), 10, testStart)
	require.NoError(t, err)

	_, err = e.Inventory.UpdateBatch(ctx, batch.ID, d(1000), d(2000))
	require.NoError(t, err)

	bal, err := e.Ledger.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(d(8000)), "10000 - 5000 + 3000")

	entries, err := e.Ledger.Entries(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "Refund modal: Donat", entries[0].Title)
	assert.Equal(t, consign.EntryIncome, entries[0].Kind)
	assert.True(t, entries[0].Amount.Equal(d(3000)))
}

func TestInventory_UpdateBatch_CostIncreaseRequiresBalance(t *testing.T) {
	// GIVEN: A batch with cost 5000 and only 1000 left in the balance
	// WHEN: Raising the cost to 9000
	// THEN: Rejected; batch pricing unchanged

	e, mem, _ := newTestEngine(t)
	ctx := context.Background()
	item := seedItem(t, mem, "Donat")
	fundBalance(t, e, 6000)

	batch, err := e.Inventory.CreateBatch(ctx, item.ID, d(1000), d(5000), 10, testStart)
	require.NoError(t, err)

	_, err = e.Inventory.UpdateBatch(ctx, batch.ID, d(1000), d(9000))
	assert.True(t, consign.IsValidation(err))

	current, err := mem.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.True(t, current.Cost.Equal(d(5000)), "cost must be unchanged")
}

// =============================================================================
// BATCH DELETE
// =============================================================================

func TestInventory_DeleteBatch_RefundsCost(t *testing.T) {
	// GIVEN: An unallocated batch with cost 5000
	// WHEN: Deleting it
	// THEN: The full cost comes back as INCOME

	e, mem, _ := newTestEngine(t)
	ctx := context.Background()
	item := seedItem(t, mem, "Donat")
	fundBalance(t, e, 10000)

	batch, err := e.Inventory.CreateBatch(ctx, item.ID, d(1000), d(5000), 10, testStart)
	require.NoError(t, err)

	require.NoError(t, e.Inventory.DeleteBatch(ctx, batch.ID))

	bal, err := e.Ledger.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(d(10000)), "expense fully refunded")

	gone, err := mem.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestInventory_DeleteBatch_BlockedByAllocations(t *testing.T) {
	// GIVEN: A batch with an existing acquisition line
	// WHEN: Deleting the batch
	// THEN: Rejected with a validation error

	e, mem, _ := newTestEngine(t)
	ctx := context.Background()
	item := seedItem(t, mem, "Donat")
	seller, err := mem.CreateSeller(ctx, "Bu Sri")
	require.NoError(t, err)
	admin, err := mem.CreateAdmin(ctx, "Pak Agus")
	require.NoError(t, err)

	batch, err := e.Inventory.CreateBatch(ctx, item.ID, d(1000), decimal.Zero, 10, testStart)
	require.NoError(t, err)

	_, err = e.Acquisitions.Create(ctx, consign.AcquisitionRequest{
		SellerID: seller.ID,
		AdminID:  admin.ID,
		Items:    []consign.AcquisitionItem{{BatchID: batch.ID, Qty: 3}},
	})
	require.NoError(t, err)

	err = e.Inventory.DeleteBatch(ctx, batch.ID)
	assert.True(t, consign.IsValidation(err))
}

// =============================================================================
// PROJECTIONS
// =============================================================================

func TestInventory_FindToday_UsesClock(t *testing.T) {
	// GIVEN: Batches released today and yesterday
	// WHEN: Listing today's batches
	// THEN: Only today's appear, with item name and counters

	e, mem, _ := newTestEngine(t)
	ctx := context.Background()
	item := seedItem(t, mem, "Donat")

	_, err := e.Inventory.CreateBatch(ctx, item.ID, d(1000), decimal.Zero, 10, testStart)
	require.NoError(t, err)
	_, err = e.Inventory.CreateBatch(ctx, item.ID, d(900), decimal.Zero, 5, testStart.AddDate(0, 0, -1))
	require.NoError(t, err)

	today, err := e.Inventory.FindToday(ctx)
	require.NoError(t, err)
	require.Len(t, today, 1)
	assert.Equal(t, "Donat", today[0].ItemName)
	assert.Equal(t, 10, today[0].Batch.Remaining)
	assert.Equal(t, 0, today[0].Taken)
	assert.Equal(t, 0, today[0].Depositors)
}

func TestInventory_FindHistory_Range(t *testing.T) {
	e, mem, _ := newTestEngine(t)
	ctx := context.Background()
	item := seedItem(t, mem, "Donat")

	for i := 0; i < 3; i++ {
		_, err := e.Inventory.CreateBatch(ctx, item.ID, d(1000), decimal.Zero, 10, testStart.AddDate(0, 0, -i))
		require.NoError(t, err)
	}

	hist, err := e.Inventory.FindHistory(ctx, testStart.AddDate(0, 0, -1), testStart)
	require.NoError(t, err)
	assert.Len(t, hist, 2)

	_, err = e.Inventory.FindHistory(ctx, testStart, testStart.AddDate(0, 0, -1))
	assert.True(t, consign.IsValidation(err), "inverted range")
}
