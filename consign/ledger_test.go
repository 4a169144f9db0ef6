package consign_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lapak/consignment-engine/consign"
	"github.com/lapak/consignment-engine/consign/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testStart = time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*consign.Engine, *store.Memory, *consign.FixedClock) {
	t.Helper()
	mem := store.NewMemory()
	clock := consign.NewFixedClock(testStart)
	return consign.NewEngine(mem, clock), mem, clock
}

func d(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

// fundBalance posts a manual income so later expenses have coverage.
func fundBalance(t *testing.T, e *consign.Engine, amount int64) {
	t.Helper()
	_, _, err := e.Ledger.CreateManualEntry(context.Background(), consign.EntryIncome, "Saldo awal", d(amount), "")
	require.NoError(t, err)
}

// =============================================================================
// BALANCE INVARIANT TESTS
// =============================================================================

func TestLedger_InitialBalance_Zero(t *testing.T) {
	// GIVEN: A fresh engine with no ledger activity
	// WHEN: Reading the balance
	// THEN: It is lazily initialized to zero

	e, _, _ := newTestEngine(t)

	bal, err := e.Ledger.Balance(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.Balance.IsZero(), "fresh balance should be zero, got %s", bal.Balance)
}

func TestLedger_ManualIncome_IncreasesBalance(t *testing.T) {
	// GIVEN: A zero balance
	// WHEN: Recording a manual income of 5000
	// THEN: The entry exists and the balance is 5000

	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	entry, bal, err := e.Ledger.CreateManualEntry(ctx, consign.EntryIncome, "Titipan", d(5000), "note")
	require.NoError(t, err)

	assert.True(t, entry.Manual(), "entry without line item should be manual")
	assert.True(t, bal.Balance.Equal(d(5000)))

	entries, err := e.Ledger.Entries(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, consign.EntryIncome, entries[0].Kind)
}

func TestLedger_ManualExpense_RequiresSufficientBalance(t *testing.T) {
	// GIVEN: A balance of 1000
	// WHEN: Recording a manual expense of 2000
	// THEN: The expense is rejected and nothing changes

	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	fundBalance(t, e, 1000)

	_, _, err := e.Ledger.CreateManualEntry(ctx, consign.EntryExpense, "Beli plastik", d(2000), "")
	assert.True(t, consign.IsValidation(err), "expected validation error, got %v", err)

	bal, err := e.Ledger.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(d(1000)), "balance must be untouched")

	entries, err := e.Ledger.Entries(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the funding entry should exist")
}

func TestLedger_ManualExpense_DecreasesBalance(t *testing.T) {
	// GIVEN: A balance of 5000
	// WHEN: Recording an expense of 2000
	// THEN: The balance is 3000 and equals the signed sum of entries

	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	fundBalance(t, e, 5000)

	_, bal, err := e.Ledger.CreateManualEntry(ctx, consign.EntryExpense, "Beli plastik", d(2000), "")
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(d(3000)))

	entries, err := e.Ledger.Entries(ctx, 1, 10)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, en := range entries {
		sum = sum.Add(en.Signed())
	}
	assert.True(t, sum.Equal(bal.Balance), "balance must equal signed sum of entries")
}

func TestLedger_Validation(t *testing.T) {
	// GIVEN: A funded ledger
	// WHEN: Submitting malformed manual entries
	// THEN: Each is rejected with a validation error

	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	fundBalance(t, e, 5000)

	_, _, err := e.Ledger.CreateManualEntry(ctx, consign.EntryIncome, "", d(100), "")
	assert.True(t, consign.IsValidation(err), "missing title")

	_, _, err = e.Ledger.CreateManualEntry(ctx, consign.EntryIncome, "x", d(0), "")
	assert.True(t, consign.IsValidation(err), "zero amount")

	_, _, err = e.Ledger.CreateManualEntry(ctx, consign.EntryIncome, "x", d(-5), "")
	assert.True(t, consign.IsValidation(err), "negative amount")

	_, _, err = e.Ledger.CreateManualEntry(ctx, consign.EntryKind("TRANSFER"), "x", d(5), "")
	assert.True(t, consign.IsValidation(err), "unknown kind")
}

// =============================================================================
// PAGINATION
// =============================================================================

func TestLedger_Entries_PagesNewestFirst(t *testing.T) {
	// GIVEN: Five manual income entries
	// WHEN: Paging with size 2
	// THEN: Pages come newest-first without overlap

	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
		_, _, err := e.Ledger.CreateManualEntry(ctx, consign.EntryIncome, "Titipan", d(100), "")
		require.NoError(t, err)
	}

	page1, err := e.Ledger.Entries(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Greater(t, page1[0].ID, page1[1].ID, "newest first")

	page3, err := e.Ledger.Entries(ctx, 3, 2)
	require.NoError(t, err)
	assert.Len(t, page3, 1, "last page is partial")

	// Non-positive inputs fall back to defaults rather than failing.
	fallback, err := e.Ledger.Entries(ctx, 0, -1)
	require.NoError(t, err)
	assert.Len(t, fallback, 5)
}

func TestLedger_EntriesInRange_RejectsInvertedRange(t *testing.T) {
	e, _, _ := newTestEngine(t)

	_, err := e.Ledger.EntriesInRange(context.Background(), testStart, testStart.Add(-time.Hour))
	assert.True(t, consign.IsValidation(err))
}

// =============================================================================
// DELETE GATES
// =============================================================================

func TestLedger_DeleteEntry_ReversesBalance(t *testing.T) {
	// GIVEN: A manual income of 5000 as the latest entry
	// WHEN: Deleting it
	// THEN: The balance drops back and the entry is gone

	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	entry, _, err := e.Ledger.CreateManualEntry(ctx, consign.EntryIncome, "Titipan", d(5000), "")
	require.NoError(t, err)

	bal, err := e.Ledger.DeleteEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, bal.Balance.IsZero())

	entries, err := e.Ledger.Entries(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLedger_DeleteEntry_OnlyLatest(t *testing.T) {
	// GIVEN: Two manual entries
	// WHEN: Deleting the older one
	// THEN: Rejected with a conflict; deleting the newest succeeds

	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	first, _, err := e.Ledger.CreateManualEntry(ctx, consign.EntryIncome, "Titipan", d(1000), "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, _, err := e.Ledger.CreateManualEntry(ctx, consign.EntryIncome, "Titipan", d(2000), "")
	require.NoError(t, err)

	_, err = e.Ledger.DeleteEntry(ctx, first.ID)
	assert.True(t, consign.IsConflict(err), "older entry must not be deletable")

	_, err = e.Ledger.DeleteEntry(ctx, second.ID)
	assert.NoError(t, err)
}

func TestLedger_DeleteEntry_ManualOnly(t *testing.T) {
	// GIVEN: A workflow-generated entry (linked to a line item)
	// WHEN: Trying to delete it
	// THEN: Rejected with a conflict

	e, mem, _ := newTestEngine(t)
	ctx := context.Background()

	lineID := 7
	entry, err := mem.AppendEntry(ctx, consign.LedgerEntry{
		LineItemID: &lineID,
		Title:      "Setoran: Donat x3",
		Kind:       consign.EntryIncome,
		Amount:     d(3000),
		CreatedAt:  testStart,
	})
	require.NoError(t, err)

	_, err = e.Ledger.DeleteEntry(ctx, entry.ID)
	assert.True(t, consign.IsConflict(err))
}

func TestLedger_DeleteEntry_NotFound(t *testing.T) {
	e, _, _ := newTestEngine(t)

	_, err := e.Ledger.DeleteEntry(context.Background(), 999)
	assert.True(t, consign.IsNotFound(err))
}
