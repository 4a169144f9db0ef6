/*
ledger.go - Ledger Store component

PURPOSE:
  Owns the cash balance singleton and the append-only ledger. The one rule
  that everything here protects: the balance always equals the signed sum
  of entries, and the two writes (append entry, adjust balance) are never
  separated across transactions.

CRITICAL INVARIANTS:
  1. Entries are immutable once written
  2. PostEntry appends + adjusts balance inside the caller's transaction
  3. Deletion is allowed only for a manual entry that is still the single
     most recent entry overall - anything else would invalidate balance
     history

SEE ALSO:
  - deposit.go: appends per-line income entries, then posts one
    accumulated balance adjustment
  - inventory.go: cost ("modal") expense and refund entries
*/
package consign

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger is the Ledger Store component.
type Ledger struct {
	store TxStore
	clock Clock
}

func NewLedger(store TxStore, clock Clock) *Ledger {
	return &Ledger{store: store, clock: clock}
}

// Balance returns the current cash balance, lazily initializing the
// singleton to zero on first access.
func (l *Ledger) Balance(ctx context.Context) (CashBalance, error) {
	return l.store.GetBalance(ctx)
}

// Append writes a ledger entry through the given transactional handle
// WITHOUT touching the balance. Callers that use it are responsible for
// posting the matching balance adjustment in the same transaction
// (the deposit workflow accumulates per-line entries and adjusts once).
func (l *Ledger) Append(ctx context.Context, s Store, e LedgerEntry) (LedgerEntry, error) {
	if !e.Amount.IsPositive() {
		return LedgerEntry{}, Validationf("ledger entry amount must be positive, got %s", e.Amount)
	}
	if e.Kind != EntryIncome && e.Kind != EntryExpense {
		return LedgerEntry{}, Validationf("unknown ledger entry kind %q", e.Kind)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.clock.Now()
	}
	return s.AppendEntry(ctx, e)
}

// PostEntry appends the entry and adjusts the balance by its signed
// amount within the caller's transaction. It must never be called outside
// a WithTx scope - the handle s is the transactional store.
func (l *Ledger) PostEntry(ctx context.Context, s Store, e LedgerEntry) (CashBalance, error) {
	entry, err := l.Append(ctx, s, e)
	if err != nil {
		return CashBalance{}, err
	}
	return s.AddToBalance(ctx, entry.Signed())
}

// CreateManualEntry records a hand-written income/expense row and adjusts
// the balance atomically. A manual expense requires sufficient balance,
// the same guard cost increases use.
func (l *Ledger) CreateManualEntry(ctx context.Context, kind EntryKind, title string, amount decimal.Decimal, note string) (LedgerEntry, CashBalance, error) {
	if title == "" {
		return LedgerEntry{}, CashBalance{}, Validationf("ledger entry title is required")
	}
	if !amount.IsPositive() {
		return LedgerEntry{}, CashBalance{}, Validationf("ledger entry amount must be positive, got %s", amount)
	}
	if kind == EntryExpense {
		bal, err := l.store.GetBalance(ctx)
		if err != nil {
			return LedgerEntry{}, CashBalance{}, err
		}
		if bal.Balance.LessThan(amount) {
			return LedgerEntry{}, CashBalance{}, Validationf("insufficient balance: have %s, expense %s", bal.Balance, amount)
		}
	}

	var (
		entry   LedgerEntry
		balance CashBalance
	)
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		entry, err = l.Append(ctx, s, LedgerEntry{
			Title:  title,
			Kind:   kind,
			Amount: amount,
			Note:   note,
		})
		if err != nil {
			return err
		}
		balance, err = s.AddToBalance(ctx, entry.Signed())
		return err
	})
	if err != nil {
		return LedgerEntry{}, CashBalance{}, err
	}
	return entry, balance, nil
}

// Entries pages the ledger newest-first. Page is 1-based; non-positive
// inputs fall back to the first page of 20.
func (l *Ledger) Entries(ctx context.Context, page, pageSize int) ([]LedgerEntry, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return l.store.ListEntries(ctx, page, pageSize)
}

// EntriesInRange returns entries created in [from, to], newest first.
func (l *Ledger) EntriesInRange(ctx context.Context, from, to time.Time) ([]LedgerEntry, error) {
	if to.Before(from) {
		return nil, Validationf("invalid range: end before start")
	}
	return l.store.ListEntriesInRange(ctx, from, to)
}

// DeleteEntry removes a manual entry and reverses its balance effect in
// one transaction. Fails with ConflictError unless the entry is manual
// AND still the most recently created entry overall.
func (l *Ledger) DeleteEntry(ctx context.Context, id int) (CashBalance, error) {
	var balance CashBalance
	err := l.store.WithTx(ctx, func(s Store) error {
		entry, err := s.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return &NotFoundError{Entity: "ledger entry", IDs: []int{id}}
		}
		if !entry.Manual() {
			return &ConflictError{Msg: "only manual ledger entries can be deleted", IDs: []int{id}}
		}
		latest, err := s.LatestEntry(ctx)
		if err != nil {
			return err
		}
		if latest == nil || latest.ID != entry.ID {
			return &ConflictError{Msg: "only the most recent ledger entry can be deleted", IDs: []int{id}}
		}
		if err := s.DeleteEntry(ctx, id); err != nil {
			return err
		}
		balance, err = s.AddToBalance(ctx, entry.Signed().Neg())
		return err
	})
	if err != nil {
		return CashBalance{}, err
	}
	return balance, nil
}
