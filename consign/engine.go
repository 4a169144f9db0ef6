package consign

// Engine wires the five components over one TxStore and one Clock.
// Construction order follows the dependency order: ledger and inventory
// are leaves, the workflows build on them.
type Engine struct {
	Ledger         *Ledger
	Inventory      *Inventory
	Acquisitions   *Acquisitions
	Deposits       *Deposits
	Reconciliation *Reconciliation
}

func NewEngine(store TxStore, clock Clock) *Engine {
	ledger := NewLedger(store, clock)
	inventory := NewInventory(store, ledger, clock)
	return &Engine{
		Ledger:         ledger,
		Inventory:      inventory,
		Acquisitions:   NewAcquisitions(store, inventory, clock),
		Deposits:       NewDeposits(store, inventory, ledger, clock),
		Reconciliation: NewReconciliation(store, inventory, clock),
	}
}
