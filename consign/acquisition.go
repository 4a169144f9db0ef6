/*
acquisition.go - Acquisition Workflow ("ambil barang")

PURPOSE:
  A seller takes items to sell on credit. The workflow reserves stock and
  creates the pending line items that the deposit workflow later settles.

ATOMICITY:
  Every batch decrement and the acquisition/line creation happen in one
  transaction. A failure partway (e.g. the third batch underflows) rolls
  back the decrements already applied - partial allocation is never
  observable.

SEE ALSO:
  - inventory.go: the guarded decrement
  - deposit.go:   settles the pending lines created here
*/
package consign

import (
	"context"

	"github.com/shopspring/decimal"
)

// AcquisitionItem is one requested allocation inside an acquisition.
type AcquisitionItem struct {
	BatchID int
	Qty     int
}

// AcquisitionRequest is the input to Create.
type AcquisitionRequest struct {
	SellerID int
	AdminID  int // recipient admin the seller will deposit to
	Note     string
	Items    []AcquisitionItem
}

// Acquisitions is the Acquisition Workflow component.
type Acquisitions struct {
	store     TxStore
	inventory *Inventory
	clock     Clock
}

func NewAcquisitions(store TxStore, inventory *Inventory, clock Clock) *Acquisitions {
	return &Acquisitions{store: store, inventory: inventory, clock: clock}
}

// Create allocates stock to a seller and opens the pending line items.
//
// Validation happens before the mutating transaction (existence,
// positivity, fast-fail stock check); the in-transaction decrement guard
// remains authoritative against concurrent allocations.
func (a *Acquisitions) Create(ctx context.Context, req AcquisitionRequest) (Acquisition, error) {
	if len(req.Items) == 0 {
		return Acquisition{}, Validationf("acquisition requires at least one item")
	}
	ok, err := a.store.SellerExists(ctx, req.SellerID)
	if err != nil {
		return Acquisition{}, err
	}
	if !ok {
		return Acquisition{}, &NotFoundError{Entity: "seller", IDs: []int{req.SellerID}}
	}
	ok, err = a.store.AdminExists(ctx, req.AdminID)
	if err != nil {
		return Acquisition{}, err
	}
	if !ok {
		return Acquisition{}, &NotFoundError{Entity: "admin", IDs: []int{req.AdminID}}
	}

	now := a.clock.Now()
	lines := make([]LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Qty <= 0 {
			return Acquisition{}, Validationf("item quantity must be positive, got %d for batch %d", it.Qty, it.BatchID)
		}
		batch, err := a.store.GetBatch(ctx, it.BatchID)
		if err != nil {
			return Acquisition{}, err
		}
		if batch == nil {
			return Acquisition{}, &NotFoundError{Entity: "stock batch", IDs: []int{it.BatchID}}
		}
		if batch.Remaining < it.Qty {
			return Acquisition{}, &InsufficientStockError{
				BatchID:   batch.ID,
				Remaining: batch.Remaining,
				Requested: it.Qty,
			}
		}
		// Price snapshot: later batch edits never rewrite this line.
		lines = append(lines, LineItem{
			BatchID:   it.BatchID,
			Qty:       it.Qty,
			UnitPrice: batch.Price,
			Total:     batch.Price.Mul(decimal.NewFromInt(int64(it.Qty))),
			CreatedAt: now,
		})
	}

	var created Acquisition
	err = a.store.WithTx(ctx, func(s Store) error {
		for _, it := range req.Items {
			if err := a.inventory.Decrement(ctx, s, it.BatchID, it.Qty); err != nil {
				return err
			}
		}
		var err error
		created, err = s.CreateAcquisition(ctx, Acquisition{
			SellerID:  req.SellerID,
			AdminID:   req.AdminID,
			Note:      req.Note,
			Status:    StatusNoneDeposited,
			CreatedAt: now,
		}, lines)
		return err
	})
	if err != nil {
		return Acquisition{}, err
	}
	return created, nil
}

// ByID returns one acquisition with all of its lines.
func (a *Acquisitions) ByID(ctx context.Context, id int) (Acquisition, error) {
	acq, err := a.store.GetAcquisition(ctx, id)
	if err != nil {
		return Acquisition{}, err
	}
	if acq == nil {
		return Acquisition{}, &NotFoundError{Entity: "acquisition", IDs: []int{id}}
	}
	return *acq, nil
}

// BySeller returns all acquisitions taken by one seller.
func (a *Acquisitions) BySeller(ctx context.Context, sellerID int) ([]Acquisition, error) {
	ok, err := a.store.SellerExists(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotFoundError{Entity: "seller", IDs: []int{sellerID}}
	}
	return a.store.ListAcquisitionsBySeller(ctx, sellerID)
}

// Pending returns acquisitions that still owe deposits, oldest first
// (FIFO reconciliation order), each carrying only its pending lines.
func (a *Acquisitions) Pending(ctx context.Context) ([]Acquisition, error) {
	return a.store.ListPendingAcquisitions(ctx)
}
