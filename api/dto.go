/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts are decimal.Decimal, which marshals as a JSON string ("3000")
  and accepts both numbers and strings on input.

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers run
  the validator after decoding. Domain rules (stock sufficiency, balance
  coverage, deposit gating) stay in the consign package.

SEE ALSO:
  - handlers.go: Uses these types
  - consign/types.go: Domain model
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lapak/consignment-engine/consign"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// NamedDTO represents an item, seller, or admin in API responses.
type NamedDTO struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateNamedRequest is the request to create an item, seller, or admin.
type CreateNamedRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

// BatchDTO represents a stock batch in API responses.
type BatchDTO struct {
	ID         int             `json:"id"`
	ItemID     int             `json:"item_id"`
	ItemName   string          `json:"item_name,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Cost       decimal.Decimal `json:"cost"`
	Remaining  int             `json:"remaining"`
	Taken      int             `json:"taken"`
	Depositors int             `json:"depositors"`
	Date       string          `json:"date"`
	CreatedAt  string          `json:"created_at,omitempty"`
}

// CreateBatchRequest is the request to release a day's stock.
type CreateBatchRequest struct {
	ItemID int             `json:"item_id" validate:"required,gt=0"`
	Price  decimal.Decimal `json:"price" validate:"required"`
	Cost   decimal.Decimal `json:"cost"`
	Qty    int             `json:"qty" validate:"required,gt=0"`
	Date   string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// UpdateBatchRequest is the request to change a batch's pricing.
type UpdateBatchRequest struct {
	Price decimal.Decimal `json:"price" validate:"required"`
	Cost  decimal.Decimal `json:"cost"`
}

// AcquisitionItemRequest is one allocation inside an acquisition request.
type AcquisitionItemRequest struct {
	BatchID int `json:"batch_id" validate:"required,gt=0"`
	Qty     int `json:"qty" validate:"required,gt=0"`
}

// CreateAcquisitionRequest is the request for a seller taking items.
type CreateAcquisitionRequest struct {
	SellerID int                      `json:"seller_id" validate:"required,gt=0"`
	AdminID  int                      `json:"admin_id" validate:"required,gt=0"`
	Note     string                   `json:"note" validate:"max=500"`
	Items    []AcquisitionItemRequest `json:"items" validate:"required,min=1,dive"`
}

// LineItemDTO represents one allocation line.
type LineItemDTO struct {
	ID            int             `json:"id"`
	AcquisitionID int             `json:"acquisition_id"`
	BatchID       int             `json:"batch_id"`
	Qty           int             `json:"qty"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Total         decimal.Decimal `json:"total"`
	DepositedAt   *string         `json:"deposited_at,omitempty"`
	CreatedAt     string          `json:"created_at,omitempty"`
}

// AcquisitionDTO represents an acquisition with its lines.
type AcquisitionDTO struct {
	ID        int           `json:"id"`
	SellerID  int           `json:"seller_id"`
	AdminID   int           `json:"admin_id"`
	Note      string        `json:"note,omitempty"`
	Status    string        `json:"status"`
	Lines     []LineItemDTO `json:"lines"`
	CreatedAt string        `json:"created_at,omitempty"`
}

// DepositItemRequest is the structured deposit shape.
type DepositItemRequest struct {
	LineItemID int `json:"line_item_id" validate:"required,gt=0"`
	Qty        int `json:"qty" validate:"required,gt=0"`
}

// CreateDepositRequest accepts either the legacy bare id list or
// structured items; exactly one must be present.
type CreateDepositRequest struct {
	LineItemIDs []int                `json:"line_item_ids"`
	Items       []DepositItemRequest `json:"items" validate:"omitempty,dive"`
	AdminID     int                  `json:"admin_id"`
}

// ReceiptLineDTO is one settled line in a deposit receipt.
type ReceiptLineDTO struct {
	LineItemID int             `json:"line_item_id"`
	ItemName   string          `json:"item_name"`
	Qty        int             `json:"qty"`
	Total      decimal.Decimal `json:"total"`
}

// ReceiptDTO is the deposit success payload.
type ReceiptDTO struct {
	Reference string           `json:"reference"`
	Total     decimal.Decimal  `json:"total"`
	Balance   decimal.Decimal  `json:"balance"`
	Lines     []ReceiptLineDTO `json:"lines"`
}

// UpdateLineItemRequest changes a pending line's quantity.
type UpdateLineItemRequest struct {
	Qty int `json:"qty" validate:"required,gt=0"`
}

// EntryDTO represents one ledger entry.
type EntryDTO struct {
	ID         int             `json:"id"`
	LineItemID *int            `json:"line_item_id,omitempty"`
	Title      string          `json:"title"`
	Kind       string          `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  string          `json:"created_at,omitempty"`
}

// CreateEntryRequest is the request for a manual ledger entry.
type CreateEntryRequest struct {
	Kind   string          `json:"kind" validate:"required,oneof=INCOME EXPENSE"`
	Title  string          `json:"title" validate:"required,min=1,max=200"`
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Note   string          `json:"note" validate:"max=500"`
}

// BalanceDTO represents the cash balance.
type BalanceDTO struct {
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

// =============================================================================
// DOMAIN -> DTO MAPPERS
// =============================================================================

func toNamedDTO(id int, name string, createdAt time.Time) NamedDTO {
	return NamedDTO{ID: id, Name: name, CreatedAt: createdAt.Format(time.RFC3339)}
}

func toBatchDTO(s consign.BatchSummary) BatchDTO {
	return BatchDTO{
		ID:         s.Batch.ID,
		ItemID:     s.Batch.ItemID,
		ItemName:   s.ItemName,
		Price:      s.Batch.Price,
		Cost:       s.Batch.Cost,
		Remaining:  s.Batch.Remaining,
		Taken:      s.Taken,
		Depositors: s.Depositors,
		Date:       s.Batch.Date.Format("2006-01-02"),
		CreatedAt:  s.Batch.CreatedAt.Format(time.RFC3339),
	}
}

func toLineItemDTO(li consign.LineItem) LineItemDTO {
	dto := LineItemDTO{
		ID:            li.ID,
		AcquisitionID: li.AcquisitionID,
		BatchID:       li.BatchID,
		Qty:           li.Qty,
		UnitPrice:     li.UnitPrice,
		Total:         li.Total,
		CreatedAt:     li.CreatedAt.Format(time.RFC3339),
	}
	if li.DepositedAt != nil {
		at := li.DepositedAt.Format(time.RFC3339)
		dto.DepositedAt = &at
	}
	return dto
}

func toAcquisitionDTO(a consign.Acquisition) AcquisitionDTO {
	lines := make([]LineItemDTO, len(a.Lines))
	for i, li := range a.Lines {
		lines[i] = toLineItemDTO(li)
	}
	return AcquisitionDTO{
		ID:        a.ID,
		SellerID:  a.SellerID,
		AdminID:   a.AdminID,
		Note:      a.Note,
		Status:    string(a.Status),
		Lines:     lines,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}

func toEntryDTO(e consign.LedgerEntry) EntryDTO {
	return EntryDTO{
		ID:         e.ID,
		LineItemID: e.LineItemID,
		Title:      e.Title,
		Kind:       string(e.Kind),
		Amount:     e.Amount,
		Note:       e.Note,
		CreatedAt:  e.CreatedAt.Format(time.RFC3339),
	}
}

func toBalanceDTO(b consign.CashBalance) BalanceDTO {
	return BalanceDTO{Balance: b.Balance, UpdatedAt: b.UpdatedAt.Format(time.RFC3339)}
}

func toReceiptDTO(r consign.DepositReceipt) ReceiptDTO {
	lines := make([]ReceiptLineDTO, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = ReceiptLineDTO{
			LineItemID: l.LineItemID,
			ItemName:   l.ItemName,
			Qty:        l.Qty,
			Total:      l.Total,
		}
	}
	return ReceiptDTO{Reference: r.Reference, Total: r.Total, Balance: r.Balance, Lines: lines}
}
