/*
handlers.go - HTTP API handlers for the consignment engine

PURPOSE:
  Exposes the consignment engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Catalog / identity:
    GET/POST /api/items                Item catalog
    GET/POST /api/sellers              Sellers
    GET/POST /api/admins               Admins

  Stock batches:
    POST   /api/stock-batches          Release a day's stock
    GET    /api/stock-batches/today    Today's batches with projections
    GET    /api/stock-batches/history  Batches in a date range
    PUT    /api/stock-batches/{id}     Update price/cost
    DELETE /api/stock-batches/{id}     Delete an unallocated batch

  Acquisitions:
    POST   /api/acquisitions                 Seller takes items
    GET    /api/acquisitions/pending         Acquisitions still owing deposits
    GET    /api/acquisitions/{id}            One acquisition with lines
    GET    /api/sellers/{id}/acquisitions    Seller history

  Deposits / reconciliation:
    POST   /api/deposits               Settle line items (both payload shapes)
    PUT    /api/line-items/{id}        Edit a pending line's quantity
    DELETE /api/line-items/{id}        Delete a pending line

  Ledger:
    GET    /api/ledger/balance         Current cash balance
    GET    /api/ledger/entries         Paged entries, or ?from=&to= range
    POST   /api/ledger/entries         Manual income/expense entry
    DELETE /api/ledger/entries/{id}    Delete the latest manual entry

ERROR HANDLING:
  Domain error kinds map to HTTP status:
  - 400: ValidationError, invalid input
  - 404: NotFoundError
  - 409: ConflictError (already deposited, ledger delete gate)
  - 422: InsufficientStockError
  - 500: Everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - consign/engine.go: Domain components
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/lapak/consignment-engine/consign"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *consign.Engine
	Store  consign.TxStore

	validate *validator.Validate
	log      *logrus.Logger
}

// NewHandler creates a new handler around the engine.
func NewHandler(engine *consign.Engine, store consign.TxStore, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Engine:   engine,
		Store:    store,
		validate: validator.New(),
		log:      log,
	}
}

// decodeAndValidate decodes the JSON body into req and runs struct
// validation. Returns false after writing the error response.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// =============================================================================
// CATALOG / IDENTITY HANDLERS
// =============================================================================

// ListItems returns the item catalog.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]NamedDTO, len(items))
	for i, it := range items {
		dtos[i] = toNamedDTO(it.ID, it.Name, it.CreatedAt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateItem adds an item to the catalog.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateNamedRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	item, err := h.Store.CreateItem(r.Context(), req.Name)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNamedDTO(item.ID, item.Name, item.CreatedAt))
}

// ListSellers returns all sellers.
func (h *Handler) ListSellers(w http.ResponseWriter, r *http.Request) {
	sellers, err := h.Store.ListSellers(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]NamedDTO, len(sellers))
	for i, s := range sellers {
		dtos[i] = toNamedDTO(s.ID, s.Name, s.CreatedAt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSeller registers a seller.
func (h *Handler) CreateSeller(w http.ResponseWriter, r *http.Request) {
	var req CreateNamedRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	s, err := h.Store.CreateSeller(r.Context(), req.Name)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNamedDTO(s.ID, s.Name, s.CreatedAt))
}

// ListAdmins returns all admins.
func (h *Handler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.Store.ListAdmins(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]NamedDTO, len(admins))
	for i, a := range admins {
		dtos[i] = toNamedDTO(a.ID, a.Name, a.CreatedAt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAdmin registers an admin.
func (h *Handler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req CreateNamedRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	a, err := h.Store.CreateAdmin(r.Context(), req.Name)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNamedDTO(a.ID, a.Name, a.CreatedAt))
}

// =============================================================================
// STOCK BATCH HANDLERS
// =============================================================================

// CreateBatch releases one day's stock of an item.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	date := time.Now().UTC()
	if req.Date != "" {
		var err error
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
	}

	batch, err := h.Engine.Inventory.CreateBatch(r.Context(), req.ItemID, req.Price, req.Cost, req.Qty, date)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.log.WithFields(logrus.Fields{
		"batch_id": batch.ID,
		"item_id":  batch.ItemID,
		"qty":      batch.Remaining,
		"cost":     batch.Cost,
	}).Info("stock batch created")
	writeJSON(w, http.StatusCreated, toBatchDTO(consign.BatchSummary{Batch: batch}))
}

// ListTodayBatches returns today's batches with allocation projections.
func (h *Handler) ListTodayBatches(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Engine.Inventory.FindToday(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]BatchDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = toBatchDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListBatchHistory returns batches released in ?from=&to= (YYYY-MM-DD).
func (h *Handler) ListBatchHistory(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	summaries, err := h.Engine.Inventory.FindHistory(r.Context(), from, to)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]BatchDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = toBatchDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateBatch rewrites a batch's price and cost.
func (h *Handler) UpdateBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req UpdateBatchRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	batch, err := h.Engine.Inventory.UpdateBatch(r.Context(), id, req.Price, req.Cost)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(consign.BatchSummary{Batch: batch}))
}

// DeleteBatch deletes an unallocated batch, refunding its cost.
func (h *Handler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.Engine.Inventory.DeleteBatch(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.log.WithField("batch_id", id).Info("stock batch deleted")
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ACQUISITION HANDLERS
// =============================================================================

// CreateAcquisition allocates stock to a seller.
func (h *Handler) CreateAcquisition(w http.ResponseWriter, r *http.Request) {
	var req CreateAcquisitionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	items := make([]consign.AcquisitionItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = consign.AcquisitionItem{BatchID: it.BatchID, Qty: it.Qty}
	}
	acq, err := h.Engine.Acquisitions.Create(r.Context(), consign.AcquisitionRequest{
		SellerID: req.SellerID,
		AdminID:  req.AdminID,
		Note:     req.Note,
		Items:    items,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.log.WithFields(logrus.Fields{
		"acquisition_id": acq.ID,
		"seller_id":      acq.SellerID,
		"lines":          len(acq.Lines),
	}).Info("acquisition created")
	writeJSON(w, http.StatusCreated, toAcquisitionDTO(acq))
}

// GetAcquisition returns one acquisition with all lines.
func (h *Handler) GetAcquisition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	acq, err := h.Engine.Acquisitions.ByID(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAcquisitionDTO(acq))
}

// ListSellerAcquisitions returns one seller's acquisitions.
func (h *Handler) ListSellerAcquisitions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	acqs, err := h.Engine.Acquisitions.BySeller(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]AcquisitionDTO, len(acqs))
	for i, a := range acqs {
		dtos[i] = toAcquisitionDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListPendingAcquisitions returns acquisitions still owing deposits,
// oldest first, with only their pending lines.
func (h *Handler) ListPendingAcquisitions(w http.ResponseWriter, r *http.Request) {
	acqs, err := h.Engine.Acquisitions.Pending(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]AcquisitionDTO, len(acqs))
	for i, a := range acqs {
		dtos[i] = toAcquisitionDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// DEPOSIT / RECONCILIATION HANDLERS
// =============================================================================

// CreateDeposit settles the selected line items atomically.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req CreateDepositRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	items := make([]consign.DepositItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = consign.DepositItem{LineItemID: it.LineItemID, Qty: it.Qty}
	}
	cmd, err := consign.NewDepositCommand(req.LineItemIDs, items, req.AdminID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	receipt, err := h.Engine.Deposits.Process(r.Context(), cmd)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.log.WithFields(logrus.Fields{
		"reference": receipt.Reference,
		"lines":     len(receipt.Lines),
		"total":     receipt.Total,
	}).Info("deposit processed")
	writeJSON(w, http.StatusCreated, toReceiptDTO(receipt))
}

// UpdateLineItem edits a pending line's quantity.
func (h *Handler) UpdateLineItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req UpdateLineItemRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	li, err := h.Engine.Reconciliation.UpdateLineItemQty(r.Context(), id, req.Qty)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLineItemDTO(li))
}

// DeleteLineItem removes a pending line, returning its stock.
func (h *Handler) DeleteLineItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.Engine.Reconciliation.DeleteLineItem(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.log.WithField("line_item_id", id).Info("line item deleted")
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetBalance returns the current cash balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.Engine.Ledger.Balance(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(bal))
}

// ListEntries returns ledger entries. With ?from=&to= it returns the
// range; otherwise it pages newest-first via ?page=&page_size=.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	var (
		entries []consign.LedgerEntry
		err     error
	)
	if r.URL.Query().Get("from") != "" || r.URL.Query().Get("to") != "" {
		from, to, ok := h.parseRange(w, r)
		if !ok {
			return
		}
		entries, err = h.Engine.Ledger.EntriesInRange(r.Context(), from, to)
	} else {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		entries, err = h.Engine.Ledger.Entries(r.Context(), page, pageSize)
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEntry records a manual income/expense entry.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	entry, bal, err := h.Engine.Ledger.CreateManualEntry(
		r.Context(), consign.EntryKind(req.Kind), req.Title, req.Amount, req.Note)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.log.WithFields(logrus.Fields{
		"entry_id": entry.ID,
		"kind":     entry.Kind,
		"amount":   entry.Amount,
	}).Info("manual ledger entry created")
	writeJSON(w, http.StatusCreated, struct {
		Entry   EntryDTO   `json:"entry"`
		Balance BalanceDTO `json:"balance"`
	}{toEntryDTO(entry), toBalanceDTO(bal)})
}

// DeleteEntry removes the most recent manual entry, reversing it.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	bal, err := h.Engine.Ledger.DeleteEntry(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.log.WithField("entry_id", id).Info("ledger entry deleted")
	writeJSON(w, http.StatusOK, toBalanceDTO(bal))
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		h.writeError(w, r, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func (h *Handler) parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return time.Time{}, time.Time{}, false
	}
	// inclusive end of day
	return from, to.Add(24*time.Hour - time.Nanosecond), true
}

// writeDomainError maps domain error kinds onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case consign.IsValidation(err):
		h.writeError(w, r, http.StatusBadRequest, err.Error(), nil)
	case consign.IsNotFound(err):
		h.writeError(w, r, http.StatusNotFound, err.Error(), nil)
	case consign.IsConflict(err):
		h.writeError(w, r, http.StatusConflict, err.Error(), nil)
	case consign.IsInsufficientStock(err):
		h.writeError(w, r, http.StatusUnprocessableEntity, err.Error(), nil)
	default:
		h.writeError(w, r, http.StatusInternalServerError, "Internal error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	fields := logrus.Fields{
		"status": status,
		"method": r.Method,
		"path":   r.URL.Path,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if status >= 500 {
		h.log.WithFields(fields).Error(msg)
	} else {
		h.log.WithFields(fields).Warn(msg)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
