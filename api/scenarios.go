/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Seeds the store with recognizable demo datasets so the frontend and
	manual API exploration have something to show. Each scenario drives
	the real workflows, so the seeded state obeys every domain rule
	(stock guards, ledger coupling, derived statuses).

AVAILABLE SCENARIOS:

	fresh-day:  Catalog, sellers, admins, and today's stock batches
	mid-day:    fresh-day plus pending acquisitions by two sellers
	end-of-day: mid-day plus one seller fully deposited

USAGE VIA API:

	GET  /api/scenarios
	POST /api/scenarios/load
	{"name": "mid-day"}

NOTE:

	Loading does NOT reset existing data; load into a fresh (":memory:"
	or new-file) database. Only use in development/demo environments.

SEE ALSO:
  - server.go: Route wiring
  - consign/engine.go: Workflows used for seeding
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lapak/consignment-engine/consign"
)

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	Name string `json:"name" validate:"required,oneof=fresh-day mid-day end-of-day"`
}

var scenarios = []ScenarioDTO{
	{Name: "fresh-day", Description: "Catalog, sellers, admins, and today's stock batches"},
	{Name: "mid-day", Description: "fresh-day plus pending acquisitions by two sellers"},
	{Name: "end-of-day", Description: "mid-day plus one seller fully deposited"},
}

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario seeds the selected demo dataset.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.loadScenario(r.Context(), req.Name); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.log.WithField("scenario", req.Name).Info("demo scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.Name})
}

// seeded carries the entities the scenario builders thread through.
type seeded struct {
	donat, risol   consign.Item
	sri, wati      consign.Seller
	agus           consign.Admin
	donatB, risolB consign.StockBatch
	sriAcq         consign.Acquisition
}

func (h *Handler) loadScenario(ctx context.Context, name string) error {
	var st seeded
	if err := h.seedFreshDay(ctx, &st); err != nil {
		return err
	}
	if name == "fresh-day" {
		return nil
	}
	if err := h.seedMidDay(ctx, &st); err != nil {
		return err
	}
	if name == "mid-day" {
		return nil
	}
	return h.seedEndOfDay(ctx, &st)
}

func (h *Handler) seedFreshDay(ctx context.Context, st *seeded) error {
	var err error
	if st.donat, err = h.Store.CreateItem(ctx, "Donat"); err != nil {
		return err
	}
	if st.risol, err = h.Store.CreateItem(ctx, "Risol"); err != nil {
		return err
	}
	if st.sri, err = h.Store.CreateSeller(ctx, "Bu Sri"); err != nil {
		return err
	}
	if st.wati, err = h.Store.CreateSeller(ctx, "Bu Wati"); err != nil {
		return err
	}
	if st.agus, err = h.Store.CreateAdmin(ctx, "Pak Agus"); err != nil {
		return err
	}

	// Working capital so the batch costs have coverage.
	if _, _, err = h.Engine.Ledger.CreateManualEntry(ctx, consign.EntryIncome,
		"Saldo awal", decimal.NewFromInt(100000), "seed"); err != nil {
		return err
	}

	today := time.Now().UTC()
	if st.donatB, err = h.Engine.Inventory.CreateBatch(ctx, st.donat.ID,
		decimal.NewFromInt(1500), decimal.NewFromInt(20000), 40, today); err != nil {
		return err
	}
	st.risolB, err = h.Engine.Inventory.CreateBatch(ctx, st.risol.ID,
		decimal.NewFromInt(2000), decimal.NewFromInt(15000), 25, today)
	return err
}

func (h *Handler) seedMidDay(ctx context.Context, st *seeded) error {
	var err error
	st.sriAcq, err = h.Engine.Acquisitions.Create(ctx, consign.AcquisitionRequest{
		SellerID: st.sri.ID,
		AdminID:  st.agus.ID,
		Note:     "keliling pasar",
		Items: []consign.AcquisitionItem{
			{BatchID: st.donatB.ID, Qty: 10},
			{BatchID: st.risolB.ID, Qty: 5},
		},
	})
	if err != nil {
		return err
	}
	_, err = h.Engine.Acquisitions.Create(ctx, consign.AcquisitionRequest{
		SellerID: st.wati.ID,
		AdminID:  st.agus.ID,
		Items:    []consign.AcquisitionItem{{BatchID: st.donatB.ID, Qty: 8}},
	})
	return err
}

func (h *Handler) seedEndOfDay(ctx context.Context, st *seeded) error {
	ids := make([]int, len(st.sriAcq.Lines))
	for i, li := range st.sriAcq.Lines {
		ids[i] = li.ID
	}
	cmd, err := consign.NewDepositCommand(ids, nil, st.agus.ID)
	if err != nil {
		return err
	}
	_, err = h.Engine.Deposits.Process(ctx, cmd)
	return err
}
