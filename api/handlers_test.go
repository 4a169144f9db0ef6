/*
handlers_test.go - HTTP tests for the API layer

Tests the full request path (router, decoding, validation, domain call,
error mapping) against the in-memory store.
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lapak/consignment-engine/api"
	"github.com/lapak/consignment-engine/consign"
	"github.com/lapak/consignment-engine/consign/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mem := store.NewMemory()
	engine := consign.NewEngine(mem, consign.SystemClock())

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(engine, mem, log)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func doJSONList(t *testing.T, url string) (*http.Response, []map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var out []map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func create(t *testing.T, srv *httptest.Server, path string, body any) map[string]any {
	t.Helper()
	resp, out := doJSON(t, http.MethodPost, srv.URL+path, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "POST %s: %v", path, out)
	return out
}

func id(m map[string]any, key string) int { return int(m[key].(float64)) }

// =============================================================================
// END-TO-END FLOW
// =============================================================================

func TestAPI_FullConsignmentFlow(t *testing.T) {
	// GIVEN: An item, a seller, an admin, and a batch of 10 at price 1000
	// WHEN: The seller acquires 3 and deposits the line
	// THEN: Remaining is 4, the balance is 3000, the acquisition is
	//       FULLY_DEPOSITED

	srv := newTestServer(t)

	item := create(t, srv, "/api/items", map[string]any{"name": "Donat"})
	seller := create(t, srv, "/api/sellers", map[string]any{"name": "Bu Sri"})
	admin := create(t, srv, "/api/admins", map[string]any{"name": "Pak Agus"})

	batch := create(t, srv, "/api/stock-batches", map[string]any{
		"item_id": id(item, "id"), "price": 1000, "cost": 0, "qty": 10,
	})

	acq := create(t, srv, "/api/acquisitions", map[string]any{
		"seller_id": id(seller, "id"),
		"admin_id":  id(admin, "id"),
		"items":     []map[string]any{{"batch_id": id(batch, "id"), "qty": 3}},
	})
	assert.Equal(t, "NONE_DEPOSITED", acq["status"])
	lines := acq["lines"].([]any)
	require.Len(t, lines, 1)
	lineID := id(lines[0].(map[string]any), "id")

	resp, today := doJSONList(t, srv.URL+"/api/stock-batches/today")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, today, 1)
	assert.Equal(t, 7, id(today[0], "remaining"))
	assert.Equal(t, 3, id(today[0], "taken"))

	receipt := create(t, srv, "/api/deposits", map[string]any{
		"line_item_ids": []int{lineID},
	})
	assert.Contains(t, receipt["reference"], "STR-")
	assert.Equal(t, "3000", receipt["total"], "decimals marshal as strings")

	resp, balance := doJSON(t, http.MethodGet, srv.URL+"/api/ledger/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "3000", balance["balance"])

	resp, got := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/acquisitions/%d", srv.URL, id(acq, "id")), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "FULLY_DEPOSITED", got["status"])

	resp, today = doJSONList(t, srv.URL+"/api/stock-batches/today")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, id(today[0], "remaining"))
	assert.Equal(t, 1, id(today[0], "depositors"))
}

func TestAPI_StructuredDepositPayload(t *testing.T) {
	// GIVEN: A pending line of quantity 2
	// WHEN: Depositing with the structured shape
	// THEN: Accepted; mixing both shapes in one call is a 400

	srv := newTestServer(t)

	item := create(t, srv, "/api/items", map[string]any{"name": "Donat"})
	seller := create(t, srv, "/api/sellers", map[string]any{"name": "Bu Sri"})
	admin := create(t, srv, "/api/admins", map[string]any{"name": "Pak Agus"})
	batch := create(t, srv, "/api/stock-batches", map[string]any{
		"item_id": id(item, "id"), "price": 1000, "qty": 10,
	})
	acq := create(t, srv, "/api/acquisitions", map[string]any{
		"seller_id": id(seller, "id"), "admin_id": id(admin, "id"),
		"items": []map[string]any{{"batch_id": id(batch, "id"), "qty": 2}},
	})
	lineID := id(acq["lines"].([]any)[0].(map[string]any), "id")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/deposits", map[string]any{
		"line_item_ids": []int{lineID},
		"items":         []map[string]any{{"line_item_id": lineID, "qty": 2}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "mixed shapes: %v", body)

	create(t, srv, "/api/deposits", map[string]any{
		"items": []map[string]any{{"line_item_id": lineID, "qty": 2}},
	})
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_ErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)

	item := create(t, srv, "/api/items", map[string]any{"name": "Donat"})
	seller := create(t, srv, "/api/sellers", map[string]any{"name": "Bu Sri"})
	admin := create(t, srv, "/api/admins", map[string]any{"name": "Pak Agus"})
	batch := create(t, srv, "/api/stock-batches", map[string]any{
		"item_id": id(item, "id"), "price": 1000, "qty": 5,
	})

	// 404: unknown acquisition
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/acquisitions/999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// 400: malformed body
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/items", map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// 422: stock underflow
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/acquisitions", map[string]any{
		"seller_id": id(seller, "id"), "admin_id": id(admin, "id"),
		"items": []map[string]any{{"batch_id": id(batch, "id"), "qty": 6}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// 409: double deposit
	acq := create(t, srv, "/api/acquisitions", map[string]any{
		"seller_id": id(seller, "id"), "admin_id": id(admin, "id"),
		"items": []map[string]any{{"batch_id": id(batch, "id"), "qty": 1}},
	})
	lineID := id(acq["lines"].([]any)[0].(map[string]any), "id")
	create(t, srv, "/api/deposits", map[string]any{"line_item_ids": []int{lineID}})
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/deposits", map[string]any{
		"line_item_ids": []int{lineID},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// 400: insufficient balance for a manual expense
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/ledger/entries", map[string]any{
		"kind": "EXPENSE", "title": "Beli plastik", "amount": 999999,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// RECONCILIATION ENDPOINTS
// =============================================================================

func TestAPI_LineItemEditAndDelete(t *testing.T) {
	srv := newTestServer(t)

	item := create(t, srv, "/api/items", map[string]any{"name": "Donat"})
	seller := create(t, srv, "/api/sellers", map[string]any{"name": "Bu Sri"})
	admin := create(t, srv, "/api/admins", map[string]any{"name": "Pak Agus"})
	batch := create(t, srv, "/api/stock-batches", map[string]any{
		"item_id": id(item, "id"), "price": 1000, "qty": 10,
	})
	acq := create(t, srv, "/api/acquisitions", map[string]any{
		"seller_id": id(seller, "id"), "admin_id": id(admin, "id"),
		"items": []map[string]any{{"batch_id": id(batch, "id"), "qty": 3}},
	})
	lineID := id(acq["lines"].([]any)[0].(map[string]any), "id")

	resp, updated := doJSON(t, http.MethodPut, fmt.Sprintf("%s/api/line-items/%d", srv.URL, lineID),
		map[string]any{"qty": 5})
	require.Equal(t, http.StatusOK, resp.StatusCode, "%v", updated)
	assert.Equal(t, 5, id(updated, "qty"))
	assert.Equal(t, "5000", updated["total"])

	resp, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/line-items/%d", srv.URL, lineID), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Stock fully restored, acquisition cascaded away.
	_, today := doJSONList(t, srv.URL+"/api/stock-batches/today")
	require.Len(t, today, 1)
	assert.Equal(t, 10, id(today[0], "remaining"))
	resp, _ = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/acquisitions/%d", srv.URL, id(acq, "id")), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_Healthz(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}
